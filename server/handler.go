package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/logger"
	"github.com/kbukum/opkit/observability"
	"github.com/kbukum/opkit/op"
	"github.com/kbukum/opkit/pipeline"
	"github.com/kbukum/opkit/validation"
)

// InvokeRequest is the body of an invoke call.
type InvokeRequest struct {
	Input any `json:"input"`
}

// InvokeResponse is the result of a successful invocation.
type InvokeResponse struct {
	Pipeline     string `json:"pipeline"`
	InvocationID string `json:"invocation_id"`
	Output       any    `json:"output"`
}

// Handler serves the pipeline API.
type Handler struct {
	registry *pipeline.Registry
	timeout  time.Duration
}

// NewHandler creates a Handler over registry. A positive timeout bounds
// each invocation.
func NewHandler(registry *pipeline.Registry, timeout time.Duration) *Handler {
	return &Handler{registry: registry, timeout: timeout}
}

// Register mounts the pipeline routes on r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.GET("/pipelines", h.list)
	v1.POST("/pipelines/:name/invoke", h.invoke)
}

func (h *Handler) list(c *gin.Context) {
	RespondOK(c, h.registry.List())
}

func (h *Handler) invoke(c *gin.Context) {
	name := c.Param("name")
	if err := validation.Name("name", name); err != nil {
		RespondWithError(c, err)
		return
	}
	o, ok := h.registry.Get(name)
	if !ok {
		RespondWithError(c, apperrors.NotFound("pipeline", name))
		return
	}

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, apperrors.InvalidInput("body", err.Error()))
		return
	}

	ctx := c.Request.Context()
	id := logger.RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	ctx = logger.ContextWithInvocationID(ctx, id)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	input := req.Input
	if m, ok := input.(map[string]any); ok {
		input = op.Envelope(m)
	}

	out, err := op.Invoke(ctx, o, input)
	if err != nil {
		RespondWithError(c, op.ToAppError(err).WithDetail("invocation_id", id))
		return
	}
	RespondOK(c, InvokeResponse{
		Pipeline:     name,
		InvocationID: id,
		Output:       out,
	})
}

// Health returns a handler reporting service health from the given checkers.
// A down component answers 503.
func Health(service, version string, checkers ...observability.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := observability.NewServiceHealth(service, version)
		for _, checker := range checkers {
			health.AddComponent(checker.CheckHealth(c.Request.Context()))
		}

		status := http.StatusOK
		if health.Status == observability.HealthStatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, health)
	}
}
