package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/logger"
)

// KeepAliveInterval is how often an idle stream receives a comment line.
// It should stay below typical proxy timeouts.
var KeepAliveInterval = 30 * time.Second

// Stream returns a handler subscribing the caller to events whose
// invocation ID matches the "invocation" query parameter (a glob, default "*").
func Stream(hub *Hub, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		pattern := c.DefaultQuery("invocation", "*")
		if _, err := filepath.Match(pattern, ""); err != nil {
			appErr := apperrors.InvalidInput("invocation", err.Error())
			c.JSON(appErr.HTTPStatus, appErr.ToResponse())
			return
		}
		ServeSSE(hub, c.Writer, c.Request, uuid.NewString(), pattern, log)
	}
}

// ServeSSE streams events matching pattern to w until the client
// disconnects or the hub stops.
func ServeSSE(hub *Hub, w http.ResponseWriter, r *http.Request, clientID, pattern string, log *logger.Logger) {
	log = log.WithComponent("sse").WithFields(map[string]interface{}{"client_id": clientID})

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("Streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Long-lived streams must outlive the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("Could not disable write deadline", map[string]interface{}{
			"error": err.Error(),
		})
	}

	client := NewClient(clientID, pattern)
	if !hub.Register(client) {
		http.Error(w, "event hub stopped", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	connected, _ := json.Marshal(ConnectedEvent{ClientID: clientID, Pattern: pattern})
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventConnected, connected)
	flusher.Flush()

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-client.Events():
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}
