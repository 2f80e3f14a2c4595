package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/logger"
	"github.com/kbukum/opkit/observability"
	"github.com/kbukum/opkit/op"
	"github.com/kbukum/opkit/pipeline"
	"github.com/kbukum/opkit/security"
	"github.com/kbukum/opkit/security/tlstest"
	"github.com/kbukum/opkit/server/middleware"
)

func newTestServer(t *testing.T, cfg Config, reg *pipeline.Registry, checkers ...observability.HealthChecker) *Server {
	t.Helper()
	cfg.ApplyDefaults()
	srv := New(cfg, logger.Nop())
	NewHandler(reg, cfg.InvokeTimeout).Register(srv.GinEngine())
	srv.GinEngine().GET("/health", Health("opkit", "test", checkers...))
	srv.ApplyMiddleware()
	return srv
}

func testRegistry() *pipeline.Registry {
	reg := pipeline.NewRegistry()
	reg.Register("upper", op.Typed("upper", func(_ context.Context, in string) (string, error) {
		return strings.ToUpper(in), nil
	}))
	reg.Register("greet", op.Func("greet", func(_ context.Context, in any) (any, error) {
		env, ok := op.As[op.Envelope](in)
		if !ok {
			return nil, &op.TypeMismatch{Want: "Envelope", Got: "other"}
		}
		return op.Envelope{"greeting": "hello " + env["name"].(string)}, nil
	}))
	reg.Register("slow", op.Func("slow", func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	reg.Register("strict", op.Func("strict", func(context.Context, any) (any, error) {
		return nil, &op.ValidationError{Op: "strict", Violations: []op.Violation{{Path: "title", Rule: "required", Message: "missing"}}}
	}))
	return reg
}

func do(t *testing.T, srv *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rr.Body.String(), err)
	}
	return v
}

type invokeBody struct {
	Data InvokeResponse `json:"data"`
}

func TestInvoke_String(t *testing.T) {
	srv := newTestServer(t, Config{}, testRegistry())
	rr := do(t, srv, "POST", "/v1/pipelines/upper/invoke", `{"input": "abc"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	body := decode[invokeBody](t, rr)
	if body.Data.Output != "ABC" || body.Data.Pipeline != "upper" {
		t.Errorf("got %+v", body.Data)
	}
	if body.Data.InvocationID != rr.Header().Get(middleware.HeaderRequestID) {
		t.Errorf("invocation ID %q should match request ID %q", body.Data.InvocationID, rr.Header().Get(middleware.HeaderRequestID))
	}
}

func TestInvoke_ObjectInputBecomesEnvelope(t *testing.T) {
	srv := newTestServer(t, Config{}, testRegistry())
	rr := do(t, srv, "POST", "/v1/pipelines/greet/invoke", `{"input": {"name": "ada"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	out, _ := decode[invokeBody](t, rr).Data.Output.(map[string]any)
	if out["greeting"] != "hello ada" {
		t.Errorf("got %v", out)
	}
}

func TestInvoke_Errors(t *testing.T) {
	srv := newTestServer(t, Config{InvokeTimeout: 20 * time.Millisecond}, testRegistry())

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   apperrors.ErrorCode
	}{
		{"unknown pipeline", "/v1/pipelines/missing/invoke", `{"input": 1}`, http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"bad body", "/v1/pipelines/upper/invoke", `{`, http.StatusBadRequest, apperrors.ErrCodeInvalidInput},
		{"type mismatch", "/v1/pipelines/upper/invoke", `{"input": 5}`, http.StatusUnprocessableEntity, apperrors.ErrCodeOperationFailed},
		{"validation", "/v1/pipelines/strict/invoke", `{"input": "x"}`, http.StatusUnprocessableEntity, apperrors.ErrCodeValidationFailed},
		{"timeout", "/v1/pipelines/slow/invoke", `{"input": "x"}`, http.StatusGatewayTimeout, apperrors.ErrCodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, "POST", tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
			body := decode[apperrors.ErrorResponse](t, rr)
			if body.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", body.Error.Code, tt.code)
			}
			_, hasID := body.Error.Details["invocation_id"]
			if invoked := tt.status != http.StatusNotFound && tt.status != http.StatusBadRequest; hasID != invoked {
				t.Errorf("invocation_id present = %v, want %v", hasID, invoked)
			}
		})
	}
}

func TestList(t *testing.T) {
	srv := newTestServer(t, Config{}, testRegistry())
	rr := do(t, srv, "GET", "/v1/pipelines", "")
	body := decode[struct {
		Data []string `json:"data"`
	}](t, rr)
	if strings.Join(body.Data, ",") != "greet,slow,strict,upper" {
		t.Errorf("got %v", body.Data)
	}
}

type staticChecker observability.Health

func (s staticChecker) CheckHealth(context.Context) observability.Health { return observability.Health(s) }

func TestHealth(t *testing.T) {
	up := staticChecker{Name: "llm", Status: observability.HealthStatusUp}
	down := staticChecker{Name: "llm", Status: observability.HealthStatusDown, Message: "refused"}

	rr := do(t, newTestServer(t, Config{}, testRegistry(), up), "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}

	rr = do(t, newTestServer(t, Config{}, testRegistry(), up, down), "GET", "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rr.Code)
	}
	health := decode[observability.ServiceHealth](t, rr)
	if health.Status != observability.HealthStatusDown || len(health.Components) != 2 {
		t.Errorf("got %+v", health)
	}
}

func TestAuthProtectsAPI(t *testing.T) {
	srv := newTestServer(t, Config{JWTSecret: "s3cret"}, testRegistry())

	if rr := do(t, srv, "GET", "/v1/pipelines", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rr.Code)
	}
	if rr := do(t, srv, "GET", "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("expected health to bypass auth, got %d", rr.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ci"}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatal(err)
	}
	if rr := do(t, srv, "GET", "/v1/pipelines", "", "Authorization", "Bearer "+token); rr.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", rr.Code)
	}
}

func TestStartStop(t *testing.T) {
	srv := newTestServer(t, Config{Host: "127.0.0.1", Port: 0}, testRegistry())
	srv.httpServer.Addr = "127.0.0.1:0"
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStartStop_TLS(t *testing.T) {
	certs := tlstest.Generate(t)
	cfg := Config{Host: "127.0.0.1"}
	cfg.TLS = security.TLSConfig{CertFile: certs.CertFile, KeyFile: certs.KeyFile}
	srv := newTestServer(t, cfg, testRegistry())
	srv.httpServer.Addr = "127.0.0.1:0"
	if err := srv.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: certs.Pool}}}
	resp, err := client.Get("https://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.TLS == nil {
		t.Errorf("status = %d, tls = %v", resp.StatusCode, resp.TLS != nil)
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != 8080 || cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := cfg
	bad.MaxBodySize = "lots"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for bad max_body_size")
	}

	bad = cfg
	bad.TLS.CAFile = "clients.pem"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for client CA without a key pair")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"10MB", 10 << 20},
		{"512kb", 512 << 10},
		{"2GB", 2 << 30},
		{"1024", 1024},
		{" 3 KB ", 3 << 10},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("parseSize(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
			}
		})
	}
}
