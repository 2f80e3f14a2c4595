package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" || !cfg.Debug {
			t.Errorf("got environment=%q debug=%v", cfg.Environment, cfg.Debug)
		}
		if cfg.Logging.Level != "debug" || cfg.Logging.ServiceName != "svc" {
			t.Errorf("logging = %+v", cfg.Logging)
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected info level, got %q", cfg.Logging.Level)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid staging", ServiceConfig{Name: "svc", Environment: "staging"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "qa"}, "config.environment must be one of"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "opkit.yml", `
name: summarizer
environment: staging
logging:
  level: warn
  format: json
runtime:
  max_parallel: 4
  timeout: 2s
  retry:
    max_attempts: 3
    initial_backoff: 50ms
  circuit_breaker:
    enabled: true
llm:
  dialect: ollama
  base_url: http://localhost:11434
  model: llama3
cache:
  enabled: true
  addr: redis:6379
  ttl: 10m
server:
  port: 9090
  invoke_timeout: 30s
pipelines_dir: ./defs
`)

	cfg, err := Load("opkit", WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "summarizer" || cfg.Environment != "staging" || cfg.Debug {
		t.Errorf("service = %+v", cfg.ServiceConfig)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Runtime.MaxParallel != 4 || cfg.Runtime.Timeout != 2*time.Second {
		t.Errorf("runtime = %+v", cfg.Runtime)
	}
	if cfg.Runtime.Retry.MaxAttempts != 3 || cfg.Runtime.Retry.InitialBackoff != 50*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Runtime.Retry)
	}
	if cfg.Runtime.Retry.MaxBackoff != 5*time.Second {
		t.Errorf("expected default max backoff, got %s", cfg.Runtime.Retry.MaxBackoff)
	}
	if !cfg.Runtime.CircuitBreaker.Enabled || cfg.Runtime.CircuitBreaker.MaxFailures != 5 {
		t.Errorf("circuit breaker = %+v", cfg.Runtime.CircuitBreaker)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Addr != "redis:6379" || cfg.Cache.TTLDuration() != 10*time.Minute || cfg.Cache.PoolSize != 10 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.LLM.Dialect != "ollama" || cfg.LLM.Model != "llama3" || cfg.LLM.Name != "ollama-llm" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Server.Port != 9090 || cfg.Server.InvokeTimeout != 30*time.Second || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.PipelinesDir != "./defs" {
		t.Errorf("pipelines_dir = %q", cfg.PipelinesDir)
	}
	if cfg.Tracing.Enabled || cfg.Tracing.ServiceName != "summarizer" || cfg.Tracing.Environment != "staging" {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("opkit", WithFileSystem(&mockFS{}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "opkit" || cfg.LLM.Dialect != "echo" || cfg.PipelinesDir != "./pipelines" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Runtime.Retry.MaxAttempts != 1 || cfg.Server.Port != 8080 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "opkit.yml", "name: from-file\nserver:\n  port: 9090\n")

	t.Setenv("OPKIT_SERVER_PORT", "7070")
	t.Setenv("OPKIT_RUNTIME_RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("OPKIT_LLM_API_KEY", "sk-test")
	t.Setenv("OPKIT_LLM_DIALECT", "echo")
	t.Setenv("UNPREFIXED_NAME", "ignored")

	cfg, err := Load("opkit", WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "from-file" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Runtime.Retry.MaxAttempts != 4 {
		t.Errorf("max_attempts = %d, want 4", cfg.Runtime.Retry.MaxAttempts)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api_key = %q", cfg.LLM.APIKey)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "OPKIT_SERVER_JWT_SECRET=from-dotenv\n")
	t.Setenv("OPKIT_SERVER_JWT_SECRET", "")
	os.Unsetenv("OPKIT_SERVER_JWT_SECRET")

	cfg, err := Load("opkit", WithEnvFile(envPath), WithFileSystem(&envFS{mockFS: mockFS{files: map[string]bool{envPath: true}}}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.JWTSecret != "from-dotenv" {
		t.Errorf("jwt_secret = %q", cfg.Server.JWTSecret)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load("opkit", WithConfigFile(filepath.Join(dir, "missing.yml"))); err == nil {
		t.Error("expected error for missing explicit config file")
	}

	bad := writeFile(t, dir, "bad.yml", "name: [unclosed\n")
	if _, err := Load("opkit", WithConfigFile(bad)); err == nil {
		t.Error("expected error for malformed YAML")
	}

	invalid := writeFile(t, dir, "invalid.yml", "environment: qa\n")
	if _, err := Load("opkit", WithConfigFile(invalid)); err == nil || !strings.Contains(err.Error(), "environment") {
		t.Errorf("expected environment error, got %v", err)
	}

	negative := writeFile(t, dir, "negative.yml", "runtime:\n  max_parallel: -1\n")
	if _, err := Load("opkit", WithConfigFile(negative)); err == nil {
		t.Error("expected error for negative max_parallel")
	}

	tracing := writeFile(t, dir, "tracing.yml", "tracing:\n  enabled: true\n  sample_rate: 3\n")
	if _, err := Load("opkit", WithConfigFile(tracing)); err == nil || !strings.Contains(err.Error(), "sample_rate") {
		t.Errorf("expected sample_rate error, got %v", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{}
	cfg.LLM.APIKey = "sk-live"
	cfg.LLM.Headers = map[string]string{"X-Org": "acme"}
	cfg.Server.JWTSecret = "s3cret"
	cfg.Cache.Password = "redis-pass"

	r := cfg.Redacted()
	if r.LLM.APIKey != "****" || r.Server.JWTSecret != "****" || r.LLM.Headers["X-Org"] != "****" || r.Cache.Password != "****" {
		t.Errorf("redacted = %+v", r)
	}
	if cfg.LLM.APIKey != "sk-live" || cfg.LLM.Headers["X-Org"] != "acme" {
		t.Error("Redacted modified the original")
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"cmd/my-svc/my-svc.yml": true,
		"config/.env":           true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("my-svc", LoaderConfig{})
	if files.ConfigFile != "cmd/my-svc/my-svc.yml" {
		t.Errorf("config file = %q", files.ConfigFile)
	}
	if files.EnvFile != "config/.env" {
		t.Errorf("env file = %q", files.EnvFile)
	}

	files = resolver.ResolveFiles("my-svc", LoaderConfig{ConfigFile: "explicit.yml"})
	if files.ConfigFile != "explicit.yml" {
		t.Errorf("explicit config file ignored: %q", files.ConfigFile)
	}
}

func TestGenerateEnvKeyVariants(t *testing.T) {
	got := generateEnvKeyVariants("LLM_API_KEY")
	want := []string{"llm_api_key", "llm.api_key", "llm_api.key", "llm.api.key"}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := generateEnvKeyVariants("NAME"); !slices.Equal(got, []string{"name"}) {
		t.Errorf("got %v", got)
	}
	if got := generateEnvKeyVariants("RUNTIME_RETRY_MAX_ATTEMPTS"); !slices.Contains(got, "runtime.retry.max_attempts") {
		t.Errorf("missing nested variant in %v", got)
	}
}

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	fs := &mockFS{}
	WithFileSystem(fs)(&lc)
	WithConfigFile("/path/to/config.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	if lc.FileSystem != fs || lc.ConfigFile != "/path/to/config.yml" || lc.EnvFile != "/path/to/.env" {
		t.Errorf("options = %+v", lc)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(string) error    { return nil }

// envFS resolves paths from a map but loads .env files for real.
type envFS struct {
	mockFS
}

func (e *envFS) LoadEnv(path string) error { return (&RealFileSystem{}).LoadEnv(path) }
