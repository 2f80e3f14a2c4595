package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/llm"
	"github.com/kbukum/opkit/op"
	"github.com/kbukum/opkit/resilience"
)

func mustParse(t *testing.T, src string) *Definition {
	t.Helper()
	d, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return d
}

func TestParse_Definition(t *testing.T) {
	d := mustParse(t, `
name: summarize
description: one-line summary
steps:
  - template: "Summarize: {{ .text }}"
  - llm: {model: llama3, max_tokens: 64}
  - parse: {format: text}
`)
	if d.Name != "summarize" || len(d.Steps) != 3 {
		t.Fatalf("got %+v", d)
	}
	kinds := []string{d.Steps[0].Kind(), d.Steps[1].Kind(), d.Steps[2].Kind()}
	want := []string{KindTemplate, KindLLM, KindParse}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("steps[%d] kind = %q, want %q", i, kinds[i], want[i])
		}
	}
	if d.Steps[1].LLM.MaxTokens != 64 {
		t.Errorf("max_tokens = %d", d.Steps[1].LLM.MaxTokens)
	}
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	if _, err := Parse([]byte("name: x\nstepz: []\n")); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing name", "steps: [{passthrough: true}]", "name"},
		{"no steps", "name: empty", "no steps"},
		{"no kind", "name: x\nsteps: [{name: lonely}]", "no kind"},
		{"two kinds", "name: x\nsteps: [{passthrough: true, template: hi}]", "several kinds"},
		{"bad format", "name: x\nsteps: [{parse: {format: xml}}]", "unknown parse format"},
		{"schema without shape", "name: x\nsteps: [{parse: {format: schema}}]", "requires a shape"},
		{"nested", "name: x\nsteps: [{steps: [{passthrough: true}, {}]}]", "steps[0].steps[1]"},
		{"branch", "name: x\nsteps: [{parallel: {a: {}}}]", "parallel.a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mustParse(t, tt.src).Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestBuilder_TemplateModelParse(t *testing.T) {
	b := NewBuilder(WithDefaultProvider(llm.Echo()))
	o, err := b.Build(mustParse(t, `
name: greet
steps:
  - template: "Hello, {{ .who }}!"
  - llm: {}
  - parse: {format: text}
`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := op.Invoke(context.Background(), o, op.Envelope{"who": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello, Ada!" {
		t.Errorf("got %q", out)
	}
	if _, ok := b.Registry().Get("greet"); !ok {
		t.Error("built pipeline not registered")
	}
}

func TestBuilder_ParallelAndAssign(t *testing.T) {
	b := NewBuilder(WithDefaultProvider(llm.Echo()), WithMaxParallel(1))
	o, err := b.Build(mustParse(t, `
name: article
steps:
  - assign:
      title:
        steps:
          - template: "Title: {{ .topic }}"
          - llm: {}
          - parse: {format: text}
  - parallel:
      upper: {template: "{{ upper .title }}"}
      same: {passthrough: true}
`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := op.Invoke(context.Background(), o, op.Envelope{"topic": "joins"})
	if err != nil {
		t.Fatal(err)
	}
	env, ok := out.(op.Envelope)
	if !ok {
		t.Fatalf("expected Envelope, got %T", out)
	}
	if env["upper"] != "TITLE: JOINS" {
		t.Errorf("upper = %v", env["upper"])
	}
	same, _ := env["same"].(op.Envelope)
	if same["topic"] != "joins" || same["title"] != "Title: joins" {
		t.Errorf("same = %v", env["same"])
	}
}

func TestBuilder_SchemaParse(t *testing.T) {
	b := NewBuilder()
	o, err := b.Build(mustParse(t, `
name: extract
steps:
  - parse:
      format: schema
      shape:
        strict: true
        fields:
          - {name: title, type: string, required: true}
          - {name: score, type: integer}
`))
	if err != nil {
		t.Fatal(err)
	}

	out, err := op.Invoke(context.Background(), o, `{"title": "X", "score": 3}`)
	if err != nil {
		t.Fatal(err)
	}
	if env, _ := out.(op.Envelope); env["title"] != "X" {
		t.Errorf("got %v", out)
	}

	_, err = op.Invoke(context.Background(), o, `{"score": "high", "extra": 1}`)
	var ve *op.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, path := range []string{"title", "score", "extra"} {
		if !ve.Has(path) {
			t.Errorf("missing violation at %q: %v", path, ve.Violations)
		}
	}
}

func TestBuilder_JSONSchemaParse(t *testing.T) {
	o, err := NewBuilder().Build(mustParse(t, `
name: rating
steps:
  - parse:
      format: jsonschema
      schema:
        type: object
        required: [score]
        properties:
          score: {type: integer, minimum: 1, maximum: 5}
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := op.Invoke(context.Background(), o, `{"score": 4}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = op.Invoke(context.Background(), o, `{"score": 9}`)
	var ve *op.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBuilder_RefFromRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("shout", op.Func("shout", func(_ context.Context, in any) (any, error) {
		return strings.ToUpper(in.(string)) + "!", nil
	}))
	o, err := NewBuilder(WithRegistry(reg)).Build(mustParse(t, `
name: loud
steps:
  - ref: shout
  - ref: shout
`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := op.Invoke(context.Background(), o, "hey")
	if err != nil {
		t.Fatal(err)
	}
	if out != "HEY!!" {
		t.Errorf("got %q", out)
	}
}

func TestBuilder_RefLoadsDefinition(t *testing.T) {
	loader := MapLoader{
		"inner": mustParse(t, "name: inner\nsteps: [{template: \"<{{ . }}>\"}]"),
		"outer": mustParse(t, "name: outer\nsteps: [{ref: inner}, {ref: inner}]"),
	}
	b := NewBuilder(WithLoader(loader))
	o, err := b.BuildNamed("outer")
	if err != nil {
		t.Fatal(err)
	}
	out, err := op.Invoke(context.Background(), o, "x")
	if err != nil {
		t.Fatal(err)
	}
	if out != "<<x>>" {
		t.Errorf("got %q", out)
	}
	if got := b.Registry().List(); len(got) != 2 || got[0] != "inner" || got[1] != "outer" {
		t.Errorf("registry = %v", got)
	}
}

func TestBuilder_Includes(t *testing.T) {
	loader := MapLoader{
		"shared": mustParse(t, "name: shared\nsteps: [{passthrough: true}]"),
	}
	b := NewBuilder(WithLoader(loader))
	if _, err := b.Build(mustParse(t, "name: main\nincludes: [shared]\nsteps: [{passthrough: true}]")); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Registry().Get("shared"); !ok {
		t.Error("include not registered")
	}
}

func TestBuilder_CircularReference(t *testing.T) {
	loader := MapLoader{
		"a": mustParse(t, "name: a\nsteps: [{ref: b}]"),
		"b": mustParse(t, "name: b\nsteps: [{ref: a}]"),
	}
	_, err := NewBuilder(WithLoader(loader)).BuildNamed("a")
	var ae *apperrors.AppError
	if !errors.As(err, &ae) || ae.Code != apperrors.ErrCodeInvalidPipeline {
		t.Fatalf("expected INVALID_PIPELINE, got %v", err)
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Errorf("error = %v", err)
	}
}

func TestBuilder_UnknownRef(t *testing.T) {
	_, err := NewBuilder(WithLoader(MapLoader{})).Build(mustParse(t, "name: x\nsteps: [{ref: missing}]"))
	var ae *apperrors.AppError
	if !errors.As(err, &ae) || ae.Code != apperrors.ErrCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestBuilder_LLMWithoutProvider(t *testing.T) {
	_, err := NewBuilder().Build(mustParse(t, "name: x\nsteps: [{llm: {}}]"))
	var ae *apperrors.AppError
	if !errors.As(err, &ae) || ae.Code != apperrors.ErrCodeInvalidPipeline {
		t.Fatalf("expected INVALID_PIPELINE, got %v", err)
	}
}

// flakyProvider fails with a retryable error until calls exceeds failures.
type flakyProvider struct {
	calls    atomic.Int32
	failures int32
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, apperrors.ServiceUnavailable("flaky")
	}
	return &llm.CompletionResponse{Content: "recovered"}, nil
}

func TestBuilder_LLMRetriesWithResilience(t *testing.T) {
	p := &flakyProvider{failures: 2}
	cfg := resilience.DefaultConfig()
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialBackoff = 1
	b := NewBuilder(WithProvider("flaky", p), WithResilience(cfg))
	o, err := b.Build(mustParse(t, "name: x\nsteps: [{llm: {provider: flaky}}, {parse: {format: text}}]"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := op.Invoke(context.Background(), o, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "recovered" || p.calls.Load() != 3 {
		t.Errorf("out=%v calls=%d", out, p.calls.Load())
	}
}

func TestBuilder_NodeResilienceOverride(t *testing.T) {
	p := &flakyProvider{failures: 1}
	b := NewBuilder(WithProvider("flaky", p))
	o, err := b.Build(mustParse(t, `
name: x
steps:
  - llm: {provider: flaky}
    resilience:
      retry: {max_attempts: 2, initial_backoff: 1ms}
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := op.Invoke(context.Background(), o, "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuilder_Middleware(t *testing.T) {
	var seen []string
	record := func(next op.Operation) op.Operation {
		return op.Func(next.Name(), func(ctx context.Context, in any) (any, error) {
			seen = append(seen, next.Name())
			return next.Invoke(ctx, in)
		})
	}
	o, err := NewBuilder(WithMiddleware(record)).Build(mustParse(t, "name: mw\nsteps: [{passthrough: true}]"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := op.Invoke(context.Background(), o, 1); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != "mw" || seen[1] != "passthrough" {
		t.Errorf("seen = %v", seen)
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"top.yaml":           "name: top\nsteps: [{ref: deep}]",
		"nested/deep.yml":    "steps: [{passthrough: true}]",
		"nested/ignored.txt": "not yaml",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	loader := NewFileLoader(dir)
	names, err := loader.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "deep" || names[1] != "top" {
		t.Errorf("Names() = %v", names)
	}

	deep, err := loader.Load("deep")
	if err != nil {
		t.Fatal(err)
	}
	if deep.Name != "deep" {
		t.Errorf("name from file = %q", deep.Name)
	}

	if _, err := loader.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	b := NewBuilder(WithLoader(loader))
	built, err := b.BuildAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(built) != 2 {
		t.Errorf("BuildAll() = %v", built)
	}
}

func TestFileLoader_MissingDir(t *testing.T) {
	names, err := NewFileLoader(filepath.Join(t.TempDir(), "absent")).Names()
	if err != nil || len(names) != 0 {
		t.Errorf("names=%v err=%v", names, err)
	}
}
