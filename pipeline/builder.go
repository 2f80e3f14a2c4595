package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/llm"
	"github.com/kbukum/opkit/op"
	"github.com/kbukum/opkit/parser"
	"github.com/kbukum/opkit/prompt"
	"github.com/kbukum/opkit/resilience"
)

// Builder turns definitions into operations.
type Builder struct {
	registry        *Registry
	loader          Loader
	providers       map[string]llm.Provider
	defaultProvider llm.Provider
	maxParallel     int
	resilience      resilience.Config
	middleware      []op.Middleware
}

// Option configures a Builder.
type Option func(*Builder)

// WithRegistry sets the registry references resolve against and built
// pipelines are registered in.
func WithRegistry(r *Registry) Option {
	return func(b *Builder) { b.registry = r }
}

// WithLoader sets where referenced and included definitions are loaded from.
func WithLoader(l Loader) Option {
	return func(b *Builder) { b.loader = l }
}

// WithProvider registers a model provider for llm nodes naming it.
func WithProvider(name string, p llm.Provider) Option {
	return func(b *Builder) { b.providers[name] = p }
}

// WithDefaultProvider sets the provider for llm nodes that name none.
func WithDefaultProvider(p llm.Provider) Option {
	return func(b *Builder) { b.defaultProvider = p }
}

// WithMaxParallel bounds branch concurrency of parallel and assign nodes.
// Zero means unlimited.
func WithMaxParallel(n int) Option {
	return func(b *Builder) { b.maxParallel = n }
}

// WithResilience sets the resilience settings applied to llm nodes.
func WithResilience(cfg resilience.Config) Option {
	return func(b *Builder) { b.resilience = cfg }
}

// WithMiddleware sets middleware applied to every leaf operation and to
// each built pipeline.
func WithMiddleware(mws ...op.Middleware) Option {
	return func(b *Builder) { b.middleware = append(b.middleware, mws...) }
}

// NewBuilder creates a Builder. Without options it resolves references
// against an empty registry and has no loader or providers.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		registry:   NewRegistry(),
		providers:  make(map[string]llm.Provider),
		resilience: resilience.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry returns the builder's registry.
func (b *Builder) Registry() *Registry { return b.registry }

// Build validates d, builds it and registers the result under d.Name.
func (b *Builder) Build(d *Definition) (op.Operation, error) {
	return b.build(d, make(map[string]bool))
}

// BuildNamed builds the definition the loader finds under name, or returns
// the operation already registered under it.
func (b *Builder) BuildNamed(name string) (op.Operation, error) {
	return b.resolve(name, make(map[string]bool))
}

// BuildAll builds every definition the loader lists.
func (b *Builder) BuildAll() ([]string, error) {
	if b.loader == nil {
		return nil, nil
	}
	names, err := b.loader.Names()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if _, err := b.BuildNamed(name); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func (b *Builder) build(d *Definition, stack map[string]bool) (op.Operation, error) {
	if err := d.Validate(); err != nil {
		return nil, invalid(d.Name, err)
	}
	if stack[d.Name] {
		return nil, invalid(d.Name, errors.New("circular reference"))
	}
	stack[d.Name] = true
	defer delete(stack, d.Name)

	for _, include := range d.Includes {
		if _, err := b.resolve(include, stack); err != nil {
			return nil, err
		}
	}

	stages := make([]op.Operation, len(d.Steps))
	for i, n := range d.Steps {
		stage, err := b.node(n, stack)
		if err != nil {
			return nil, invalid(d.Name, fmt.Errorf("steps[%d]: %w", i, err))
		}
		stages[i] = stage
	}
	seq, err := op.NewSequence(d.Name, stages...)
	if err != nil {
		return nil, invalid(d.Name, err)
	}

	built := op.Use(seq, b.middleware...)
	b.registry.Register(d.Name, built)
	return built, nil
}

// resolve returns the registered operation for name, building its
// definition first when needed.
func (b *Builder) resolve(name string, stack map[string]bool) (op.Operation, error) {
	if stack[name] {
		return nil, invalid(name, errors.New("circular reference"))
	}
	if o, ok := b.registry.Get(name); ok {
		return o, nil
	}
	if b.loader == nil {
		return nil, apperrors.NotFound("pipeline", name)
	}
	d, err := b.loader.Load(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NotFound("pipeline", name).WithCause(err)
		}
		return nil, invalid(name, err)
	}
	return b.build(d, stack)
}

func (b *Builder) node(n Node, stack map[string]bool) (op.Operation, error) {
	switch n.Kind() {
	case KindRef:
		return b.resolve(n.Ref, stack)
	case KindSteps:
		stages := make([]op.Operation, len(n.Steps))
		for i, child := range n.Steps {
			stage, err := b.node(child, stack)
			if err != nil {
				return nil, fmt.Errorf("steps[%d]: %w", i, err)
			}
			stages[i] = stage
		}
		return op.NewSequence(n.Name, stages...)
	case KindParallel:
		branches, err := b.branches(n.Parallel, stack)
		if err != nil {
			return nil, err
		}
		return op.NewParallel(n.Name, branches, op.WithMaxConcurrency(b.limit(n)))
	case KindAssign:
		branches, err := b.branches(n.Assign, stack)
		if err != nil {
			return nil, err
		}
		return op.Assign(n.Name, branches, op.WithMaxConcurrency(b.limit(n)))
	}

	leaf, err := b.leaf(n)
	if err != nil {
		return nil, err
	}
	if n.Resilience != nil {
		cfg := *n.Resilience
		cfg.ApplyDefaults()
		leaf = resilience.Wrap(leaf, cfg)
	}
	return op.Use(leaf, b.middleware...), nil
}

func (b *Builder) leaf(n Node) (op.Operation, error) {
	switch n.Kind() {
	case KindPassthrough:
		return op.Passthrough(), nil
	case KindTemplate:
		return prompt.Template(nameOr(n.Name, "template"), n.Template)
	case KindChat:
		return prompt.Chat(nameOr(n.Name, "chat"), n.Chat...)
	case KindLLM:
		return b.llm(n)
	case KindParse:
		return parse(n)
	}
	return nil, fmt.Errorf("unsupported node kind %q", n.Kind())
}

func (b *Builder) branches(defs map[string]Node, stack map[string]bool) (map[string]op.Operation, error) {
	branches := make(map[string]op.Operation, len(defs))
	for _, name := range slices.Sorted(maps.Keys(defs)) {
		o, err := b.node(defs[name], stack)
		if err != nil {
			return nil, fmt.Errorf("branch %q: %w", name, err)
		}
		branches[name] = o
	}
	return branches, nil
}

func (b *Builder) limit(n Node) int {
	if n.MaxParallel > 0 {
		return n.MaxParallel
	}
	return b.maxParallel
}

// llm builds a model call wrapped with the builder's resilience settings
// unless the node carries its own.
func (b *Builder) llm(n Node) (op.Operation, error) {
	p := b.defaultProvider
	if n.LLM.Provider != "" {
		var ok bool
		if p, ok = b.providers[n.LLM.Provider]; !ok {
			return nil, fmt.Errorf("unknown provider %q", n.LLM.Provider)
		}
	}
	if p == nil {
		return nil, errors.New("no model provider configured")
	}

	var opts []llm.OperationOption
	if n.LLM.Model != "" {
		opts = append(opts, llm.WithModel(n.LLM.Model))
	}
	if n.LLM.System != "" {
		opts = append(opts, llm.WithSystemPrompt(n.LLM.System))
	}
	if n.LLM.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*n.LLM.Temperature))
	}
	if n.LLM.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(n.LLM.MaxTokens))
	}

	call := llm.NewOperation(n.Name, p, opts...)
	if n.Resilience == nil {
		call = resilience.Wrap(call, b.resilience)
	}
	return call, nil
}

func parse(n Node) (op.Operation, error) {
	pn := n.Parse
	var opts []parser.Option
	if n.Name != "" {
		opts = append(opts, parser.WithName(n.Name))
	}
	if pn.Path != "" {
		opts = append(opts, parser.WithPath(pn.Path))
	}
	if pn.Decoder == FormatYAML {
		opts = append(opts, parser.WithDecoder(parser.YAML()))
	}

	switch pn.Format {
	case FormatText:
		return parser.Text(opts...), nil
	case FormatJSON:
		return parser.JSON(opts...), nil
	case FormatYAML:
		return parser.YAML(opts...), nil
	case FormatSchema:
		p, err := parser.NewSchema(*pn.Shape, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case FormatJSONSchema:
		p, err := parser.JSONSchemaFromMap(nameOr(n.Name, "jsonschema"), pn.Schema, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown parse format %q", pn.Format)
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func invalid(name string, err error) error {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return err
	}
	return apperrors.InvalidPipeline(name, err.Error()).WithCause(err)
}
