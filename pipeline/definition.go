package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kbukum/opkit/parser"
	"github.com/kbukum/opkit/prompt"
	"github.com/kbukum/opkit/resilience"
	"github.com/kbukum/opkit/validation"
)

// Node kinds.
const (
	KindRef         = "ref"
	KindSteps       = "steps"
	KindParallel    = "parallel"
	KindAssign      = "assign"
	KindPassthrough = "passthrough"
	KindTemplate    = "template"
	KindChat        = "chat"
	KindLLM         = "llm"
	KindParse       = "parse"
)

// Parse formats.
const (
	FormatText       = "text"
	FormatJSON       = "json"
	FormatYAML       = "yaml"
	FormatSchema     = "schema"
	FormatJSONSchema = "jsonschema"
)

// Definition is a YAML-defined pipeline.
type Definition struct {
	// Name is the pipeline identifier.
	Name string `yaml:"name"`
	// Description is shown by listings.
	Description string `yaml:"description,omitempty"`
	// Includes lists other definitions to build and register first.
	Includes []string `yaml:"includes,omitempty"`
	// Steps run in order; their composite is the pipeline.
	Steps []Node `yaml:"steps"`
}

// Node is one step of a definition. Exactly one kind field is set.
type Node struct {
	// Name overrides the operation name.
	Name string `yaml:"name,omitempty"`

	Ref         string           `yaml:"ref,omitempty"`
	Steps       []Node           `yaml:"steps,omitempty"`
	Parallel    map[string]Node  `yaml:"parallel,omitempty"`
	Assign      map[string]Node  `yaml:"assign,omitempty"`
	Passthrough bool             `yaml:"passthrough,omitempty"`
	Template    string           `yaml:"template,omitempty"`
	Chat        []prompt.Message `yaml:"chat,omitempty"`
	LLM         *LLMNode         `yaml:"llm,omitempty"`
	Parse       *ParseNode       `yaml:"parse,omitempty"`

	// MaxParallel bounds branch concurrency of parallel and assign nodes.
	// Zero uses the builder default.
	MaxParallel int `yaml:"max_parallel,omitempty"`
	// Resilience overrides the builder's resilience settings for this node.
	Resilience *resilience.Config `yaml:"resilience,omitempty"`
}

// LLMNode configures a model call.
type LLMNode struct {
	// Provider selects a registered provider. Empty uses the default one.
	Provider    string   `yaml:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	System      string   `yaml:"system,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
}

// ParseNode configures an output parser.
type ParseNode struct {
	Format string `yaml:"format"`
	// Path selects a sub-value with a gjson path before parsing.
	Path string `yaml:"path,omitempty"`
	// Decoder is the structured decoder for schema formats: json (default) or yaml.
	Decoder string `yaml:"decoder,omitempty"`
	// Shape is the declared shape for the schema format.
	Shape *parser.Shape `yaml:"shape,omitempty"`
	// Schema is the JSON Schema document for the jsonschema format.
	Schema map[string]any `yaml:"schema,omitempty"`
}

// Kind returns the node's kind, or "" when none or several are set.
func (n Node) Kind() string {
	kinds := n.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (n Node) kinds() []string {
	var kinds []string
	add := func(set bool, kind string) {
		if set {
			kinds = append(kinds, kind)
		}
	}
	add(n.Ref != "", KindRef)
	add(len(n.Steps) > 0, KindSteps)
	add(len(n.Parallel) > 0, KindParallel)
	add(len(n.Assign) > 0, KindAssign)
	add(n.Passthrough, KindPassthrough)
	add(n.Template != "", KindTemplate)
	add(len(n.Chat) > 0, KindChat)
	add(n.LLM != nil, KindLLM)
	add(n.Parse != nil, KindParse)
	return kinds
}

// Validate checks the definition's structure. It does not resolve
// references.
func (d *Definition) Validate() error {
	if err := validation.Name("name", d.Name); err != nil {
		return err
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("pipeline %q has no steps", d.Name)
	}
	for i, n := range d.Steps {
		if err := n.validate(fmt.Sprintf("steps[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func (n Node) validate(path string) error {
	kinds := n.kinds()
	switch len(kinds) {
	case 0:
		return fmt.Errorf("%s: node has no kind", path)
	case 1:
	default:
		return fmt.Errorf("%s: node sets several kinds: %s", path, strings.Join(kinds, ", "))
	}
	if n.MaxParallel < 0 {
		return fmt.Errorf("%s: max_parallel must not be negative", path)
	}
	if n.Resilience != nil {
		if err := n.Resilience.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	switch kinds[0] {
	case KindSteps:
		for i, child := range n.Steps {
			if err := child.validate(fmt.Sprintf("%s.steps[%d]", path, i)); err != nil {
				return err
			}
		}
	case KindParallel, KindAssign:
		branches := n.Parallel
		if kinds[0] == KindAssign {
			branches = n.Assign
		}
		for _, name := range slices.Sorted(maps.Keys(branches)) {
			if err := branches[name].validate(fmt.Sprintf("%s.%s.%s", path, kinds[0], name)); err != nil {
				return err
			}
		}
	case KindParse:
		return n.Parse.validate(path)
	}
	return nil
}

func (p *ParseNode) validate(path string) error {
	switch p.Format {
	case FormatText, FormatJSON, FormatYAML:
	case FormatSchema:
		if p.Shape == nil {
			return fmt.Errorf("%s: schema format requires a shape", path)
		}
		if err := p.Shape.Check(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case FormatJSONSchema:
		if len(p.Schema) == 0 {
			return fmt.Errorf("%s: jsonschema format requires a schema", path)
		}
	default:
		return fmt.Errorf("%s: unknown parse format %q", path, p.Format)
	}
	switch p.Decoder {
	case "", FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%s: unknown decoder %q", path, p.Decoder)
	}
	return nil
}
