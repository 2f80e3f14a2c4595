// Package pipeline builds operations from YAML definitions.
//
// A definition names a pipeline and lists its steps. Each step is a node of
// exactly one kind:
//
//   - ref: a named operation from the Registry or another definition
//   - steps: a nested sequence
//   - parallel: named branches joined into an envelope
//   - assign: named branches merged into the input envelope
//   - passthrough: the identity operation
//   - template: a text template rendering the input into a prompt
//   - chat: role-tagged message templates producing a completion request
//   - llm: a call to a model provider
//   - parse: a text, json, yaml, schema or jsonschema output parser
//
// Example:
//
//	name: summarize
//	steps:
//	  - template: "Summarize in one sentence: {{ .text }}"
//	  - llm: {model: llama3}
//	  - parse: {format: text}
//
// A Builder turns definitions into op.Operation values, applying the
// runtime's concurrency limit, resilience settings and middleware. Built
// pipelines are registered by name so later definitions can reference them.
package pipeline
