// Package llm is the model-invocation boundary of a pipeline.
//
// A Provider completes a CompletionRequest. The HTTP Client talks to a model
// server through a Dialect that maps the universal request and response
// types onto the server's wire format. Dialects register themselves from
// their own packages:
//
//	import _ "github.com/kbukum/opkit/llm/ollama"
//
//	client, err := llm.New(llm.Config{Dialect: "ollama", BaseURL: "http://localhost:11434", Model: "llama3"})
//	model := llm.NewOperation("model", client)
//
// NewOperation turns any Provider into an op.Operation accepting a prompt
// string, a message list, a CompletionRequest, or an envelope carrying
// "messages" or "prompt".
package llm
