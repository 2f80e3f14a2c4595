// Command opkit runs declarative operation pipelines from the command line
// or serves them over HTTP.
package main

import (
	"fmt"
	"os"

	_ "github.com/kbukum/opkit/llm/ollama"
	_ "github.com/kbukum/opkit/llm/openai"
)

func main() {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
