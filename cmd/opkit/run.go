package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/kbukum/opkit/errors"
	"github.com/kbukum/opkit/op"
)

// RunCmd invokes one pipeline and prints its output.
func RunCmd(flags *globalFlags) *cobra.Command {
	var (
		input     string
		inputFile string
		raw       bool
	)
	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Invoke a pipeline once and print its output",
		Example: `  opkit run summarize --input '{"text": "..."}'
  opkit run summarize --input-file request.json
  echo '"plain text"' | opkit run shout --input-file -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := readInput(cmd.InOrStdin(), input, inputFile)
			if err != nil {
				return err
			}
			app, err := newApp(flags, true)
			if err != nil {
				return err
			}
			return app.RunTask(cmd.Context(), func(ctx context.Context) error {
				out, err := app.Invoke(ctx, args[0], value)
				if err != nil {
					return describe(err)
				}
				return writeOutput(cmd.OutOrStdout(), out, raw)
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "pipeline input as JSON (a bare word is taken as a string)")
	cmd.Flags().StringVarP(&inputFile, "input-file", "f", "", "read JSON input from a file, - for stdin")
	cmd.Flags().BoolVar(&raw, "raw", false, "print string outputs without JSON quoting")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")
	return cmd
}

// readInput decodes the pipeline input. JSON objects become envelopes;
// text that is not valid JSON is passed through as a string.
func readInput(stdin io.Reader, input, inputFile string) (any, error) {
	data := []byte(input)
	switch inputFile {
	case "":
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		data = b
	default:
		b, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, err
		}
		data = b
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return op.Envelope{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text, nil
	}
	if m, ok := v.(map[string]any); ok {
		return op.Envelope(m), nil
	}
	return v, nil
}

func writeOutput(w io.Writer, out any, raw bool) error {
	if s, ok := out.(string); ok && raw {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// describe turns a pipeline failure into a one-line error with its code.
func describe(err error) error {
	var appErr *apperrors.AppError
	if ae, ok := err.(*apperrors.AppError); ok {
		appErr = ae
	} else {
		appErr = op.ToAppError(err)
	}
	return fmt.Errorf("%s: %s", appErr.Code, appErr.Message)
}
