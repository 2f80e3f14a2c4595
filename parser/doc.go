// Package parser turns raw stage output into validated values.
//
// Every parser is an op.Operation and exposes Parse(raw) directly:
//
//	Text()                 plain text from strings, bytes, model responses
//	JSON(), YAML()         structured decoding, fails with *op.ParseError
//	Schema(shape)          decoding plus shape checks, fails with *op.ValidationError
//	JSONSchema(name, doc)  decoding plus JSON Schema checks
//
// Parsers never modify their input, and failures keep the raw input for
// diagnostics.
package parser
