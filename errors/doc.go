// Package errors provides the structured error type shared by every opkit
// surface. Pipeline failures (package op) convert into an AppError carrying a
// machine-readable code, a retryable flag and the HTTP status a host should
// answer with.
package errors
