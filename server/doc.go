// Package server hosts pipelines over HTTP using Gin, with h2c support so
// HTTP/2 clients work without TLS.
//
// # Middleware
//
// Built-in middleware (server/middleware) wraps the whole handler:
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: request ID generation and propagation
//   - CORS: cross-origin resource sharing
//   - BodySizeLimit: request body size limits
//   - Auth: HMAC-signed JWT bearer authentication
//   - RequestLogger: request logging with duration tracking
//
// # Endpoints
//
//   - POST /v1/pipelines/:name/invoke runs a registered pipeline
//   - GET /v1/pipelines lists registered pipelines
//   - GET /health aggregates component health
//
// Failures are answered with the error envelope of the errors package and
// the HTTP status registered for their code.
package server
