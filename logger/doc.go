// Package logger provides structured logging for opkit using zerolog.
//
// It supports JSON and console output, level configuration, component-scoped
// loggers and per-invocation context fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "opkit").WithComponent("server")
//	log.Info("pipeline invoked", logger.Fields("pipeline", name))
package logger
