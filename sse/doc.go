// Package sse streams operation lifecycle events to HTTP clients as
// Server-Sent Events.
//
// Publish is an op.Middleware that reports every start, completion and
// failure to a Hub, keyed by invocation ID. Clients subscribe with a glob
// pattern over invocation IDs through Stream:
//
//	hub := sse.NewHub(log)
//	go hub.Run()
//	defer hub.Stop()
//	engine.GET("/v1/events", sse.Stream(hub, log))
//
// A client connected to /v1/events?invocation=<id> sees only that
// invocation; without the parameter it sees all of them.
package sse
