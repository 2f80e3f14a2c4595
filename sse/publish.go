package sse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kbukum/opkit/op"
)

// Publish returns a Middleware reporting each invocation of the wrapped
// operation to b, using the invocation ID as the topic.
func Publish(b Broadcaster) op.Middleware {
	return func(inner op.Operation) op.Operation {
		return &publishingOp{inner: inner, b: b}
	}
}

type publishingOp struct {
	inner op.Operation
	b     Broadcaster
}

func (p *publishingOp) Name() string { return p.inner.Name() }

func (p *publishingOp) Invoke(ctx context.Context, input any) (any, error) {
	id := op.InvocationID(ctx)
	start := time.Now()
	p.emit(Event{Type: EventStarted, InvocationID: id, Operation: p.inner.Name(), Time: start})

	out, err := p.inner.Invoke(ctx, input)

	ev := Event{
		Type:         EventCompleted,
		InvocationID: id,
		Operation:    p.inner.Name(),
		DurationMS:   float64(time.Since(start).Microseconds()) / 1000,
		Time:         time.Now(),
	}
	if err != nil {
		ev.Type = EventFailed
		ev.Code = string(op.ToAppError(err).Code)
		ev.Error = err.Error()
	}
	p.emit(ev)
	return out, err
}

func (p *publishingOp) emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	p.b.Publish(ev.InvocationID, data)
}
