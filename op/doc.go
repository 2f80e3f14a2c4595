// Package op is the composable operation runtime.
//
// Every unit of work implements Operation: a name plus a single
// Invoke(ctx, input) call. Leaves (Func, Typed, Passthrough), composites
// (Sequence, Parallel, Assign) and parsers all satisfy the same interface, so
// any Operation can be a child of any composite.
//
// Building a pipeline:
//
//	format := op.Func("format", func(ctx context.Context, in any) (any, error) {
//		env, _ := op.As[op.Envelope](in)
//		return "Say " + env["word"].(string), nil
//	})
//	p, err := op.Pipe(format, model, parser.Text())
//
// Invoking it through the single entry point:
//
//	out, err := op.Invoke(ctx, p, op.Envelope{"word": "hello"})
//
// Failures surfaced by Invoke are always one of OperationFailure, ParseError,
// ValidationError, AggregateFailure, TimeoutFailure or CancelledFailure.
// ToAppError converts any of them to the structured errors.AppError used by
// hosts.
package op
