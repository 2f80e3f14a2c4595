package op

import (
	"context"

	"github.com/google/uuid"

	"github.com/kbukum/opkit/logger"
)

// Invoke is the single entry point for running a pipeline. It tags ctx with
// an invocation ID (unless one is present), contains panics, and guarantees
// that any failure is one of the package's failure types.
func Invoke(ctx context.Context, o Operation, input any) (out any, err error) {
	if o == nil {
		return nil, ErrNilOperation
	}
	if logger.InvocationID(ctx) == "" {
		ctx = logger.ContextWithInvocationID(ctx, uuid.NewString())
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &OperationFailure{Op: o.Name(), Stage: -1, Cause: newPanicError(r)}
		}
	}()

	out, err = o.Invoke(ctx, input)
	if err != nil {
		return nil, normalize(ctx, o.Name(), err)
	}
	return out, nil
}

// InvokeAs runs Invoke and converts the output to T.
func InvokeAs[T any](ctx context.Context, o Operation, input any) (T, error) {
	var zero T
	out, err := Invoke(ctx, o, input)
	if err != nil {
		return zero, err
	}
	v, ok := As[T](out)
	if !ok {
		return zero, Fail(o.Name(), &TypeMismatch{Want: typeName[T](), Got: typeOf(out)})
	}
	return v, nil
}

// InvocationID returns the invocation ID assigned by Invoke.
func InvocationID(ctx context.Context) string {
	return logger.InvocationID(ctx)
}

func normalize(ctx context.Context, name string, err error) error {
	if interruptedBy(ctx, err) {
		return contextFailure(ctx, name, err)
	}
	if isTaxonomy(err) {
		return err
	}
	return Fail(name, err)
}
