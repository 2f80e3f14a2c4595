package op

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	apperrors "github.com/kbukum/opkit/errors"
)

// OperationFailure wraps the failure of a stage or wrapped function without
// losing the original cause.
type OperationFailure struct {
	// Op is the name of the failing operation or composite.
	Op string
	// Stage is the index of the failing stage inside a Sequence, or -1.
	Stage int
	// Cause is the underlying failure.
	Cause error
}

// Fail wraps cause as an *OperationFailure for the operation called name.
func Fail(name string, cause error) *OperationFailure {
	return &OperationFailure{Op: name, Stage: -1, Cause: cause}
}

func (e *OperationFailure) Error() string {
	if e.Stage >= 0 {
		return fmt.Sprintf("%s: stage %d: %v", e.Op, e.Stage, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *OperationFailure) Unwrap() error { return e.Cause }

func (e *OperationFailure) Code() apperrors.ErrorCode { return apperrors.ErrCodeOperationFailed }

// ParseError reports raw output that could not be decoded.
type ParseError struct {
	Op string
	// Raw is the unmodified input handed to the parser.
	Raw any
	// Position is the byte offset of the syntax error, or -1 when unknown.
	Position int
	Cause    error
}

func (e *ParseError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("%s: malformed input at offset %d: %v", e.Op, e.Position, e.Cause)
	}
	return fmt.Sprintf("%s: malformed input: %v", e.Op, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Code() apperrors.ErrorCode { return apperrors.ErrCodeParseError }

// Violation is one broken shape constraint.
type Violation struct {
	// Path locates the offending value, e.g. "author.name" or "tags[1]".
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ValidationError reports well-formed data that does not conform to its
// declared shape. It lists every violation found.
type ValidationError struct {
	Op         string
	Raw        any
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s: %d violation(s): %s", e.Op, len(e.Violations), strings.Join(parts, "; "))
}

// Fields returns the violated paths in report order.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Path
	}
	return out
}

// Has reports whether path has at least one violation.
func (e *ValidationError) Has(path string) bool {
	return slices.ContainsFunc(e.Violations, func(v Violation) bool { return v.Path == path })
}

func (e *ValidationError) Code() apperrors.ErrorCode { return apperrors.ErrCodeValidationFailed }

// AggregateFailure reports the failed branches of a Parallel composite.
type AggregateFailure struct {
	Op string
	// Total is the number of branches that ran.
	Total int
	// Failures maps each failed branch name to its failure.
	Failures map[string]error
}

func (e *AggregateFailure) Error() string {
	names := e.Branches()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s: %v", n, e.Failures[n])
	}
	return fmt.Sprintf("%s: %d of %d branches failed: [%s]", e.Op, len(names), e.Total, strings.Join(parts, "; "))
}

// Branches returns the failed branch names in sorted order.
func (e *AggregateFailure) Branches() []string {
	return slices.Sorted(maps.Keys(e.Failures))
}

func (e *AggregateFailure) Unwrap() []error {
	names := e.Branches()
	out := make([]error, len(names))
	for i, n := range names {
		out[i] = e.Failures[n]
	}
	return out
}

func (e *AggregateFailure) Code() apperrors.ErrorCode { return apperrors.ErrCodeAggregateFailure }

// TimeoutFailure reports an operation that exceeded its allotted time.
type TimeoutFailure struct {
	Op string
	// After is the configured limit; zero when the deadline came from the caller.
	After time.Duration
	Cause error
}

func (e *TimeoutFailure) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s: timed out after %s", e.Op, e.After)
	}
	return fmt.Sprintf("%s: deadline exceeded", e.Op)
}

func (e *TimeoutFailure) Unwrap() error { return e.Cause }

func (e *TimeoutFailure) Code() apperrors.ErrorCode { return apperrors.ErrCodeTimeout }

// CancelledFailure reports an invocation cancelled before completion.
type CancelledFailure struct {
	Op    string
	Cause error
}

func (e *CancelledFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: cancelled: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: cancelled", e.Op)
}

func (e *CancelledFailure) Unwrap() error { return e.Cause }

func (e *CancelledFailure) Code() apperrors.ErrorCode { return apperrors.ErrCodeCancelled }

// contextFailure converts a finished context into a Timeout or Cancelled
// failure for name. cause is kept when non-nil, otherwise the context error is.
func contextFailure(ctx context.Context, name string, cause error) error {
	if cause == nil {
		cause = context.Cause(ctx)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutFailure{Op: name, Cause: cause}
	}
	return &CancelledFailure{Op: name, Cause: cause}
}

// interruptedBy reports whether err is the result of ctx finishing and has
// not yet been converted into a Timeout or Cancelled failure. Failures that
// merely coincide with a finished context keep their own type.
func interruptedBy(ctx context.Context, err error) bool {
	if ctx.Err() == nil || isContextFailure(err) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isContextFailure(err error) bool {
	var cancelled *CancelledFailure
	var timeout *TimeoutFailure
	return errors.As(err, &cancelled) || errors.As(err, &timeout)
}

// isTaxonomy reports whether err is itself one of the failure types.
func isTaxonomy(err error) bool {
	switch err.(type) {
	case *OperationFailure, *ParseError, *ValidationError, *AggregateFailure, *TimeoutFailure, *CancelledFailure:
		return true
	}
	return false
}

const maxRawDetail = 512

// ToAppError converts a pipeline failure into an AppError. The code reflects
// the most specific failure in the chain: cancellation, then branch
// aggregation, timeout, validation, parse, any wrapped AppError, and finally
// a generic operation failure. The message keeps the full failure path.
func ToAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}

	var (
		cancelled  *CancelledFailure
		aggregate  *AggregateFailure
		timeout    *TimeoutFailure
		validation *ValidationError
		parse      *ParseError
		app        *apperrors.AppError
		failure    *OperationFailure
		ae         *apperrors.AppError
	)

	switch {
	case errors.As(err, &cancelled):
		ae = apperrors.New(apperrors.ErrCodeCancelled, err.Error()).WithDetail("operation", cancelled.Op)
	case errors.As(err, &aggregate):
		branches := make(map[string]any, len(aggregate.Failures))
		for name, f := range aggregate.Failures {
			branches[name] = f.Error()
		}
		ae = apperrors.New(apperrors.ErrCodeAggregateFailure, err.Error()).WithDetails(map[string]any{
			"operation": aggregate.Op,
			"failed":    aggregate.Branches(),
			"branches":  branches,
		})
	case errors.As(err, &timeout):
		ae = apperrors.New(apperrors.ErrCodeTimeout, err.Error()).WithDetail("operation", timeout.Op)
		if timeout.After > 0 {
			ae.WithDetail("after_ms", timeout.After.Milliseconds())
		}
	case errors.As(err, &validation):
		ae = apperrors.New(apperrors.ErrCodeValidationFailed, err.Error()).WithDetails(map[string]any{
			"operation":  validation.Op,
			"violations": validation.Violations,
		})
	case errors.As(err, &parse):
		ae = apperrors.New(apperrors.ErrCodeParseError, err.Error()).WithDetails(map[string]any{
			"operation": parse.Op,
			"position":  parse.Position,
			"raw":       truncate(fmt.Sprint(parse.Raw), maxRawDetail),
		})
	case errors.As(err, &app):
		ae = apperrors.New(app.Code, err.Error()).WithDetails(app.Details)
	case errors.As(err, &failure):
		ae = apperrors.New(apperrors.ErrCodeOperationFailed, err.Error()).WithDetail("operation", failure.Op)
	default:
		ae = apperrors.New(apperrors.ErrCodeInternal, err.Error())
	}

	if errors.As(err, &failure) {
		ae.WithDetail("path", failurePath(err))
	}
	return ae.WithCause(err)
}

// failurePath lists the operation names from the outermost failure inwards,
// annotated with stage indexes where known.
func failurePath(err error) []string {
	var path []string
	for err != nil {
		switch e := err.(type) {
		case *OperationFailure:
			if e.Stage >= 0 {
				path = append(path, fmt.Sprintf("%s[%d]", e.Op, e.Stage))
			} else {
				path = append(path, e.Op)
			}
		case *ParseError:
			path = append(path, e.Op)
		case *ValidationError:
			path = append(path, e.Op)
		case *TimeoutFailure:
			path = append(path, e.Op)
		case *CancelledFailure:
			path = append(path, e.Op)
		case *AggregateFailure:
			path = append(path, e.Op)
			return path
		}
		err = errors.Unwrap(err)
	}
	return path
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
