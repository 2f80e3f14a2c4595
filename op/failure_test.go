package op

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	apperrors "github.com/kbukum/opkit/errors"
)

func TestFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"operation", Fail("fmt", errBoom), "fmt: boom"},
		{"operation stage", &OperationFailure{Op: "seq", Stage: 1, Cause: errBoom}, "seq: stage 1: boom"},
		{"parse position", &ParseError{Op: "json", Position: 4, Cause: errBoom}, "json: malformed input at offset 4: boom"},
		{"parse unknown", &ParseError{Op: "json", Position: -1, Cause: errBoom}, "json: malformed input: boom"},
		{"timeout after", &TimeoutFailure{Op: "model", After: time.Second}, "model: timed out after 1s"},
		{"timeout deadline", &TimeoutFailure{Op: "model"}, "model: deadline exceeded"},
		{"cancelled", &CancelledFailure{Op: "model"}, "model: cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	ve := &ValidationError{
		Op: "schema",
		Violations: []Violation{
			{Path: "title", Rule: "required", Message: "is required"},
			{Path: "tags[0]", Rule: "type", Message: "expected string"},
		},
	}
	if !slices.Equal(ve.Fields(), []string{"title", "tags[0]"}) {
		t.Errorf("Fields() = %v", ve.Fields())
	}
	if !ve.Has("title") || ve.Has("body") {
		t.Error("Has() mismatch")
	}
	if !strings.Contains(ve.Error(), "2 violation(s)") || !strings.Contains(ve.Error(), "title: is required") {
		t.Errorf("Error() = %q", ve.Error())
	}
}

func TestAggregateFailure_Message(t *testing.T) {
	agg := &AggregateFailure{Op: "p", Total: 3, Failures: map[string]error{"b": errBoom, "a": errBoom}}
	want := "p: 2 of 3 branches failed: [a: boom; b: boom]"
	if agg.Error() != want {
		t.Errorf("Error() = %q, want %q", agg.Error(), want)
	}
}

func TestCodes(t *testing.T) {
	tests := []struct {
		err interface{ Code() apperrors.ErrorCode }
		want apperrors.ErrorCode
	}{
		{&OperationFailure{}, apperrors.ErrCodeOperationFailed},
		{&ParseError{}, apperrors.ErrCodeParseError},
		{&ValidationError{}, apperrors.ErrCodeValidationFailed},
		{&AggregateFailure{}, apperrors.ErrCodeAggregateFailure},
		{&TimeoutFailure{}, apperrors.ErrCodeTimeout},
		{&CancelledFailure{}, apperrors.ErrCodeCancelled},
	}
	for _, tt := range tests {
		if got := tt.err.Code(); got != tt.want {
			t.Errorf("%T.Code() = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestToAppError(t *testing.T) {
	parse := &ParseError{Op: "json", Raw: "{oops", Position: 1, Cause: errBoom}
	validation := &ValidationError{Op: "schema", Violations: []Violation{{Path: "title", Rule: "required"}}}

	tests := []struct {
		name   string
		err    error
		code   apperrors.ErrorCode
		status int
	}{
		{"generic", Fail("f", errBoom), apperrors.ErrCodeOperationFailed, http.StatusUnprocessableEntity},
		{"parse in sequence", &OperationFailure{Op: "seq", Stage: 2, Cause: parse}, apperrors.ErrCodeParseError, http.StatusBadGateway},
		{"validation in sequence", &OperationFailure{Op: "seq", Stage: 2, Cause: validation}, apperrors.ErrCodeValidationFailed, http.StatusUnprocessableEntity},
		{"aggregate", &AggregateFailure{Op: "p", Total: 2, Failures: map[string]error{"a": parse}}, apperrors.ErrCodeAggregateFailure, http.StatusUnprocessableEntity},
		{"timeout", Fail("f", &TimeoutFailure{Op: "m", After: time.Second}), apperrors.ErrCodeTimeout, http.StatusGatewayTimeout},
		{"cancelled wins", &CancelledFailure{Op: "p", Cause: &AggregateFailure{Op: "p", Failures: map[string]error{}}}, apperrors.ErrCodeCancelled, 499},
		{"wrapped app error", Fail("model", apperrors.RateLimited()), apperrors.ErrCodeRateLimited, http.StatusTooManyRequests},
		{"foreign", errBoom, apperrors.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae := ToAppError(tt.err)
			if ae.Code != tt.code {
				t.Errorf("Code = %s, want %s", ae.Code, tt.code)
			}
			if ae.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", ae.HTTPStatus, tt.status)
			}
			if ae.Message != tt.err.Error() {
				t.Errorf("Message = %q, want full failure text", ae.Message)
			}
			if !errors.Is(ae, tt.err) {
				t.Error("AppError does not wrap the failure")
			}
		})
	}

	if ToAppError(nil) != nil {
		t.Error("ToAppError(nil) should be nil")
	}
}

func TestToAppError_Details(t *testing.T) {
	agg := &AggregateFailure{Op: "p", Total: 2, Failures: map[string]error{"body": errBoom}}
	ae := ToAppError(&OperationFailure{Op: "outer", Stage: 0, Cause: agg})

	if got := ae.Details["failed"].([]string); !slices.Equal(got, []string{"body"}) {
		t.Errorf("failed = %v", got)
	}
	if got := ae.Details["path"].([]string); !slices.Equal(got, []string{"outer[0]", "p"}) {
		t.Errorf("path = %v", got)
	}

	long := strings.Repeat("x", 600)
	pe := ToAppError(&ParseError{Op: "json", Raw: long, Position: -1, Cause: errBoom})
	if raw := pe.Details["raw"].(string); len(raw) != maxRawDetail+3 {
		t.Errorf("raw detail not truncated: %d", len(raw))
	}
}

func TestContextFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := contextFailure(ctx, "x", nil)
	if _, ok := err.(*CancelledFailure); !ok {
		t.Errorf("expected *CancelledFailure, got %T", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected context.Canceled cause")
	}

	dctx, dcancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer dcancel()
	err = contextFailure(dctx, "x", fmt.Errorf("wrapped"))
	if _, ok := err.(*TimeoutFailure); !ok {
		t.Errorf("expected *TimeoutFailure, got %T", err)
	}
}
