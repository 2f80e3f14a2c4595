package op

import (
	"context"
	"fmt"
	"strings"
)

// Sequence chains stages so the output of one becomes the input of the next.
type Sequence struct {
	name   string
	stages []Operation
}

// NewSequence builds a Sequence. An empty name is derived from the stage
// names joined by " | ".
func NewSequence(name string, stages ...Operation) (*Sequence, error) {
	if len(stages) == 0 {
		return nil, ErrEmptySequence
	}
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("op: sequence stage %d: %w", i, ErrNilOperation)
		}
	}
	if name == "" {
		names := make([]string, len(stages))
		for i, s := range stages {
			names[i] = s.Name()
		}
		name = strings.Join(names, " | ")
	}
	return &Sequence{name: name, stages: append([]Operation(nil), stages...)}, nil
}

func (s *Sequence) Name() string { return s.name }

// Stages returns a copy of the stage list.
func (s *Sequence) Stages() []Operation { return append([]Operation(nil), s.stages...) }

// Len returns the number of stages.
func (s *Sequence) Len() int { return len(s.stages) }

// Invoke runs the stages in order. The first failing stage stops the chain;
// its failure is returned wrapped in an *OperationFailure carrying the stage
// index. Cancellation is observed before each stage starts.
func (s *Sequence) Invoke(ctx context.Context, input any) (any, error) {
	current := input
	for i, stage := range s.stages {
		if ctx.Err() != nil {
			return nil, &OperationFailure{Op: s.name, Stage: i, Cause: contextFailure(ctx, stage.Name(), nil)}
		}

		out, err := stage.Invoke(ctx, current)
		if err != nil {
			if interruptedBy(ctx, err) {
				err = contextFailure(ctx, stage.Name(), err)
			}
			return nil, &OperationFailure{Op: s.name, Stage: i, Cause: err}
		}
		current = out
	}
	return current, nil
}

// Compose joins a and b into a sequence. When a is already a *Sequence the
// result is a new flattened sequence of a's stages followed by b; a itself is
// left unchanged. Compose panics on nil operations.
func Compose(a, b Operation) Operation {
	if a == nil || b == nil {
		panic(ErrNilOperation)
	}
	var stages []Operation
	if seq, ok := a.(*Sequence); ok {
		stages = append(seq.Stages(), b)
	} else {
		stages = []Operation{a, b}
	}
	seq, _ := NewSequence("", stages...)
	return seq
}

// Pipe folds Compose over ops. A single operation is returned as is.
func Pipe(ops ...Operation) (Operation, error) {
	if len(ops) == 0 {
		return nil, ErrEmptySequence
	}
	for i, o := range ops {
		if o == nil {
			return nil, fmt.Errorf("op: pipe stage %d: %w", i, ErrNilOperation)
		}
	}
	out := ops[0]
	for _, o := range ops[1:] {
		out = Compose(out, o)
	}
	return out, nil
}
