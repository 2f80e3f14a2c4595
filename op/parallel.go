package op

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Parallel runs named branches against the same input concurrently and
// joins their outputs into an Envelope keyed by branch name.
type Parallel struct {
	name     string
	names    []string
	branches []Operation
	limit    int
}

// ParallelOption configures a Parallel composite.
type ParallelOption func(*Parallel)

// WithMaxConcurrency bounds how many branches run at once. Zero or a
// negative value means unlimited.
func WithMaxConcurrency(n int) ParallelOption {
	return func(p *Parallel) { p.limit = n }
}

// NewParallel builds a Parallel composite. Branch names must be non-empty
// and operations non-nil.
func NewParallel(name string, branches map[string]Operation, opts ...ParallelOption) (*Parallel, error) {
	if len(branches) == 0 {
		return nil, ErrEmptyParallel
	}

	names := slices.Sorted(maps.Keys(branches))
	ops := make([]Operation, len(names))
	for i, n := range names {
		if n == "" {
			return nil, ErrEmptyBranchName
		}
		if branches[n] == nil {
			return nil, fmt.Errorf("op: parallel branch %q: %w", n, ErrNilOperation)
		}
		ops[i] = branches[n]
	}

	if name == "" {
		name = "parallel(" + strings.Join(names, ", ") + ")"
	}

	p := &Parallel{name: name, names: names, branches: ops}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Parallel) Name() string { return p.name }

// Branches returns the branch names in sorted order.
func (p *Parallel) Branches() []string { return slices.Clone(p.names) }

// Invoke starts every branch and waits for all of them to settle. When any
// branch fails the result is an *AggregateFailure naming every failed
// branch; no partial output is returned. A failing branch does not cancel
// its siblings, while cancelling ctx reaches all of them.
func (p *Parallel) Invoke(ctx context.Context, input any) (any, error) {
	results := make([]any, len(p.branches))
	errs := make([]error, len(p.branches))

	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, branch := range p.branches {
		g.Go(func() error {
			results[i], errs[i] = p.runBranch(ctx, branch, cloneInput(input))
			return nil
		})
	}
	_ = g.Wait()

	var agg *AggregateFailure
	for i, err := range errs {
		if err == nil {
			continue
		}
		if agg == nil {
			agg = &AggregateFailure{Op: p.name, Total: len(p.branches), Failures: map[string]error{}}
		}
		agg.Failures[p.names[i]] = err
	}
	if agg != nil {
		if interruptedBy(ctx, agg) {
			return nil, contextFailure(ctx, p.name, agg)
		}
		return nil, agg
	}

	out := make(Envelope, len(p.names))
	for i, n := range p.names {
		out[n] = results[i]
	}
	return out, nil
}

func (p *Parallel) runBranch(ctx context.Context, branch Operation, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &OperationFailure{Op: branch.Name(), Stage: -1, Cause: newPanicError(r)}
		}
	}()

	if ctx.Err() != nil {
		return nil, contextFailure(ctx, branch.Name(), nil)
	}
	return branch.Invoke(ctx, input)
}

// Assign runs branches in parallel and merges their outputs into a copy of
// the input Envelope. The input passes through alongside the new keys.
func Assign(name string, branches map[string]Operation, opts ...ParallelOption) (Operation, error) {
	if name == "" {
		name = "assign(" + strings.Join(slices.Sorted(maps.Keys(branches)), ", ") + ")"
	}
	par, err := NewParallel(name, branches, opts...)
	if err != nil {
		return nil, err
	}
	return &assignOp{par: par}, nil
}

type assignOp struct {
	par *Parallel
}

func (a *assignOp) Name() string { return a.par.name }

func (a *assignOp) Invoke(ctx context.Context, input any) (any, error) {
	env, ok := As[Envelope](input)
	if !ok {
		return nil, Fail(a.par.name, &TypeMismatch{Want: typeName[Envelope](), Got: typeOf(input)})
	}
	out, err := a.par.Invoke(ctx, env)
	if err != nil {
		return nil, err
	}
	return env.Merge(out.(Envelope)), nil
}
