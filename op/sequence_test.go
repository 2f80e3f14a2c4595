package op

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewSequence_Validation(t *testing.T) {
	if _, err := NewSequence("empty"); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("expected ErrEmptySequence, got %v", err)
	}
	if _, err := NewSequence("nil", Passthrough(), nil); !errors.Is(err, ErrNilOperation) {
		t.Errorf("expected ErrNilOperation, got %v", err)
	}
}

func TestNewSequence_DerivedName(t *testing.T) {
	seq, err := NewSequence("", appendOp("a"), upperOp())
	if err != nil {
		t.Fatal(err)
	}
	if seq.Name() != "append-a | upper" {
		t.Errorf("Name() = %q", seq.Name())
	}
	if seq.Len() != 2 {
		t.Errorf("Len() = %d", seq.Len())
	}
}

func TestSequence_Order(t *testing.T) {
	seq, _ := NewSequence("chain", appendOp("a"), appendOp("b"), upperOp())
	out, err := seq.Invoke(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if out != "XAB" {
		t.Errorf("got %v", out)
	}
}

func TestSequence_ShortCircuit(t *testing.T) {
	stage2 := newCounter("stage2", func(in any) (any, error) { return in, nil })
	seq, _ := NewSequence("chain", failOp("stage1"), stage2)

	_, err := seq.Invoke(context.Background(), "x")
	if err == nil {
		t.Fatal("expected failure")
	}
	if n := stage2.calls.Load(); n != 0 {
		t.Errorf("stage2 invoked %d times after stage1 failed", n)
	}

	var of *OperationFailure
	if !errors.As(err, &of) {
		t.Fatalf("expected *OperationFailure, got %T", err)
	}
	if of.Op != "chain" || of.Stage != 0 {
		t.Errorf("unexpected failure %+v", of)
	}
	if !errors.Is(err, errBoom) {
		t.Error("stage cause lost")
	}
}

func TestSequence_StageIndex(t *testing.T) {
	seq, _ := NewSequence("chain", Passthrough(), Passthrough(), failOp("third"))
	_, err := seq.Invoke(context.Background(), 1)
	if of := err.(*OperationFailure); of.Stage != 2 {
		t.Errorf("Stage = %d, want 2", of.Stage)
	}
}

func TestSequence_CancelledBeforeStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stage2 := newCounter("stage2", func(in any) (any, error) { return in, nil })
	stage1 := Func("stage1", func(context.Context, any) (any, error) {
		cancel()
		return "done", nil
	})
	seq, _ := NewSequence("chain", stage1, stage2)

	_, err := seq.Invoke(ctx, nil)
	var cf *CancelledFailure
	if !errors.As(err, &cf) {
		t.Fatalf("expected *CancelledFailure, got %v", err)
	}
	if cf.Op != "stage2" {
		t.Errorf("cancelled at %q, want stage2", cf.Op)
	}
	if stage2.calls.Load() != 0 {
		t.Error("stage2 started after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected context.Canceled in chain")
	}
}

func TestSequence_StageObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := Func("blocking", func(ctx context.Context, _ any) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	seq, _ := NewSequence("chain", blocking)

	_, err := seq.Invoke(ctx, nil)
	var cf *CancelledFailure
	if !errors.As(err, &cf) {
		t.Fatalf("expected *CancelledFailure, got %v", err)
	}
	if cf.Op != "blocking" {
		t.Errorf("Op = %q", cf.Op)
	}
}

func TestSequence_DeadlineIsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	seq, _ := NewSequence("chain", Passthrough())

	_, err := seq.Invoke(ctx, nil)
	var tf *TimeoutFailure
	if !errors.As(err, &tf) {
		t.Fatalf("expected *TimeoutFailure, got %v", err)
	}
}

func TestCompose_FlattensWithoutMutation(t *testing.T) {
	ab := Compose(appendOp("a"), appendOp("b"))
	abc := Compose(ab, appendOp("c"))

	if got := ab.(*Sequence).Len(); got != 2 {
		t.Errorf("left operand mutated: Len() = %d", got)
	}
	if got := abc.(*Sequence).Len(); got != 3 {
		t.Errorf("expected flattened 3 stages, got %d", got)
	}
	out, _ := abc.Invoke(context.Background(), "")
	if out != "abc" {
		t.Errorf("got %v", out)
	}
}

func TestCompose_Associativity(t *testing.T) {
	a, b, c := appendOp("a"), upperOp(), appendOp("c")
	left := Compose(Compose(a, b), c)
	right := Compose(a, Compose(b, c))

	for _, in := range []string{"", "x", "hello"} {
		l, lerr := left.Invoke(context.Background(), in)
		r, rerr := right.Invoke(context.Background(), in)
		if lerr != nil || rerr != nil {
			t.Fatalf("unexpected errors %v, %v", lerr, rerr)
		}
		if l != r {
			t.Errorf("input %q: left %v != right %v", in, l, r)
		}
	}
}

func TestCompose_AssociativityOnFailure(t *testing.T) {
	a, b, c := appendOp("a"), failOp("b"), appendOp("c")
	_, lerr := Compose(Compose(a, b), c).Invoke(context.Background(), "x")
	_, rerr := Compose(a, Compose(b, c)).Invoke(context.Background(), "x")
	if !errors.Is(lerr, errBoom) || !errors.Is(rerr, errBoom) {
		t.Errorf("both groupings must surface the stage failure: %v / %v", lerr, rerr)
	}
	if ToAppError(lerr).Code != ToAppError(rerr).Code {
		t.Error("groupings classified differently")
	}
}

func TestCompose_IdentityLaw(t *testing.T) {
	x := appendOp("!")
	for name, o := range map[string]Operation{
		"left":  Compose(Passthrough(), x),
		"right": Compose(x, Passthrough()),
	} {
		out, err := o.Invoke(context.Background(), "hi")
		want, _ := x.Invoke(context.Background(), "hi")
		if err != nil || out != want {
			t.Errorf("%s identity: got %v, %v; want %v", name, out, err, want)
		}
	}
}

func TestCompose_NilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on nil operand")
		}
	}()
	Compose(nil, Passthrough())
}

func TestPipe(t *testing.T) {
	if _, err := Pipe(); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("expected ErrEmptySequence, got %v", err)
	}
	if _, err := Pipe(Passthrough(), nil); !errors.Is(err, ErrNilOperation) {
		t.Errorf("expected ErrNilOperation, got %v", err)
	}

	single := upperOp()
	if p, _ := Pipe(single); p != single {
		t.Error("Pipe of one operation should return it unchanged")
	}

	p, err := Pipe(appendOp("a"), appendOp("b"), upperOp())
	if err != nil {
		t.Fatal(err)
	}
	if p.(*Sequence).Len() != 3 {
		t.Errorf("expected 3 stages, got %d", p.(*Sequence).Len())
	}
	out, _ := p.Invoke(context.Background(), "x")
	if out != "XAB" {
		t.Errorf("got %v", out)
	}
}

func TestSequence_ParseFailureAfterDeadlineKeepsType(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	pe := &ParseError{Op: "decode", Raw: "{", Position: 1, Cause: errBoom}
	decode := Func("decode", func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, pe
	})
	seq, _ := NewSequence("chain", decode)

	_, err := seq.Invoke(ctx, nil)
	var of *OperationFailure
	if !errors.As(err, &of) || of.Stage != 0 {
		t.Fatalf("expected *OperationFailure at stage 0, got %v", err)
	}
	var got *ParseError
	if !errors.As(err, &got) || got != pe {
		t.Errorf("expected original *ParseError, got %v", err)
	}
	var tf *TimeoutFailure
	if errors.As(err, &tf) {
		t.Errorf("parse failure converted to timeout: %v", err)
	}
}
