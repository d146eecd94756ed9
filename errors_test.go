package wsflush

import (
	"errors"
	"testing"

	"github.com/behrlich/wsflush/queue"
)

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	e := &Error{Op: "Submit", Kind: KindWriteFailure, Inner: inner}
	if errors.Unwrap(e) != inner {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(e), inner)
	}
}

func TestError_Is_SameKind(t *testing.T) {
	a := &Error{Kind: KindClosed}
	b := &Error{Kind: KindClosed}
	if !errors.Is(a, b) {
		t.Error("errors of the same Kind should match")
	}
}

func TestError_Is_PoolExhaustionFoldsIntoWriteFailure(t *testing.T) {
	poolErr := &Error{Kind: KindPoolExhaustion}
	if !errors.Is(poolErr, ErrWriteFailure) {
		t.Error("PoolExhaustion should satisfy errors.Is against ErrWriteFailure")
	}
}

func TestClassifySubmitError_Closed(t *testing.T) {
	e := classifySubmitError(queue.ErrClosed)
	if e.Kind != KindClosed {
		t.Errorf("Kind = %v, want KindClosed", e.Kind)
	}
}

func TestClassifySubmitError_QueueFull(t *testing.T) {
	e := classifySubmitError(queue.ErrQueueFull)
	if e.Kind != KindQueueFull {
		t.Errorf("Kind = %v, want KindQueueFull", e.Kind)
	}
}

func TestClassifySubmitError_OtherIsLatchedFailure(t *testing.T) {
	e := classifySubmitError(errors.New("transport exploded"))
	if e.Kind != KindLatchedFailure {
		t.Errorf("Kind = %v, want KindLatchedFailure", e.Kind)
	}
}

func TestNewError_PoolExhaustionClassification(t *testing.T) {
	e := newError("flush", queue.ErrPoolExhaustion)
	if e.Kind != KindPoolExhaustion {
		t.Errorf("Kind = %v, want KindPoolExhaustion", e.Kind)
	}
}

func TestNewError_DefaultsToWriteFailure(t *testing.T) {
	e := newError("flush", errors.New("transport exploded"))
	if e.Kind != KindWriteFailure {
		t.Errorf("Kind = %v, want KindWriteFailure", e.Kind)
	}
}
