package errbridge

import (
	"testing"

	"go.uber.org/zap"
)

func TestAddHandlerDispatchesInOrder(t *testing.T) {
	b := New(zap.NewNop(), 0)
	var calls []int

	b.AddHandler(func(code int, msg, file string, line int, ctx any) bool {
		calls = append(calls, 1)
		return false
	}, MaskAll)
	b.AddHandler(func(code int, msg, file string, line int, ctx any) bool {
		calls = append(calls, 2)
		return true
	}, MaskAll)
	b.AddHandler(func(code int, msg, file string, line int, ctx any) bool {
		calls = append(calls, 3)
		return false
	}, MaskAll)

	b.OnError(1, "boom", "f.go", 10, nil)

	if got := len(calls); got != 2 {
		t.Fatalf("handlers invoked = %d, want 2 (third is unreachable after the second stops the chain)", got)
	}
	if calls[0] != 1 || calls[1] != 2 {
		t.Fatalf("call order = %v, want [1 2]", calls)
	}
}

func TestRemoveHandlerDropsOnlyThatEntry(t *testing.T) {
	b := New(zap.NewNop(), 0)
	var first, second bool

	tok := b.AddHandler(func(code int, msg, file string, line int, ctx any) bool {
		first = true
		return false
	}, MaskAll)
	b.AddHandler(func(code int, msg, file string, line int, ctx any) bool {
		second = true
		return false
	}, MaskAll)

	b.RemoveHandler(tok)
	b.OnError(1, "boom", "f.go", 10, nil)

	if first {
		t.Error("removed handler must not be invoked")
	}
	if !second {
		t.Error("remaining handler must still be invoked")
	}
}

func TestMaskFiltersByCode(t *testing.T) {
	b := New(zap.NewNop(), 0)
	var invoked bool

	b.AddHandler(func(code int, msg, file string, line int, ctx any) bool {
		invoked = true
		return false
	}, ErrMask(5))

	b.OnError(6, "boom", "f.go", 10, nil)
	if invoked {
		t.Fatal("handler masked to code 5 must not fire for code 6")
	}

	b.OnError(5, "boom", "f.go", 10, nil)
	if !invoked {
		t.Fatal("handler masked to code 5 must fire for code 5")
	}
}
