package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfMatchesWrapped(t *testing.T) {
	base := InsufficientData("walcl missing")
	wrapped := fmt.Errorf("context builder: %w", base)

	kind, ok := KindOf(wrapped)
	if !ok {
		t.Fatalf("expected KindOf to find wrapped *Error")
	}
	if kind != KindInsufficientData {
		t.Errorf("expected KindInsufficientData, got %s", kind)
	}
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := New(KindTimeout, "fetch a")
	b := New(KindTimeout, "fetch b")
	if !errors.Is(a, b) {
		t.Errorf("expected errors of the same Kind to match via errors.Is")
	}

	c := New(KindRunNotFound, "fetch c")
	if errors.Is(a, c) {
		t.Errorf("expected errors of different Kind not to match")
	}
}

func TestKindOfUnrelatedError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Errorf("expected KindOf to report not-ok for a non-apperr error")
	}
}
