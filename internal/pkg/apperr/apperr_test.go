package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "document not found")
	if got := KindOf(err); got != KindNotFound {
		t.Fatalf("KindOf = %s, want %s", got, KindNotFound)
	}
	wrapped := fmt.Errorf("load document: %w", err)
	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("KindOf through wrap = %s, want %s", got, KindNotFound)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("KindOf plain = %s, want %s", got, KindInternal)
	}
	if got := KindOf(nil); got != KindInternal {
		t.Fatalf("KindOf nil = %s, want %s", got, KindInternal)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindTransient, cause, "embed batch")
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause lost")
	}
	if err.Message() != "embed batch" {
		t.Fatalf("unexpected message: %s", err.Message())
	}
}

func TestIsMatchesOnKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindInvalidQuery, "bad top_k"))
	if !errors.Is(err, New(KindInvalidQuery, "")) {
		t.Fatal("expected kind match")
	}
	if errors.Is(err, New(KindNotFound, "")) {
		t.Fatal("unexpected kind match")
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", New(KindNotFound, "gone"))
	if !IsKind(err, KindNotFound) {
		t.Fatal("expected kind match through wrap")
	}
	if IsKind(err, KindTransient) {
		t.Fatal("unexpected kind match")
	}
	if !IsKind(errors.New("plain"), KindInternal) {
		t.Fatal("plain errors classify as internal")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{New(KindTransient, "timeout"), true},
		{errors.New("raw db error"), true},
		{New(KindModel, "rejected"), false},
		{New(KindEmptyDocument, "no chunks"), false},
		{New(KindInvalid, "bad payload"), false},
		{New(KindConfiguration, "no key"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
