package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("wrapping: %w", Missing("abcd"))
	if !errors.Is(wrapped, &Error{Code: CodeMissing}) {
		t.Fatalf("expected errors.Is to match on Code")
	}
	if errors.Is(wrapped, &Error{Code: CodeIntegrity}) {
		t.Fatalf("expected errors.Is not to match a different Code")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := IoError("/tmp/x", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the cause")
	}
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := DigestCollision("deadbeef")
	msg := err.Error()
	if msg == "" {
		t.Fatalf("expected non-empty message")
	}
}
