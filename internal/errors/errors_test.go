// Package errors tests for error codes and wrapping behavior.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestAppErrorFormat verifies the error string carries code and message.
func TestAppErrorFormat(t *testing.T) {
	err := New(ErrSyncConflict, "version mismatch on product X")

	if !strings.Contains(err.Error(), string(ErrSyncConflict)) {
		t.Errorf("Expected error string to contain code, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "version mismatch") {
		t.Errorf("Expected error string to contain message, got %q", err.Error())
	}
}

// TestWrapUnwrap verifies wrapped errors preserve the cause.
func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(ErrNetwork, "remote call failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected wrapped error to match its cause")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Expected error string to contain cause, got %q", err.Error())
	}
}

// TestIs verifies code matching through wrapping layers.
func TestIs(t *testing.T) {
	err := Wrap(ErrSyncTimeout, "remote call timed out", fmt.Errorf("deadline exceeded"))
	wrapped := fmt.Errorf("pass failed: %w", err)

	if !Is(wrapped, ErrSyncTimeout) {
		t.Error("Expected Is to find the code through wrapping")
	}
	if Is(wrapped, ErrSyncConflict) {
		t.Error("Expected Is to reject a different code")
	}
	if Is(fmt.Errorf("plain"), ErrSyncTimeout) {
		t.Error("Expected Is to reject a plain error")
	}
}

// TestIsNestedCodes verifies a code buried beneath another coded error
// is still found, and the outer code still matches.
func TestIsNestedCodes(t *testing.T) {
	inner := New(ErrNetwork, "connection reset")
	outer := Wrap(ErrDatabase, "failed to record failure", inner)

	if !Is(outer, ErrNetwork) {
		t.Error("Expected Is to find the inner code beneath another coded error")
	}
	if !Is(outer, ErrDatabase) {
		t.Error("Expected Is to match the outer code")
	}
	if Is(outer, ErrSyncConflict) {
		t.Error("Expected Is to reject a code absent from the chain")
	}
}

// TestCodeOf verifies code extraction.
func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(ErrValidation, "bad payload")); got != ErrValidation {
		t.Errorf("Expected %s, got %s", ErrValidation, got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrInternal {
		t.Errorf("Expected %s for plain error, got %s", ErrInternal, got)
	}
}
