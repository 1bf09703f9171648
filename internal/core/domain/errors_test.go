// Package domain defines the core domain models for ZoneMesh.
package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("ZM-TEST-1000", "test message"),
			expected: "[ZM-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("ZM-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[ZM-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("ZM-TEST-1000", "message 1")
	err2 := NewDomainError("ZM-TEST-1000", "message 2")
	err3 := NewDomainError("ZM-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
	if !errors.Is(ErrInstanceFull.WithDetails("1:2"), ErrInstanceFull) {
		t.Error("details must not change identity")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := ErrPeerStore.WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if errors.Unwrap(ErrPeerStore) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestIsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("reserve: %w", ErrInstanceFull)

	if !IsDomainError(wrapped, "") {
		t.Error("expected wrapped domain error to match any code")
	}
	if !IsDomainError(wrapped, "ZM-INST-4091") {
		t.Error("expected code match")
	}
	if IsDomainError(wrapped, "ZM-INST-4040") {
		t.Error("unexpected code match")
	}
	if GetErrorCode(wrapped) != "ZM-INST-4091" {
		t.Errorf("GetErrorCode() = %q", GetErrorCode(wrapped))
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Error("plain error must have no code")
	}
}
