package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := NewInvalidRequest("missing note id")
	got := err.Error()
	if !strings.Contains(got, "INVALID_REQUEST") {
		t.Errorf("Error() = %q, want code prefix", got)
	}
	if !strings.Contains(got, "missing note id") {
		t.Errorf("Error() = %q, want message", got)
	}
}

func TestNewNotFound_Details(t *testing.T) {
	err := NewNotFound("abc123")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %s, want %s", err.Code, ErrNotFound)
	}
	if err.Details["identifier"] != "abc123" {
		t.Errorf("Details[identifier] = %v, want abc123", err.Details["identifier"])
	}
}

func TestNewStorage_WrapsCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := NewStorage(cause)
	if err.Code != ErrStorage {
		t.Errorf("Code = %s, want %s", err.Code, ErrStorage)
	}
	if err.Message != "disk I/O error" {
		t.Errorf("Message = %q, want cause message", err.Message)
	}
}

func TestNewStorage_NilCause(t *testing.T) {
	err := NewStorage(nil)
	if err.Message != "storage error" {
		t.Errorf("Message = %q, want fallback message", err.Message)
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewDelivery("webhook returned 500"), ErrDelivery, true},
		{"different code", NewDelivery("webhook returned 500"), ErrStorage, false},
		{"plain error", errors.New("plain"), ErrInternal, false},
		{"nil error", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}
