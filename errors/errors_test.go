package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"no connection", ErrNoConnection, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"cache unavailable", ErrCacheUnavailable, true},
		{"invalid data", ErrInvalidData, false},
		{"invalid config", ErrInvalidConfig, false},
		{"wrapped transient", WrapTransient(fmt.Errorf("boom"), "Adapter", "Append", "write"), true},
		{"wrapped fatal", WrapFatal(fmt.Errorf("boom"), "Adapter", "Open", "connect"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsTransient(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"body required", ErrBodyRequired, true},
		{"body too long", ErrBodyTooLong, true},
		{"invalid kind", ErrInvalidKind, true},
		{"invalid limit", ErrInvalidLimit, true},
		{"invalid data", ErrInvalidData, true},
		{"connection lost", ErrConnectionLost, false},
		{"wrapped invalid", WrapInvalid(ErrBodyTooLong, "Event", "Validate", "check body"), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsInvalid(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"wrapped fatal", WrapFatal(fmt.Errorf("bind failed"), "Server", "Start", "bind"), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := IsFatal(test.err); result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"invalid wins", ErrBodyTooLong, ErrorInvalid},
		{"fatal config", ErrMissingConfig, ErrorFatal},
		{"unknown defaults transient", fmt.Errorf("something odd"), ErrorTransient},
		{"transient stays transient", ErrConnectionLost, ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if result := Classify(test.err); result != test.expected {
				t.Errorf("expected %v, got %v", test.expected, result)
			}
		})
	}
}

func TestWrap_Format(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(base, "Store", "InsertBatch", "insert rows")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Store.InsertBatch: insert rows failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to the base error")
	}
	if Wrap(nil, "Store", "InsertBatch", "insert rows") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestPartialBatchError(t *testing.T) {
	rowErr := errors.New("constraint violation")
	pe := &PartialBatchError{Inserted: 8, Failed: 2, Errs: []error{rowErr}}

	if !IsPartialBatch(pe) {
		t.Error("expected IsPartialBatch to match")
	}
	if !IsPartialBatch(fmt.Errorf("flush: %w", pe)) {
		t.Error("expected IsPartialBatch to match through wrapping")
	}
	if IsPartialBatch(errors.New("other")) {
		t.Error("unexpected partial batch match")
	}
	if !errors.Is(pe, rowErr) {
		t.Error("expected row error to be reachable via Unwrap")
	}
	if !strings.Contains(pe.Error(), "8 inserted, 2 failed") {
		t.Errorf("unexpected message: %s", pe.Error())
	}
}
