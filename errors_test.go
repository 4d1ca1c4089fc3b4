// errors_test.go: tests for error handling
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"encoding/json"
	goerrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/agilira/go-errors"
)

// Test error code creation and basic properties
func TestErrorCodes(t *testing.T) {
	cause := goerrors.New("connection refused")

	tests := []struct {
		name         string
		errFunc      func() error
		expectedCode errors.ErrorCode
		shouldRetry  bool
	}{
		{
			name:         "InvalidConfig",
			errFunc:      func() error { return NewErrInvalidConfig("WriteDelay", -1, ">= 0") },
			expectedCode: ErrCodeInvalidConfig,
		},
		{
			name:         "MissingStore",
			errFunc:      func() error { return NewErrMissingStore() },
			expectedCode: ErrCodeMissingStore,
		},
		{
			name:         "ReadOnly",
			errFunc:      func() error { return NewErrReadOnly("Put") },
			expectedCode: ErrCodeReadOnly,
		},
		{
			name:         "Closed",
			errFunc:      func() error { return NewErrClosed("Remove") },
			expectedCode: ErrCodeClosed,
		},
		{
			name:         "DrainStopped",
			errFunc:      func() error { return NewErrDrainStopped(3, cause) },
			expectedCode: ErrCodeDrainStopped,
		},
		{
			name:         "StoreUnavailable",
			errFunc:      func() error { return NewErrStoreUnavailable("store", 4, cause) },
			expectedCode: ErrCodeStoreUnavailable,
			shouldRetry:  true,
		},
		{
			name:         "StoreTimeout",
			errFunc:      func() error { return NewErrStoreTimeout("load", time.Second) },
			expectedCode: ErrCodeStoreTimeout,
			shouldRetry:  true,
		},
		{
			name:         "BundleFailed",
			errFunc:      func() error { return NewErrBundleFailed("load", 4, 3) },
			expectedCode: ErrCodeBundleFailed,
		},
		{
			name:         "PanicRecovered",
			errFunc:      func() error { return NewErrPanicRecovered("store", "boom") },
			expectedCode: ErrCodePanicRecovered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.errFunc()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.HasCode(err, tt.expectedCode) {
				t.Errorf("expected code %s, got %s", tt.expectedCode, GetErrorCode(err))
			}
			if IsRetryable(err) != tt.shouldRetry {
				t.Errorf("expected retryable=%v, got %v", tt.shouldRetry, IsRetryable(err))
			}
			if err.Error() == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	timeout := NewErrStoreTimeout("store", time.Second)
	wrapped := fmt.Errorf("flush: %w", NewErrStoreUnavailable("erase", 2, goerrors.New("x")))

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"config", IsConfigError(NewErrInvalidConfig("f", 1, "x")), true},
		{"missing store is config", IsConfigError(NewErrMissingStore()), true},
		{"read-only", IsReadOnly(NewErrReadOnly("Put")), true},
		{"closed", IsClosed(NewErrClosed("Put")), true},
		{"drain stopped", IsDrainStopped(NewErrDrainStopped(1, timeout)), true},
		{"timeout counts as unavailable", IsStoreUnavailable(timeout), true},
		{"timeout", IsStoreTimeout(timeout), true},
		{"unavailable is not timeout", IsStoreTimeout(wrapped), false},
		{"wrapped unavailable", IsStoreUnavailable(wrapped), true},
		{"plain error", IsStoreUnavailable(goerrors.New("plain")), false},
		{"nil", IsClosed(nil), false},
		{"nil retryable", IsRetryable(nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestErrorCausePreserved(t *testing.T) {
	cause := goerrors.New("disk full")
	err := NewErrStoreUnavailable("store", 8, cause)

	if !goerrors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
	if got := errors.RootCause(err); got.Error() != cause.Error() {
		t.Errorf("RootCause = %v, want %v", got, cause)
	}

	timeout := NewErrStoreTimeout("store", time.Second)
	stopped := NewErrDrainStopped(3, timeout)
	if !goerrors.Is(stopped, timeout) {
		t.Error("drain stop should keep the timeout in its chain")
	}
}

func TestGetErrorContext(t *testing.T) {
	err := NewErrStoreUnavailable("erase", 7, goerrors.New("x"))
	ctx := GetErrorContext(err)
	if ctx == nil {
		t.Fatal("expected context")
	}
	if ctx["operation"] != "erase" {
		t.Errorf("operation = %v, want erase", ctx["operation"])
	}
	if ctx["batch"] != 7 {
		t.Errorf("batch = %v, want 7", ctx["batch"])
	}

	if GetErrorContext(nil) != nil {
		t.Error("nil error should have nil context")
	}
	if GetErrorContext(goerrors.New("plain")) != nil {
		t.Error("plain error should have nil context")
	}
	if GetErrorCode(goerrors.New("plain")) != "" {
		t.Error("plain error should have no code")
	}
}

func TestErrorJSONSerialization(t *testing.T) {
	err := NewErrStoreTimeout("load", 250*time.Millisecond)

	data, jsonErr := json.Marshal(err)
	if jsonErr != nil {
		t.Fatalf("failed to marshal error: %v", jsonErr)
	}

	var decoded map[string]interface{}
	if jsonErr := json.Unmarshal(data, &decoded); jsonErr != nil {
		t.Fatalf("failed to unmarshal error JSON: %v", jsonErr)
	}
	if decoded["code"] != string(ErrCodeStoreTimeout) {
		t.Errorf("code = %v, want %s", decoded["code"], ErrCodeStoreTimeout)
	}
}

func BenchmarkNewErrStoreUnavailable(b *testing.B) {
	cause := goerrors.New("x")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = NewErrStoreUnavailable("store", 16, cause)
	}
}
