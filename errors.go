// errors.go: structured error handling for write-behind tier operations
//
// This file provides error types built on the go-errors library, giving every
// failure a stable code, a context map and a retryable flag.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package writebehind

import (
	goerrors "errors"
	"fmt"
	"time"

	"github.com/agilira/go-errors"
)

// Error codes for write-behind operations
const (
	// Configuration errors
	ErrCodeInvalidConfig errors.ErrorCode = "WB_INVALID_CONFIG"
	ErrCodeMissingStore  errors.ErrorCode = "WB_MISSING_STORE"

	// Operation errors
	ErrCodeReadOnly     errors.ErrorCode = "WB_READ_ONLY"
	ErrCodeClosed       errors.ErrorCode = "WB_CLOSED"
	ErrCodeDrainStopped errors.ErrorCode = "WB_DRAIN_STOPPED"

	// Store errors
	ErrCodeStoreUnavailable errors.ErrorCode = "WB_STORE_UNAVAILABLE"
	ErrCodeStoreTimeout     errors.ErrorCode = "WB_STORE_TIMEOUT"

	// Bundler errors
	ErrCodeBundleFailed errors.ErrorCode = "WB_BUNDLE_FAILED"

	// Internal errors
	ErrCodePanicRecovered errors.ErrorCode = "WB_PANIC_RECOVERED"
)

const (
	msgInvalidConfig    = "invalid configuration"
	msgMissingStore     = "a backing store is required"
	msgReadOnly         = "tier is read-only"
	msgClosed           = "tier is closed"
	msgDrainStopped     = "write-behind drain worker stopped after repeated store timeouts"
	msgStoreUnavailable = "backing store operation failed"
	msgStoreTimeout     = "backing store operation timed out"
	msgBundleFailed     = "bundled execution returned an inconsistent result"
	msgPanicRecovered   = "panic recovered in store operation"
)

// NewErrInvalidConfig creates an error for an out-of-range configuration field
func NewErrInvalidConfig(field string, value interface{}, valid string) error {
	return errors.NewWithContext(ErrCodeInvalidConfig, msgInvalidConfig, map[string]interface{}{
		"field":       field,
		"provided":    value,
		"valid_range": valid,
	})
}

// NewErrMissingStore creates an error when a tier is built without a store
func NewErrMissingStore() error {
	return errors.New(ErrCodeMissingStore, msgMissingStore)
}

// NewErrReadOnly creates an error for a mutation against a read-only tier
func NewErrReadOnly(operation string) error {
	return errors.NewWithField(ErrCodeReadOnly, msgReadOnly, "operation", operation)
}

// NewErrClosed creates an error for an operation on a closed tier
func NewErrClosed(operation string) error {
	return errors.NewWithField(ErrCodeClosed, msgClosed, "operation", operation)
}

// NewErrDrainStopped creates the fatal error raised once the drain worker gives up
func NewErrDrainStopped(timeouts int, cause error) error {
	return errors.Wrap(cause, ErrCodeDrainStopped, msgDrainStopped).
		WithContext("consecutive_timeouts", timeouts).
		WithSeverity("critical")
}

// NewErrStoreUnavailable wraps a failed load/store/erase call
func NewErrStoreUnavailable(operation string, batch int, cause error) error {
	return errors.Wrap(cause, ErrCodeStoreUnavailable, msgStoreUnavailable).
		WithContext("operation", operation).
		WithContext("batch", batch).
		AsRetryable()
}

// NewErrStoreTimeout creates an error for a store call exceeding its deadline
func NewErrStoreTimeout(operation string, timeout time.Duration) error {
	return errors.NewWithContext(ErrCodeStoreTimeout, msgStoreTimeout, map[string]interface{}{
		"operation": operation,
		"timeout":   timeout.String(),
	}).AsRetryable()
}

// NewErrBundleFailed creates an error when a bulk call breaks its result contract
func NewErrBundleFailed(operation string, want, got int) error {
	return errors.NewWithContext(ErrCodeBundleFailed, msgBundleFailed, map[string]interface{}{
		"operation": operation,
		"expected":  want,
		"received":  got,
	})
}

// NewErrPanicRecovered creates an error when a store call panics
func NewErrPanicRecovered(operation string, panicValue interface{}) error {
	return errors.NewWithContext(ErrCodePanicRecovered, msgPanicRecovered, map[string]interface{}{
		"operation":   operation,
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// IsConfigError checks if err was raised by configuration validation
func IsConfigError(err error) bool {
	return errors.HasCode(err, ErrCodeInvalidConfig) || errors.HasCode(err, ErrCodeMissingStore)
}

// IsReadOnly checks if err is a read-only rejection
func IsReadOnly(err error) bool {
	return errors.HasCode(err, ErrCodeReadOnly)
}

// IsClosed checks if err reports a closed tier
func IsClosed(err error) bool {
	return errors.HasCode(err, ErrCodeClosed)
}

// IsDrainStopped checks if err reports a stopped drain worker
func IsDrainStopped(err error) bool {
	return errors.HasCode(err, ErrCodeDrainStopped)
}

// IsStoreUnavailable checks if err is a store failure. Timeouts count as failures.
func IsStoreUnavailable(err error) bool {
	return errors.HasCode(err, ErrCodeStoreUnavailable) || errors.HasCode(err, ErrCodeStoreTimeout)
}

// IsStoreTimeout checks if err is a store timeout
func IsStoreTimeout(err error) bool {
	return errors.HasCode(err, ErrCodeStoreTimeout)
}

// IsRetryable checks if the error can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts context from an error
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var wbErr *errors.Error
	if goerrors.As(err, &wbErr) {
		return wbErr.Context
	}
	return nil
}
