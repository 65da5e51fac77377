// Package errors provides structured error handling for sompi.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error, including network failures
	ExitInput      = 2 // Invalid input or key material
	ExitAuth       = 3 // Authentication (vault passphrase) failed
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Permission denied or insufficient funds
)

// SompiError is the structured error type for sompi.
type SompiError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *SompiError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SompiError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for SompiError. Two errors match when their codes match.
func (e *SompiError) Is(target error) bool {
	var t *SompiError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &SompiError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &SompiError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	// ErrInvalidKeyMaterial is fatal: nothing can be derived from the root.
	ErrInvalidKeyMaterial = &SompiError{
		Code:     "INVALID_KEY_MATERIAL",
		Message:  "invalid root key material",
		ExitCode: ExitInput,
	}

	// ErrNetworkUnavailable covers connect failures, transport errors and
	// per-call deadlines. It is never the same thing as a zero balance.
	ErrNetworkUnavailable = &SompiError{
		Code:     "NETWORK_UNAVAILABLE",
		Message:  "ledger query service unavailable",
		ExitCode: ExitGeneral,
	}

	ErrInvalidAddressFormat = &SompiError{
		Code:     "INVALID_ADDRESS_FORMAT",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrAddressNotFound = &SompiError{
		Code:     "ADDRESS_NOT_FOUND",
		Message:  "address not found",
		ExitCode: ExitNotFound,
	}

	ErrInsufficientFunds = &SompiError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds",
		ExitCode: ExitPermission,
	}

	ErrAmountOverflow = &SompiError{
		Code:     "AMOUNT_OVERFLOW",
		Message:  "amount exceeds the representable sompi range",
		ExitCode: ExitInput,
	}

	ErrInvalidAmount = &SompiError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount format",
		ExitCode: ExitInput,
	}

	ErrSnapshotMismatch = &SompiError{
		Code:     "SNAPSHOT_MISMATCH",
		Message:  "ledger snapshot does not match the root key",
		ExitCode: ExitInput,
	}

	ErrSnapshotNotFound = &SompiError{
		Code:     "SNAPSHOT_NOT_FOUND",
		Message:  "ledger snapshot not found",
		ExitCode: ExitNotFound,
	}

	ErrScanCanceled = &SompiError{
		Code:     "SCAN_CANCELED",
		Message:  "discovery scan was canceled",
		ExitCode: ExitGeneral,
	}

	ErrScanInProgress = &SompiError{
		Code:     "SCAN_IN_PROGRESS",
		Message:  "a scan is already running on this session",
		ExitCode: ExitGeneral,
	}

	ErrDecryptionFailed = &SompiError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong passphrase or corrupted file",
		ExitCode: ExitAuth,
	}

	ErrConfigNotFound = &SompiError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &SompiError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrSessionClosed = &SompiError{
		Code:     "SESSION_CLOSED",
		Message:  "wallet session is closed",
		ExitCode: ExitGeneral,
	}
)

// New creates a new SompiError with the given code and message.
func New(code, message string) *SompiError {
	return &SompiError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *SompiError
	if errors.As(err, &se) {
		return &SompiError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SompiError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause attaches an underlying cause to a sentinel, keeping its code.
func WithCause(sentinel *SompiError, cause error) error {
	return &SompiError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *SompiError
	if errors.As(err, &se) {
		return &SompiError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SompiError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *SompiError
	if errors.As(err, &se) {
		return &SompiError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SompiError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// Suggestion returns the suggestion attached to an error, if any.
func Suggestion(err error) string {
	var se *SompiError
	if errors.As(err, &se) {
		return se.Suggestion
	}
	return ""
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *SompiError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *SompiError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
