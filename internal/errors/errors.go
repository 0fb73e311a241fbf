// Package errors provides standardized error codes for the session client.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (transport, protocol, session, persistence)
//   - error: The specific error type within that domain
//
// Codes are stable so host applications can branch on them without parsing
// messages. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes by domain.
const (
	// Transport domain - connection open/send failures
	CodeTransportOpenFailed = "transport.open_failed" // Dial or handshake failed
	CodeTransportSendFailed = "transport.send_failed" // Failed to write a frame
	CodeTransportClosed     = "transport.closed"      // Transport is not open

	// Protocol domain - malformed or schema-violating inbound packets
	CodeProtocolMalformed      = "protocol.malformed"       // Frame is not valid JSON
	CodeProtocolMissingField   = "protocol.missing_field"   // Mandatory field absent
	CodeProtocolUnexpectedType = "protocol.unexpected_type" // Field present with the wrong shape

	// Session domain - lifecycle and preconditions
	CodeSessionNotInitialized     = "session.not_initialized"     // Manager used before Initialize
	CodeSessionAlreadyInitialized = "session.already_initialized" // Initialize called twice
	CodeSessionInvalidState       = "session.invalid_state"       // Operation not allowed in current state
	CodeSessionNotReady           = "session.not_ready"           // Session is not authenticated

	// Persistence domain - snapshot save/load
	CodePersistenceIOFailed     = "persistence.io_failed"     // Read or write failed
	CodePersistenceEncodeFailed = "persistence.encode_failed" // Snapshot could not be encoded
	CodePersistenceDecodeFailed = "persistence.decode_failed" // Snapshot could not be decoded

	// Storage domain - SQLite archive
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageNotFound    = "storage.not_found"    // Row does not exist

	// Feature domains - host-facing operations gated by configuration
	CodeChatRateLimited   = "chat.rate_limited"  // Too many chat messages per second
	CodeChatDisabled      = "chat.disabled"      // Chat turned off in config
	CodeDeathLinkDisabled = "deathlink.disabled" // DeathLink turned off in config
	CodeConfigInvalid     = "config.invalid"     // Config failed validation

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "protocol.missing_field")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors.

// MissingField creates a "protocol.missing_field" error for a packet command.
func MissingField(cmd string, fields ...string) *CodedError {
	return New(CodeProtocolMissingField,
		fmt.Sprintf("%s packet missing %s", cmd, strings.Join(fields, ", ")))
}

// Malformed creates a "protocol.malformed" error.
func Malformed(reason string) *CodedError {
	return New(CodeProtocolMalformed, reason)
}

// UnexpectedType creates a "protocol.unexpected_type" error.
func UnexpectedType(cmd, field, want string) *CodedError {
	return New(CodeProtocolUnexpectedType,
		fmt.Sprintf("%s packet field %s is not %s", cmd, field, want))
}

// InvalidState creates a "session.invalid_state" error.
// The current state is included so callers can log it without a second lookup.
func InvalidState(operation, state string) *CodedError {
	return New(CodeSessionInvalidState,
		fmt.Sprintf("cannot %s while %s", operation, state))
}

// NotInitialized creates a "session.not_initialized" error.
func NotInitialized() *CodedError {
	return New(CodeSessionNotInitialized, "session manager is not initialized")
}

// NotReady creates a "session.not_ready" error.
func NotReady(operation string) *CodedError {
	return New(CodeSessionNotReady, fmt.Sprintf("cannot %s before the slot is authenticated", operation))
}

// OpenFailed creates a "transport.open_failed" error.
func OpenFailed(uri string, cause error) *CodedError {
	return Wrap(CodeTransportOpenFailed, fmt.Sprintf("open %s failed", uri), cause)
}

// SendFailed creates a "transport.send_failed" error.
func SendFailed(cause error) *CodedError {
	return Wrap(CodeTransportSendFailed, "send failed", cause)
}

// PersistenceIO creates a "persistence.io_failed" error.
func PersistenceIO(operation, target string, cause error) *CodedError {
	return Wrap(CodePersistenceIOFailed, fmt.Sprintf("%s %s", operation, target), cause)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
