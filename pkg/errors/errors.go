// Package errors defines the structured error types used across the auth core.
// Every failure is classified into one of five kinds so callers can decide
// between recover-locally and surface-to-user without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ================================================================================
// Error Kinds
// ================================================================================

// Kind classifies an error for recovery decisions.
type Kind string

const (
	// KindValidation marks malformed, expired, or consumed inputs (activation
	// codes, callback parameters). Surfaced to the user, never retried.
	KindValidation Kind = "validation"

	// KindConflict marks binding mismatches (code claimed by another account,
	// OAuth state mismatch). Always surfaced, never silently resolved.
	KindConflict Kind = "conflict"

	// KindTransient marks network failures and provider rate limits. Retried
	// with backoff only for idempotent reads.
	KindTransient Kind = "transient"

	// KindDegraded marks failures recovered locally by falling back to a
	// reduced session state (e.g. refresh-token expiry during restore).
	KindDegraded Kind = "degraded"

	// KindStorage marks secure-storage corruption or unavailability. Recovered
	// by treating the stored record as absent, never propagated as a crash.
	KindStorage Kind = "storage"

	// KindInternal marks programming errors and unexpected conditions.
	KindInternal Kind = "internal"
)

// ================================================================================
// AppError
// ================================================================================

// AppError is the structured error type returned by every component.
type AppError struct {
	kind     Kind
	code     string
	message  string
	cause    error
	metadata map[string]interface{}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Kind returns the error classification.
func (e *AppError) Kind() Kind {
	return e.kind
}

// Code returns the machine-readable error code.
func (e *AppError) Code() string {
	return e.code
}

// Message returns the user-facing message.
func (e *AppError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error.
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

// WithMetadata attaches context metadata.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all attached metadata.
func (e *AppError) Metadata() map[string]interface{} {
	return e.metadata
}

// HTTPStatus maps the error kind to an HTTP status for the local API surface.
func (e *AppError) HTTPStatus() int {
	switch e.kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindDegraded:
		return http.StatusOK
	case KindStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError with an explicit kind and code.
func New(kind Kind, code, message string) *AppError {
	return &AppError{kind: kind, code: code, message: message}
}

// ================================================================================
// Constructors per Taxonomy
// ================================================================================

// Validation creates a validation error.
func Validation(code, message string) *AppError {
	return New(KindValidation, code, message)
}

// Conflict creates a conflict error.
func Conflict(code, message string) *AppError {
	return New(KindConflict, code, message)
}

// Transient creates a transient error.
func Transient(code, message string) *AppError {
	return New(KindTransient, code, message)
}

// Degraded creates a degraded-mode error.
func Degraded(code, message string) *AppError {
	return New(KindDegraded, code, message)
}

// Storage creates a storage error.
func Storage(code, message string) *AppError {
	return New(KindStorage, code, message)
}

// Internal creates an internal error.
func Internal(message string) *AppError {
	return New(KindInternal, "internal_error", message)
}

// ================================================================================
// Domain-Specific Constructors
// ================================================================================

// ErrActivationCodeInvalid marks a malformed, expired, or fully consumed code.
func ErrActivationCodeInvalid(reason string) *AppError {
	return Validation("activation_code_invalid",
		fmt.Sprintf("This activation code cannot be used: %s. Check the code and try again.", reason))
}

// ErrActivationCodeClaimed marks a code already bound to a different account.
// The message names the mismatch explicitly so the user signs in with the
// right account instead of retrying blindly.
func ErrActivationCodeClaimed(boundEmailHint string) *AppError {
	msg := "This activation code is already linked to a different account. Sign in with the account that originally redeemed it."
	if boundEmailHint != "" {
		msg = fmt.Sprintf("This activation code is already linked to %s. Sign in with that account to continue.", boundEmailHint)
	}
	return Conflict("activation_code_claimed", msg)
}

// ErrStateMismatch marks an OAuth callback whose state was never issued,
// expired, or was issued for a different integration.
func ErrStateMismatch(reason string) *AppError {
	return Conflict("oauth_state_mismatch",
		"The connection request could not be verified and was rejected for your security. Start the connection again.").
		WithMetadata("reason", reason)
}

// ErrRefreshTokenInvalid marks a refresh token the provider no longer accepts.
func ErrRefreshTokenInvalid(provider string) *AppError {
	return Degraded("refresh_token_invalid",
		"Your saved sign-in has expired. You can keep using cached data; sign in again to sync.").
		WithMetadata("provider", provider)
}

// ErrCredentialReconnectRequired marks a stored integration credential the
// provider has invalidated. The credential is kept, flagged failed, so the UI
// can offer a reconnect.
func ErrCredentialReconnectRequired(integrationSlug string) *AppError {
	return Degraded("integration_reconnect_required",
		fmt.Sprintf("The %s connection needs to be re-authorized.", integrationSlug)).
		WithMetadata("integration", integrationSlug)
}

// ErrSecretStoreUnavailable marks a secure-storage read or write failure.
func ErrSecretStoreUnavailable(op string, cause error) *AppError {
	return Storage("secret_store_unavailable",
		fmt.Sprintf("secure storage %s failed", op)).WithCause(cause)
}

// ErrNetwork marks a failed remote call that is safe to retry.
func ErrNetwork(service string, cause error) *AppError {
	return Transient("network_error",
		fmt.Sprintf("could not reach %s", service)).WithCause(cause)
}

// ErrRemoteStatus marks an unexpected HTTP status from a collaborator.
func ErrRemoteStatus(service string, status int) *AppError {
	kind := KindTransient
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		kind = KindValidation
	}
	return New(kind, "remote_error",
		fmt.Sprintf("%s returned status %d", service, status)).
		WithMetadata("status", status)
}

// ================================================================================
// Predicates
// ================================================================================

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsTransient reports whether err is transient and safe to retry for
// idempotent operations.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsDegraded reports whether err is recoverable by degrading locally.
func IsDegraded(err error) bool { return KindOf(err) == KindDegraded }

// IsStorage reports whether err is a secure-storage failure.
func IsStorage(err error) bool { return KindOf(err) == KindStorage }

// AsAppError attempts to extract an *AppError from err.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
