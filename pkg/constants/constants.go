// Package constants defines system-wide constants for the GoodHang desktop auth core.
package constants

import "time"

// ================================================================================
// Product Constants
// ================================================================================

// Product identifies which product entitlement an activation code unlocks.
type Product string

const (
	// ProductGoodHang is the social-assessment product.
	ProductGoodHang Product = "goodhang"

	// ProductFounderOS is the founder workspace product.
	ProductFounderOS Product = "founder_os"
)

// IsValid reports whether p is a known product.
func (p Product) IsValid() bool {
	return p == ProductGoodHang || p == ProductFounderOS
}

// ================================================================================
// Session State Constants
// ================================================================================

// SessionState represents the lifecycle state of the device session.
type SessionState string

const (
	// StateUnauthenticated indicates no usable registration or session exists.
	StateUnauthenticated SessionState = "unauthenticated"

	// StateRestoring indicates a startup restore is in flight.
	StateRestoring SessionState = "restoring"

	// StateAuthenticatedWithToken indicates a live access token is held in memory.
	StateAuthenticatedWithToken SessionState = "authenticated_with_token"

	// StateAuthenticatedWithoutToken indicates the device binding is valid but
	// no live access token could be obtained. Downstream features that need a
	// bearer token must degrade rather than hard-fail.
	StateAuthenticatedWithoutToken SessionState = "authenticated_without_token"

	// StateError indicates an unrecoverable restore failure.
	StateError SessionState = "error"
)

// IsAuthenticated reports whether the state counts as signed in.
func (s SessionState) IsAuthenticated() bool {
	return s == StateAuthenticatedWithToken || s == StateAuthenticatedWithoutToken
}

// ================================================================================
// Timeout and TTL Constants
// ================================================================================

const (
	// RemoteCallTimeout bounds every identity-provider and activation-service call.
	RemoteCallTimeout = 10 * time.Second

	// AccessTokenExpiryMargin is the safety margin before expiresAt at which a
	// stored integration access token is refreshed instead of used.
	AccessTokenExpiryMargin = 60 * time.Second

	// OAuthStateTTL is the lifetime of an issued authorization state nonce.
	OAuthStateTTL = 10 * time.Minute

	// OAuthStateCleanupInterval is how often expired state entries are purged
	// from the in-memory store.
	OAuthStateCleanupInterval = 5 * time.Minute

	// StateNonceBytes is the entropy of the CSRF state nonce (256 bits).
	StateNonceBytes = 32
)

// ================================================================================
// Secret Store Constants
// ================================================================================

const (
	// SecretKeyRegistration is the secret-store key holding the device registration.
	SecretKeyRegistration = "device_registration"

	// SecretKeyIntegrationPrefix prefixes per-integration credential records.
	SecretKeyIntegrationPrefix = "integration_tokens/"

	// SecretFileMode is the permission mask for encrypted secret files.
	SecretFileMode = 0o600

	// SecretDirMode is the permission mask for the secret directory.
	SecretDirMode = 0o700
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type used for context values set by this module.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation id.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyUserID carries the authenticated user id, when known.
	ContextKeyUserID ContextKey = "user_id"
)

// ================================================================================
// Log Levels
// ================================================================================

// LogLevel represents a logging severity level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// ParseLogLevel maps a config string to a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	case "fatal":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// ================================================================================
// Deep Link Constants
// ================================================================================

const (
	// DeepLinkScheme is the URL scheme registered by the desktop shell.
	DeepLinkScheme = "goodhang"

	// DeepLinkActivatePrefix is the path prefix carrying an activation code.
	DeepLinkActivatePrefix = "/activate/"
)
