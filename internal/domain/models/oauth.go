package models

import (
	"time"

	"github.com/goodhang/authcore/pkg/constants"
)

// CredentialStatus tracks whether a stored integration credential is usable.
type CredentialStatus string

const (
	// CredentialStatusActive marks a credential believed to be valid.
	CredentialStatusActive CredentialStatus = "active"

	// CredentialStatusFailed marks a credential the provider has invalidated.
	// Failed credentials are kept, not deleted, so the UI can surface a
	// reconnect prompt instead of the integration silently vanishing.
	CredentialStatusFailed CredentialStatus = "failed"
)

// OAuthCredential is the stored token set for one (user, integration) pair.
type OAuthCredential struct {
	Provider        string           `json:"provider"`
	IntegrationSlug string           `json:"integration_slug"`
	AccessToken     string           `json:"access_token"`
	RefreshToken    string           `json:"refresh_token"`
	ExpiresAt       time.Time        `json:"expires_at"`
	Scope           []string         `json:"scope"`
	Status          CredentialStatus `json:"status"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NeedsRefresh reports whether the access token is expired or will expire
// within the safety margin. Expiry is never trusted across process restarts
// without this check.
func (c *OAuthCredential) NeedsRefresh(now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		// No expiry recorded: treat as stale rather than trusting it forever.
		return true
	}
	return !now.Add(constants.AccessTokenExpiryMargin).Before(c.ExpiresAt)
}

// MarkFailed flags the credential as needing re-authorization.
func (c *OAuthCredential) MarkFailed(now time.Time) {
	c.Status = CredentialStatusFailed
	c.UpdatedAt = now
}

// OAuthState is the ephemeral CSRF token bound to one authorization attempt.
// It is consumed and invalidated exactly once when the provider redirects
// back; a missing, expired, or mismatched state fails closed.
type OAuthState struct {
	UserID          string    `json:"user_id"`
	IntegrationSlug string    `json:"integration_slug"`
	Provider        string    `json:"provider"`
	Nonce           string    `json:"nonce"`
	RedirectURI     string    `json:"redirect_uri"`
	IssuedAt        time.Time `json:"issued_at"`
}

// Expired reports whether the state outlived its TTL.
func (s *OAuthState) Expired(now time.Time) bool {
	return now.Sub(s.IssuedAt) > constants.OAuthStateTTL
}
