// Package service defines the interfaces for the remote collaborators the
// session core depends on: the identity provider, the activation key
// service, and the desktop shell's native host bridge.
package service

import (
	"context"

	"github.com/goodhang/authcore/internal/domain/models"
)

// ================================================================================
// Identity Provider
// ================================================================================

// IdentitySession is the token set the identity provider returns.
type IdentitySession struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// IdentityProvider is the remote service performing sign-in and issuing and
// refreshing short-lived access tokens plus long-lived refresh tokens.
type IdentityProvider interface {
	// SignInWithPassword performs a password sign-in.
	SignInWithPassword(ctx context.Context, email, password string) (*IdentitySession, error)

	// RefreshSession exchanges a refresh token for a fresh token set. The
	// provider may rotate the refresh token; callers must persist the returned
	// one when it differs from what they sent.
	RefreshSession(ctx context.Context, refreshToken string) (*IdentitySession, error)

	// GetSession returns the session the provider's own storage holds after an
	// OAuth redirect, or nil when none exists.
	GetSession(ctx context.Context) (*IdentitySession, error)
}

// ================================================================================
// Activation Key Service
// ================================================================================

// AssessmentPreview is the teaser shown before a code is claimed.
type AssessmentPreview struct {
	Tier              string `json:"tier"`
	ArchetypeHint     string `json:"archetypeHint"`
	OverallScoreRange string `json:"overallScoreRange"`
}

// ValidationResult is the outcome of validating an activation code.
type ValidationResult struct {
	Valid     bool
	SessionID string
	Preview   *AssessmentPreview
}

// ClaimResult is the outcome of claiming an activation code.
type ClaimResult struct {
	Success bool
	UserID  string
}

// ActivationService validates and claims one-time activation codes.
//
// Validate is an idempotent read and may be retried on transient failure.
// Claim mutates server state and is never retried automatically; claiming a
// code already bound to the same user succeeds without a second mutation,
// claiming one bound to a different user returns a conflict error.
type ActivationService interface {
	Validate(ctx context.Context, code string) (*ValidationResult, error)
	Claim(ctx context.Context, code, userID string) (*ClaimResult, error)
}

// ================================================================================
// Native Host Bridge
// ================================================================================

// BridgeSession is the legacy bearer-only session held by the desktop shell.
type BridgeSession struct {
	UserID    string
	SessionID string
	Token     string
}

// HostBridge is the back-compat path to the desktop shell's keychain-backed
// session commands. Installs that predate refresh-token persistence restore
// through it.
type HostBridge interface {
	// GetSession returns the shell-held session, or nil when none exists.
	GetSession(ctx context.Context) (*BridgeSession, error)

	// ClearSession removes the shell-held session. Clearing an absent session
	// is a no-op.
	ClearSession(ctx context.Context) error

	// FetchUserStatus fetches the per-product status for the user. userID may
	// be empty when the token alone identifies the user.
	FetchUserStatus(ctx context.Context, token, userID string) (*models.UserStatus, error)
}
