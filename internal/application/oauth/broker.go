// Package oauth implements the integration broker: a multi-provider OAuth
// 2.0 client used to connect external data-source integrations. It owns
// authorization-URL construction, CSRF state, code exchange, token refresh,
// and encrypted token storage. It is independent of product login.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/goodhang/authcore/internal/config"
	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/domain/repository"
	"github.com/goodhang/authcore/internal/infrastructure/monitoring"
	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

// Broker is the OAuth integration broker.
//
// Plaintext refresh tokens never leave this package: GetTokens redacts them,
// and the only way to turn a stored credential into something usable is
// GetValidAccessToken.
type Broker struct {
	providers map[string]config.OAuthProviderConfig
	states    repository.StateStore
	creds     repository.CredentialStore
	metrics   *monitoring.Metrics
	logger    logger.Logger

	// sf serializes GetValidAccessToken per user-integration id so two
	// near-simultaneous callers cannot both refresh and race on persisting
	// the rotated refresh token.
	sf  singleflight.Group
	now func() time.Time
}

// NewBroker creates the integration broker.
func NewBroker(
	cfg config.OAuthConfig,
	states repository.StateStore,
	creds repository.CredentialStore,
	metrics *monitoring.Metrics,
	log logger.Logger,
) *Broker {
	return &Broker{
		providers: cfg.Providers,
		states:    states,
		creds:     creds,
		metrics:   metrics,
		logger:    log.WithComponent("oauth.broker"),
		now:       time.Now,
	}
}

// UserIntegrationID derives the storage id for a (user, integration) pair.
func UserIntegrationID(userID, integrationSlug string) string {
	return userID + "/" + integrationSlug
}

// GetAuthorizationURL builds the provider authorization URL with a fresh
// single-use state nonce bound to (userID, integrationSlug).
func (b *Broker) GetAuthorizationURL(ctx context.Context, provider, integrationSlug, userID, redirectURI string) (string, error) {
	cfg, err := b.oauthConfig(provider, redirectURI)
	if err != nil {
		return "", err
	}

	nonce, err := newStateNonce()
	if err != nil {
		return "", errors.Internal("generate state nonce").WithCause(err)
	}

	state := &models.OAuthState{
		UserID:          userID,
		IntegrationSlug: integrationSlug,
		Provider:        provider,
		Nonce:           nonce,
		RedirectURI:     redirectURI,
		IssuedAt:        b.now().UTC(),
	}
	if err := b.states.Save(ctx, state); err != nil {
		return "", err
	}

	return cfg.AuthCodeURL(nonce, oauth2.AccessTypeOffline), nil
}

// ExchangeCodeForTokens validates the returned state, exchanges the
// authorization code, and stores the resulting credential.
//
// The state is consumed before anything else: a nonce that was never issued,
// expired, or was issued for a different integration fails closed with a
// security error, without contacting the provider's token endpoint. One
// match attempt invalidates the nonce whether or not the match succeeds.
func (b *Broker) ExchangeCodeForTokens(ctx context.Context, provider, integrationSlug, code, stateNonce, redirectURI string) (*models.OAuthCredential, error) {
	stored, err := b.states.Consume(ctx, stateNonce)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		b.metrics.RecordStateRejection()
		return nil, errors.ErrStateMismatch("state was never issued or already used")
	}
	if stored.Expired(b.now()) {
		b.metrics.RecordStateRejection()
		return nil, errors.ErrStateMismatch("state expired")
	}
	if stored.Provider != provider || stored.IntegrationSlug != integrationSlug {
		b.metrics.RecordStateRejection()
		return nil, errors.ErrStateMismatch("state issued for a different integration")
	}
	if stored.RedirectURI != redirectURI {
		b.metrics.RecordStateRejection()
		return nil, errors.ErrStateMismatch("redirect URI mismatch")
	}

	cfg, err := b.oauthConfig(provider, redirectURI)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, mapProviderError(provider, integrationSlug, err)
	}

	cred := b.credentialFromToken(provider, integrationSlug, token, nil)
	if err := b.creds.Put(ctx, UserIntegrationID(stored.UserID, integrationSlug), cred); err != nil {
		return nil, err
	}

	b.logger.Info(ctx, "integration connected",
		logger.String("provider", provider),
		logger.String("integration", integrationSlug),
		logger.String("user_id", stored.UserID))
	return redacted(cred), nil
}

// RefreshAccessToken exchanges a refresh token for a fresh access token.
// On provider-reported invalidation the caller is handed a reconnect error;
// the stored credential is marked failed by GetValidAccessToken, never
// silently deleted.
func (b *Broker) RefreshAccessToken(ctx context.Context, provider, integrationSlug, refreshToken string) (*models.OAuthCredential, error) {
	cfg, err := b.oauthConfig(provider, "")
	if err != nil {
		return nil, err
	}

	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		b.metrics.RecordIntegrationRefresh(provider, "failed")
		return nil, mapProviderError(provider, integrationSlug, err)
	}

	b.metrics.RecordIntegrationRefresh(provider, "success")
	cred := b.credentialFromToken(provider, integrationSlug, token, nil)
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

// StoreTokens encrypts and persists a credential for the integration id.
func (b *Broker) StoreTokens(ctx context.Context, userIntegrationID string, cred *models.OAuthCredential) error {
	if cred.Status == "" {
		cred.Status = models.CredentialStatusActive
	}
	cred.UpdatedAt = b.now().UTC()
	return b.creds.Put(ctx, userIntegrationID, cred)
}

// GetTokens returns the stored credential with the refresh token redacted,
// or (nil, nil) when none exists. Consumers needing a usable bearer token go
// through GetValidAccessToken instead.
func (b *Broker) GetTokens(ctx context.Context, userIntegrationID string) (*models.OAuthCredential, error) {
	cred, err := b.creds.Get(ctx, userIntegrationID)
	if err != nil || cred == nil {
		return nil, err
	}
	return redacted(cred), nil
}

// GetValidAccessToken is the single entry point for consumers needing a
// bearer token. The expiry check, refresh, and persist sequence runs once
// per integration id regardless of how many callers arrive concurrently, and
// every caller receives the same resulting token.
func (b *Broker) GetValidAccessToken(ctx context.Context, userIntegrationID, provider, integrationSlug string) (string, error) {
	token, err, _ := b.sf.Do(userIntegrationID, func() (interface{}, error) {
		return b.validAccessToken(ctx, userIntegrationID, provider, integrationSlug)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (b *Broker) validAccessToken(ctx context.Context, userIntegrationID, provider, integrationSlug string) (string, error) {
	cred, err := b.creds.Get(ctx, userIntegrationID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", errors.ErrCredentialReconnectRequired(integrationSlug)
	}
	if cred.Status == models.CredentialStatusFailed {
		return "", errors.ErrCredentialReconnectRequired(integrationSlug)
	}

	if !cred.NeedsRefresh(b.now()) {
		return cred.AccessToken, nil
	}

	refreshed, err := b.RefreshAccessToken(ctx, provider, integrationSlug, cred.RefreshToken)
	if err != nil {
		if errors.IsDegraded(err) {
			// The provider rejected the refresh token. Keep the credential,
			// flagged, so the UI can offer a reconnect.
			cred.MarkFailed(b.now().UTC())
			if putErr := b.creds.Put(ctx, userIntegrationID, cred); putErr != nil {
				b.logger.Error(ctx, "failed to mark credential failed", putErr,
					logger.String("integration", integrationSlug))
			}
		}
		return "", err
	}

	if err := b.creds.Put(ctx, userIntegrationID, refreshed); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// ================================================================================
// helpers
// ================================================================================

func (b *Broker) oauthConfig(provider, redirectURI string) (*oauth2.Config, error) {
	p, ok := b.providers[provider]
	if !ok {
		return nil, errors.Validation("provider_unknown",
			fmt.Sprintf("No OAuth provider named %q is configured.", provider))
	}
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}, nil
}

func (b *Broker) credentialFromToken(provider, integrationSlug string, token *oauth2.Token, prior *models.OAuthCredential) *models.OAuthCredential {
	now := b.now().UTC()
	cred := &models.OAuthCredential{
		Provider:        provider,
		IntegrationSlug: integrationSlug,
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		ExpiresAt:       token.Expiry,
		Scope:           scopesFromToken(token),
		Status:          models.CredentialStatusActive,
		UpdatedAt:       now,
	}
	if prior != nil && cred.RefreshToken == "" {
		cred.RefreshToken = prior.RefreshToken
	}
	if cred.ExpiresAt.IsZero() {
		// Some providers omit expires_in. When the access token is a JWT its
		// exp claim is the next best source; the signature is the provider's
		// business, not ours.
		cred.ExpiresAt = expiryFromJWT(token.AccessToken)
	}
	return cred
}

// mapProviderError classifies a token-endpoint failure: a 4xx from the
// provider means the grant is gone (reconnect), everything else is transient.
func mapProviderError(provider, integrationSlug string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return errors.ErrCredentialReconnectRequired(integrationSlug).WithCause(err)
		}
	}
	return errors.ErrNetwork(provider+" token endpoint", err)
}

func scopesFromToken(token *oauth2.Token) []string {
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		return strings.Fields(scope)
	}
	return nil
}

func expiryFromJWT(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func newStateNonce() (string, error) {
	buf := make([]byte, constants.StateNonceBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func redacted(cred *models.OAuthCredential) *models.OAuthCredential {
	clone := *cred
	clone.RefreshToken = ""
	if cred.Scope != nil {
		clone.Scope = append([]string(nil), cred.Scope...)
	}
	return &clone
}
