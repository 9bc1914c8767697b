// Package identity implements the HTTP client for the identity provider:
// password sign-in, session refresh, and post-redirect session pickup.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/goodhang/authcore/internal/config"
	"github.com/goodhang/authcore/internal/domain/service"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

// Client talks to the identity provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     logger.Logger
}

var _ service.IdentityProvider = (*Client)(nil)

// NewClient creates the identity provider client.
func NewClient(cfg config.IdentityConfig, log logger.Logger) *Client {
	timeout := cfg.IdentityTimeout()
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     log.WithComponent("identity.client"),
	}
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (r *sessionResponse) toSession() *service.IdentitySession {
	return &service.IdentitySession{
		UserID:       r.User.ID,
		SessionID:    r.SessionID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
}

// SignInWithPassword performs a password sign-in. Not retried: sign-in is a
// user-visible mutation and the user decides whether to try again.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*service.IdentitySession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]string{"email": email, "password": password}
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", body, &resp); err != nil {
		return nil, err
	}
	return resp.toSession(), nil
}

// RefreshSession exchanges a refresh token for a fresh token set. A rejected
// refresh token is reported as a degraded-mode error so the caller falls back
// to AuthenticatedWithoutToken instead of signing the user out.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*service.IdentitySession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]string{"refresh_token": refreshToken}
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", body, &resp); err != nil {
		if appErr, ok := errors.AsAppError(err); ok && appErr.Kind() == errors.KindValidation {
			return nil, errors.ErrRefreshTokenInvalid("identity provider").WithCause(err)
		}
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errors.ErrRefreshTokenInvalid("identity provider")
	}
	return resp.toSession(), nil
}

// GetSession returns the session held by the provider after an OAuth
// redirect, or nil when none exists. Idempotent read, retried with backoff.
func (c *Client) GetSession(ctx context.Context) (*service.IdentitySession, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp *sessionResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/session", nil)
		if err != nil {
			return backoff.Permanent(errors.Internal("build request").WithCause(err))
		}
		res, err := c.httpClient.Do(req)
		if err != nil {
			return errors.ErrNetwork("identity provider", err)
		}
		defer res.Body.Close()

		switch {
		case res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotFound:
			resp = nil
			return nil
		case res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests:
			io.Copy(io.Discard, res.Body)
			return errors.ErrRemoteStatus("identity provider", res.StatusCode)
		case res.StatusCode >= 400:
			io.Copy(io.Discard, res.Body)
			return backoff.Permanent(errors.ErrRemoteStatus("identity provider", res.StatusCode))
		}

		var decoded sessionResponse
		if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
			return errors.ErrNetwork("identity provider", fmt.Errorf("decode response: %w", err))
		}
		if decoded.User.ID == "" {
			resp = nil
			return nil
		}
		resp = &decoded
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return resp.toSession(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Internal("encode request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Internal("build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ErrNetwork("identity provider", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		io.Copy(io.Discard, res.Body)
		return errors.ErrRemoteStatus("identity provider", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.ErrNetwork("identity provider", fmt.Errorf("decode response: %w", err))
	}
	return nil
}
