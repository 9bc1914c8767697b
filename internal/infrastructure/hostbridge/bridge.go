// Package hostbridge implements the client for the desktop shell's native
// command endpoint. The shell keeps a legacy bearer-only session in the OS
// keychain; installs that predate refresh-token persistence restore through
// this path.
package hostbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goodhang/authcore/internal/config"
	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/domain/service"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

// Client talks to the desktop shell's command endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

var _ service.HostBridge = (*Client)(nil)

// NewClient creates the host bridge client.
func NewClient(cfg config.HostBridgeConfig, log logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     log.WithComponent("hostbridge.client"),
	}
}

type bridgeSessionResponse struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

// GetSession returns the shell-held session, or nil when none exists.
func (c *Client) GetSession(ctx context.Context) (*service.BridgeSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/commands/get_session", nil)
	if err != nil {
		return nil, errors.Internal("build request").WithCause(err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ErrNetwork("host bridge", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.StatusCode >= 400 {
		io.Copy(io.Discard, res.Body)
		return nil, errors.ErrRemoteStatus("host bridge", res.StatusCode)
	}

	var decoded bridgeSessionResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, errors.ErrNetwork("host bridge", fmt.Errorf("decode response: %w", err))
	}
	if decoded.UserID == "" {
		return nil, nil
	}
	return &service.BridgeSession{
		UserID:    decoded.UserID,
		SessionID: decoded.SessionID,
		Token:     decoded.Token,
	}, nil
}

// ClearSession removes the shell-held session. Clearing an absent session is
// a no-op.
func (c *Client) ClearSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/commands/clear_session", nil)
	if err != nil {
		return errors.Internal("build request").WithCause(err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ErrNetwork("host bridge", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode >= 400 && res.StatusCode != http.StatusNotFound {
		return errors.ErrRemoteStatus("host bridge", res.StatusCode)
	}
	return nil
}

// FetchUserStatus fetches the per-product status for the user.
func (c *Client) FetchUserStatus(ctx context.Context, token, userID string) (*models.UserStatus, error) {
	body, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return nil, errors.Internal("encode request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/commands/fetch_user_status", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal("build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ErrNetwork("host bridge", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		io.Copy(io.Discard, res.Body)
		return nil, errors.ErrRemoteStatus("host bridge", res.StatusCode)
	}

	var status models.UserStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return nil, errors.ErrNetwork("host bridge", fmt.Errorf("decode response: %w", err))
	}
	return &status, nil
}

// Disabled is the HostBridge used when no desktop shell is present (hosted
// dashboard deployment). It reports no legacy session.
type Disabled struct{}

var _ service.HostBridge = Disabled{}

// GetSession always reports no session.
func (Disabled) GetSession(ctx context.Context) (*service.BridgeSession, error) { return nil, nil }

// ClearSession is a no-op.
func (Disabled) ClearSession(ctx context.Context) error { return nil }

// FetchUserStatus is unavailable without a shell.
func (Disabled) FetchUserStatus(ctx context.Context, token, userID string) (*models.UserStatus, error) {
	return nil, errors.Transient("host_bridge_disabled", "user status is unavailable without the desktop shell")
}
