// Package activation implements the HTTP client for the activation key
// service, which validates and claims one-time activation codes.
package activation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/goodhang/authcore/internal/config"
	"github.com/goodhang/authcore/internal/domain/service"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

// Client talks to the activation key service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     logger.Logger
}

var _ service.ActivationService = (*Client)(nil)

// NewClient creates the activation service client.
func NewClient(cfg config.ActivationConfig, log logger.Logger) *Client {
	timeout := cfg.ActivationTimeout()
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     log.WithComponent("activation.client"),
	}
}

type validateRequest struct {
	Code string `json:"code"`
}

type validateResponse struct {
	Valid     bool                       `json:"valid"`
	SessionID string                     `json:"sessionId"`
	Preview   *service.AssessmentPreview `json:"preview"`
	Error     string                     `json:"error"`
}

type claimRequest struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

type claimResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Error   string `json:"error"`
}

// Validate checks an activation code. It is an idempotent read: transient
// failures are retried with exponential backoff inside the call deadline.
func (c *Client) Validate(ctx context.Context, code string) (*service.ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp validateResponse
	operation := func() error {
		err := c.postJSON(ctx, "/api/activation/validate", validateRequest{Code: code}, &resp)
		if err != nil && !errors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, err
	}

	if !resp.Valid {
		// An invalid code is a normal outcome, not a transport failure: the
		// restore path reacts by clearing the registration, the activation UI
		// by showing the reason. Callers branch on Valid.
		return &service.ValidationResult{Valid: false}, nil
	}
	return &service.ValidationResult{
		Valid:     true,
		SessionID: resp.SessionID,
		Preview:   resp.Preview,
	}, nil
}

// Claim binds an activation code to a user. Claims mutate server state and
// are never retried automatically; a failed claim surfaces as-is.
func (c *Client) Claim(ctx context.Context, code, userID string) (*service.ClaimResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp claimResponse
	if err := c.postJSON(ctx, "/api/activation/claim", claimRequest{Code: code, UserID: userID}, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, classifyClaimError(resp.Error)
	}
	return &service.ClaimResult{Success: true, UserID: resp.UserID}, nil
}

// classifyClaimError maps the service's error string onto the taxonomy. A
// code held by another account is a conflict the user must resolve by
// switching accounts; everything else is a validation failure.
func classifyClaimError(msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "already claimed") || strings.Contains(lower, "another account") ||
		strings.Contains(lower, "different user") {
		return errors.ErrActivationCodeClaimed("")
	}
	if msg == "" {
		msg = "claim rejected"
	}
	return errors.ErrActivationCodeInvalid(msg)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Internal("encode request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Internal("build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ErrNetwork("activation service", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusConflict:
		// The service reports a code bound to a different account as 409.
		return errors.ErrActivationCodeClaimed("")
	case res.StatusCode >= 400:
		return errors.ErrRemoteStatus("activation service", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.ErrNetwork("activation service", fmt.Errorf("decode response: %w", err))
	}
	return nil
}
