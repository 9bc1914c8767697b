package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appservice "github.com/goodhang/authcore/internal/application/service"
	"github.com/goodhang/authcore/internal/interfaces/deeplink"
	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
)

// ActivationHandler exposes activation-code validation and redemption.
type ActivationHandler struct {
	activation *appservice.ActivationAppService
	sessions   *SessionHandler
}

// NewActivationHandler creates the activation handler.
func NewActivationHandler(activation *appservice.ActivationAppService, sessions *SessionHandler) *ActivationHandler {
	return &ActivationHandler{activation: activation, sessions: sessions}
}

// ValidateRequest carries the code to check.
type ValidateRequest struct {
	Code string `json:"code" binding:"required"`
}

// Validate checks a code and returns the assessment preview when available.
func (h *ActivationHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation("invalid_request", "An activation code is required."))
		return
	}

	result, err := h.activation.Validate(c.Request.Context(), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":     result.Valid,
		"sessionId": result.SessionID,
		"preview":   result.Preview,
	})
}

// DeepLinkRequest carries an OS-delivered activation URL forwarded by the shell.
type DeepLinkRequest struct {
	URL string `json:"url" binding:"required"`
}

// DeepLink parses a forwarded activation link and validates the embedded code,
// so the shell can route straight into the redemption flow.
func (h *ActivationHandler) DeepLink(c *gin.Context) {
	var req DeepLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation("invalid_request", "A deep link URL is required."))
		return
	}

	activation, err := deeplink.ParseActivation(req.URL)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.activation.Validate(c.Request.Context(), activation.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":      activation.Code,
		"valid":     result.Valid,
		"sessionId": result.SessionID,
		"preview":   result.Preview,
	})
}

// ClaimRequest carries the code and product to redeem.
type ClaimRequest struct {
	Code    string `json:"code" binding:"required"`
	Product string `json:"product" binding:"required"`
}

// Claim redeems the code for the signed-in user and persists the binding.
func (h *ActivationHandler) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation("invalid_request", "An activation code and product are required."))
		return
	}

	snapshot := h.sessions.sessions.Current()
	if snapshot.Session == nil || snapshot.Session.UserID == "" {
		respondError(c, errors.Validation("not_signed_in", "Sign in before redeeming an activation code."))
		return
	}

	identitySession := h.sessions.PendingIdentitySession(snapshot.Session.UserID)
	if identitySession == nil {
		respondError(c, errors.Validation("signin_expired", "Your sign-in expired before activation finished. Sign in again."))
		return
	}

	err := h.activation.Redeem(c.Request.Context(), req.Code, identitySession, constants.Product(req.Product))
	if err != nil {
		respondError(c, err)
		return
	}

	// The flow is complete; drop the session-scoped bookkeeping.
	h.sessions.ClearPending(snapshot.Session.UserID)
	c.JSON(http.StatusOK, toView(h.sessions.sessions.Current()))
}
