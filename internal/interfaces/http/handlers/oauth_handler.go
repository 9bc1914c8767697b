package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goodhang/authcore/internal/application/oauth"
	"github.com/goodhang/authcore/pkg/errors"
)

// OAuthHandler exposes the integration broker: connect URLs, the provider
// redirect endpoint, and bearer-token retrieval for integration consumers.
type OAuthHandler struct {
	broker   *oauth.Broker
	sessions *SessionHandler
}

// NewOAuthHandler creates the OAuth handler.
func NewOAuthHandler(broker *oauth.Broker, sessions *SessionHandler) *OAuthHandler {
	return &OAuthHandler{broker: broker, sessions: sessions}
}

// Connect builds the authorization URL for an integration and returns it for
// the dashboard to open.
func (h *OAuthHandler) Connect(c *gin.Context) {
	provider := c.Param("provider")
	integration := c.Param("integration")
	redirectURI := c.Query("redirect_uri")
	if redirectURI == "" {
		respondError(c, errors.Validation("invalid_request", "redirect_uri is required."))
		return
	}

	snapshot := h.sessions.sessions.Current()
	if snapshot.Session == nil || snapshot.Session.UserID == "" {
		respondError(c, errors.Validation("not_signed_in", "Sign in before connecting an integration."))
		return
	}

	authURL, err := h.broker.GetAuthorizationURL(c.Request.Context(), provider, integration, snapshot.Session.UserID, redirectURI)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL})
}

// Callback is the OAuth redirect endpoint. It validates state, exchanges the
// code, and clears the temporary bookkeeping that resumed the flow.
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	integration := c.Param("integration")
	code := c.Query("code")
	state := c.Query("state")

	if errParam := c.Query("error"); errParam != "" {
		respondError(c, errors.Validation("provider_denied",
			"The provider declined the connection: "+errParam))
		return
	}
	if code == "" || state == "" {
		respondError(c, errors.Validation("invalid_callback", "The callback is missing its code or state parameter."))
		return
	}

	redirectURI := requestURIWithoutQuery(c)
	cred, err := h.broker.ExchangeCodeForTokens(c.Request.Context(), provider, integration, code, state, redirectURI)
	if err != nil {
		respondError(c, err)
		return
	}

	if snapshot := h.sessions.sessions.Current(); snapshot.Session != nil {
		h.sessions.ClearPending(snapshot.Session.UserID)
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":    cred.Provider,
		"integration": cred.IntegrationSlug,
		"scope":       cred.Scope,
		"expires_at":  cred.ExpiresAt,
	})
}

// AccessToken hands a valid bearer token to an integration consumer,
// refreshing behind the scenes when needed.
func (h *OAuthHandler) AccessToken(c *gin.Context) {
	provider := c.Param("provider")
	integration := c.Param("integration")

	snapshot := h.sessions.sessions.Current()
	if snapshot.Session == nil || snapshot.Session.UserID == "" {
		respondError(c, errors.Validation("not_signed_in", "Sign in to use integrations."))
		return
	}

	id := oauth.UserIntegrationID(snapshot.Session.UserID, integration)
	token, err := h.broker.GetValidAccessToken(c.Request.Context(), id, provider, integration)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// requestURIWithoutQuery reconstructs the redirect URI the authorization URL
// was built with, which the token endpoint requires verbatim.
func requestURIWithoutQuery(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
