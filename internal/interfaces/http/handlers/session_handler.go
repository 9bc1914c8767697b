package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	appservice "github.com/goodhang/authcore/internal/application/service"
	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/domain/service"
	"github.com/goodhang/authcore/pkg/errors"
)

// pendingSessionTTL bounds how long a fresh sign-in waits for the activation
// step that usually follows it.
const pendingSessionTTL = 15 * time.Minute

// SessionHandler exposes the session state machine over the local API.
type SessionHandler struct {
	sessions *appservice.SessionManager
	identity service.IdentityProvider

	// pending holds the identity session between sign-in and activation so
	// the refresh token never has to round-trip through the webview. Entries
	// are session-scoped bookkeeping, cleared once the flow completes.
	pending *gocache.Cache
}

// NewSessionHandler creates the session handler.
func NewSessionHandler(sessions *appservice.SessionManager, identity service.IdentityProvider) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		identity: identity,
		pending:  gocache.New(pendingSessionTTL, 2*pendingSessionTTL),
	}
}

// sessionView is the wire form of a session snapshot.
type sessionView struct {
	State           string `json:"state"`
	IsAuthenticated bool   `json:"is_authenticated"`
	UserID          string `json:"user_id,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	AccessToken     string `json:"access_token,omitempty"`
	Product         string `json:"product,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

func toView(s models.SessionSnapshot) sessionView {
	view := sessionView{
		State:           string(s.State),
		IsAuthenticated: s.IsAuthenticated(),
		Reason:          s.Reason,
	}
	if s.Session != nil {
		view.UserID = s.Session.UserID
		view.SessionID = s.Session.SessionID
		view.AccessToken = s.Session.AccessToken
		view.Product = string(s.Session.Product)
	}
	return view
}

// GetSession returns the current session snapshot.
func (h *SessionHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, toView(h.sessions.Current()))
}

// CheckSession runs (or joins) a session restore and returns the result.
func (h *SessionHandler) CheckSession(c *gin.Context) {
	snapshot, err := h.sessions.CheckSession(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(snapshot))
}

// SignInRequest is the password sign-in payload.
type SignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignIn performs a password sign-in and installs the session.
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.Validation("invalid_request", "Email and password are required."))
		return
	}

	identitySession, err := h.identity.SignInWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	h.pending.Set(identitySession.UserID, identitySession, gocache.DefaultExpiration)
	h.sessions.SetSession(identitySession.UserID, identitySession.SessionID, identitySession.AccessToken, "")
	c.JSON(http.StatusOK, toView(h.sessions.Current()))
}

// Resume completes an OAuth sign-in: after the provider redirect deposited a
// session in the identity provider's own storage, pick it up and install it.
func (h *SessionHandler) Resume(c *gin.Context) {
	identitySession, err := h.identity.GetSession(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if identitySession == nil {
		respondError(c, errors.Validation("no_session", "No sign-in is waiting to be resumed."))
		return
	}

	h.pending.Set(identitySession.UserID, identitySession, gocache.DefaultExpiration)
	h.sessions.SetSession(identitySession.UserID, identitySession.SessionID, identitySession.AccessToken, "")
	c.JSON(http.StatusOK, toView(h.sessions.Current()))
}

// SignOut clears the device binding and every held session.
func (h *SessionHandler) SignOut(c *gin.Context) {
	h.pending.Flush()
	if err := h.sessions.ClearSession(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UserStatus returns the per-product status for the signed-in user.
func (h *SessionHandler) UserStatus(c *gin.Context) {
	status, err := h.sessions.FetchUserStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// PendingIdentitySession returns the identity session stashed at sign-in for
// the activation step, or nil when none is pending.
func (h *SessionHandler) PendingIdentitySession(userID string) *service.IdentitySession {
	if v, ok := h.pending.Get(userID); ok {
		return v.(*service.IdentitySession)
	}
	return nil
}

// ClearPending drops the session-scoped bookkeeping for userID.
func (h *SessionHandler) ClearPending(userID string) {
	h.pending.Delete(userID)
}
