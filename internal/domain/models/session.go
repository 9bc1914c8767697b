package models

import "github.com/goodhang/authcore/pkg/constants"

// Session is the in-memory session for the current process. It is never
// persisted as plaintext; only the refresh token inside the device
// registration survives a restart, and the session is re-derived from it.
type Session struct {
	UserID      string
	SessionID   string
	AccessToken string // empty in AuthenticatedWithoutToken
	Product     constants.Product
}

// HasAccessToken reports whether a live bearer token is available.
func (s *Session) HasAccessToken() bool {
	return s != nil && s.AccessToken != ""
}

// SessionSnapshot is the externally visible session state: the state machine
// position plus the session fields safe to hand to the UI. The access token
// is included because the dashboard needs it for bearer calls; it still never
// leaves process memory via this type.
type SessionSnapshot struct {
	State   constants.SessionState
	Session *Session
	// Reason carries the failure description when State is StateError.
	Reason string
}

// IsAuthenticated reports whether the snapshot counts as signed in.
func (s SessionSnapshot) IsAuthenticated() bool {
	return s.State.IsAuthenticated()
}
