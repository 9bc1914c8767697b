package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOAuthCredential_NeedsRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cred OAuthCredential
		want bool
	}{
		{
			name: "fresh token well before expiry",
			cred: OAuthCredential{AccessToken: "at", ExpiresAt: now.Add(time.Hour)},
			want: false,
		},
		{
			name: "inside the safety margin",
			cred: OAuthCredential{AccessToken: "at", ExpiresAt: now.Add(30 * time.Second)},
			want: true,
		},
		{
			name: "exactly at the margin boundary",
			cred: OAuthCredential{AccessToken: "at", ExpiresAt: now.Add(60 * time.Second)},
			want: true,
		},
		{
			name: "already expired",
			cred: OAuthCredential{AccessToken: "at", ExpiresAt: now.Add(-time.Minute)},
			want: true,
		},
		{
			name: "no recorded expiry is treated as stale",
			cred: OAuthCredential{AccessToken: "at"},
			want: true,
		},
		{
			name: "no access token at all",
			cred: OAuthCredential{ExpiresAt: now.Add(time.Hour)},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cred.NeedsRefresh(now))
		})
	}
}

func TestOAuthCredential_MarkFailed(t *testing.T) {
	now := time.Now().UTC()
	cred := OAuthCredential{Status: CredentialStatusActive, RefreshToken: "rt"}
	cred.MarkFailed(now)

	assert.Equal(t, CredentialStatusFailed, cred.Status)
	assert.Equal(t, now, cred.UpdatedAt)
	// Marking failed keeps the credential; nothing is wiped.
	assert.Equal(t, "rt", cred.RefreshToken)
}

func TestOAuthState_Expired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := OAuthState{IssuedAt: issued}

	assert.False(t, state.Expired(issued.Add(9*time.Minute)))
	assert.True(t, state.Expired(issued.Add(11*time.Minute)))
}

func TestSession_HasAccessToken(t *testing.T) {
	var nilSession *Session
	assert.False(t, nilSession.HasAccessToken())
	assert.False(t, (&Session{}).HasAccessToken())
	assert.True(t, (&Session{AccessToken: "at"}).HasAccessToken())
}
