package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodhang/authcore/internal/config"
	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/infrastructure/monitoring"
	"github.com/goodhang/authcore/internal/infrastructure/statestore"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

const redirectURI = "http://127.0.0.1:8391/oauth/callback/google/gmail"

// ================================================================================
// fakes
// ================================================================================

type fakeCredentialStore struct {
	mu    sync.Mutex
	creds map[string]*models.OAuthCredential
	puts  int
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{creds: make(map[string]*models.OAuthCredential)}
}

func (f *fakeCredentialStore) Get(ctx context.Context, id string) (*models.OAuthCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.creds[id]
	if !ok {
		return nil, nil
	}
	clone := *cred
	return &clone, nil
}

func (f *fakeCredentialStore) Put(ctx context.Context, id string, cred *models.OAuthCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *cred
	f.creds[id] = &clone
	f.puts++
	return nil
}

func (f *fakeCredentialStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, id)
	return nil
}

func (f *fakeCredentialStore) stored(id string) *models.OAuthCredential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds[id]
}

// tokenEndpoint is a fake provider token endpoint counting hits.
type tokenEndpoint struct {
	srv   *httptest.Server
	hits  int32
	gate  chan struct{}
	began chan struct{}

	mu       sync.Mutex
	status   int
	respBody map[string]interface{}
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()
	te := &tokenEndpoint{
		respBody: map[string]interface{}{
			"access_token":  "provider-at",
			"refresh_token": "provider-rt",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "email profile",
		},
	}
	te.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n := atomic.AddInt32(&te.hits, 1); n == 1 && te.began != nil {
			close(te.began)
		}
		if te.gate != nil {
			<-te.gate
		}
		te.mu.Lock()
		status, body := te.status, te.respBody
		te.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(te.srv.Close)
	return te
}

func (te *tokenEndpoint) setStatus(status int) {
	te.mu.Lock()
	te.status = status
	te.mu.Unlock()
}

func newTestBroker(t *testing.T, te *tokenEndpoint, creds *fakeCredentialStore) *Broker {
	t.Helper()
	cfg := config.OAuthConfig{
		Providers: map[string]config.OAuthProviderConfig{
			"google": {
				ClientID:     "client-id",
				ClientSecret: "client-secret",
				AuthURL:      "https://accounts.example.com/authorize",
				TokenURL:     te.srv.URL + "/token",
				Scopes:       []string{"email", "profile"},
			},
		},
	}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	return NewBroker(cfg, statestore.NewMemoryStore(), creds, metrics, logger.NewNop())
}

// issueState walks the front half of the flow and returns the state nonce.
func issueState(t *testing.T, b *Broker) string {
	t.Helper()
	authURL, err := b.GetAuthorizationURL(context.Background(), "google", "gmail", "user-1", redirectURI)
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	return parsed.Query().Get("state")
}

// ================================================================================
// authorization URL
// ================================================================================

func TestGetAuthorizationURL(t *testing.T) {
	b := newTestBroker(t, newTokenEndpoint(t), newFakeCredentialStore())

	authURL, err := b.GetAuthorizationURL(context.Background(), "google", "gmail", "user-1", redirectURI)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, redirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "offline", q.Get("access_type"))
	// 32 bytes of entropy is 43 characters of unpadded base64url.
	assert.GreaterOrEqual(t, len(q.Get("state")), 43)
}

func TestGetAuthorizationURL_StatesAreUnique(t *testing.T) {
	b := newTestBroker(t, newTokenEndpoint(t), newFakeCredentialStore())

	assert.NotEqual(t, issueState(t, b), issueState(t, b))
}

func TestGetAuthorizationURL_UnknownProvider(t *testing.T) {
	b := newTestBroker(t, newTokenEndpoint(t), newFakeCredentialStore())

	_, err := b.GetAuthorizationURL(context.Background(), "myspace", "gmail", "user-1", redirectURI)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

// ================================================================================
// code exchange
// ================================================================================

func TestExchangeCodeForTokens(t *testing.T) {
	te := newTokenEndpoint(t)
	creds := newFakeCredentialStore()
	b := newTestBroker(t, te, creds)

	nonce := issueState(t, b)
	cred, err := b.ExchangeCodeForTokens(context.Background(), "google", "gmail", "auth-code", nonce, redirectURI)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&te.hits))

	assert.Equal(t, "provider-at", cred.AccessToken)
	assert.Equal(t, []string{"email", "profile"}, cred.Scope)
	assert.Equal(t, models.CredentialStatusActive, cred.Status)
	// The returned credential never carries the plaintext refresh token.
	assert.Empty(t, cred.RefreshToken)

	stored := creds.stored(UserIntegrationID("user-1", "gmail"))
	require.NotNil(t, stored)
	assert.Equal(t, "provider-rt", stored.RefreshToken)
}

func TestExchangeCodeForTokens_UnknownState(t *testing.T) {
	te := newTokenEndpoint(t)
	b := newTestBroker(t, te, newFakeCredentialStore())

	_, err := b.ExchangeCodeForTokens(context.Background(), "google", "gmail", "auth-code", "forged-nonce", redirectURI)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	// Fail closed: the provider is never contacted.
	assert.Equal(t, int32(0), atomic.LoadInt32(&te.hits))
}

func TestExchangeCodeForTokens_StateIsSingleUse(t *testing.T) {
	te := newTokenEndpoint(t)
	b := newTestBroker(t, te, newFakeCredentialStore())

	nonce := issueState(t, b)
	_, err := b.ExchangeCodeForTokens(context.Background(), "google", "gmail", "auth-code", nonce, redirectURI)
	require.NoError(t, err)

	_, err = b.ExchangeCodeForTokens(context.Background(), "google", "gmail", "auth-code", nonce, redirectURI)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&te.hits))
}

func TestExchangeCodeForTokens_IntegrationMismatchConsumesState(t *testing.T) {
	te := newTokenEndpoint(t)
	b := newTestBroker(t, te, newFakeCredentialStore())

	nonce := issueState(t, b)
	_, err := b.ExchangeCodeForTokens(context.Background(), "google", "calendar", "auth-code", nonce, redirectURI)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&te.hits))

	// The failed match burned the nonce: the correct integration cannot use it either.
	_, err = b.ExchangeCodeForTokens(context.Background(), "google", "gmail", "auth-code", nonce, redirectURI)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestExchangeCodeForTokens_ExpiredState(t *testing.T) {
	te := newTokenEndpoint(t)
	b := newTestBroker(t, te, newFakeCredentialStore())

	nonce := issueState(t, b)
	b.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err := b.ExchangeCodeForTokens(context.Background(), "google", "gmail", "auth-code", nonce, redirectURI)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&te.hits))
}

func TestExchangeCodeForTokens_RedirectURIMismatch(t *testing.T) {
	te := newTokenEndpoint(t)
	b := newTestBroker(t, te, newFakeCredentialStore())

	nonce := issueState(t, b)
	_, err := b.ExchangeCodeForTokens(context.Background(), "google", "gmail", "auth-code", nonce, "http://evil.example.com/callback")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&te.hits))
}

// ================================================================================
// stored tokens
// ================================================================================

func TestStoreAndGetTokens(t *testing.T) {
	b := newTestBroker(t, newTokenEndpoint(t), newFakeCredentialStore())
	ctx := context.Background()

	in := &models.OAuthCredential{
		Provider:        "google",
		IntegrationSlug: "gmail",
		AccessToken:     "at",
		RefreshToken:    "rt",
		ExpiresAt:       time.Now().Add(time.Hour).UTC(),
		Scope:           []string{"email"},
	}
	id := UserIntegrationID("user-1", "gmail")
	require.NoError(t, b.StoreTokens(ctx, id, in))

	got, err := b.GetTokens(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in.AccessToken, got.AccessToken)
	assert.True(t, in.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, in.Scope, got.Scope)
	assert.Equal(t, models.CredentialStatusActive, got.Status)
	// The refresh token stays inside the broker.
	assert.Empty(t, got.RefreshToken)
}

func TestGetTokens_Absent(t *testing.T) {
	b := newTestBroker(t, newTokenEndpoint(t), newFakeCredentialStore())

	got, err := b.GetTokens(context.Background(), UserIntegrationID("user-1", "gmail"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

// ================================================================================
// GetValidAccessToken
// ================================================================================

func TestGetValidAccessToken_FreshTokenSkipsRefresh(t *testing.T) {
	te := newTokenEndpoint(t)
	creds := newFakeCredentialStore()
	b := newTestBroker(t, te, creds)
	ctx := context.Background()

	id := UserIntegrationID("user-1", "gmail")
	require.NoError(t, b.StoreTokens(ctx, id, &models.OAuthCredential{
		Provider: "google", IntegrationSlug: "gmail",
		AccessToken: "at-fresh", RefreshToken: "rt",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	token, err := b.GetValidAccessToken(ctx, id, "google", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "at-fresh", token)
	assert.Equal(t, int32(0), atomic.LoadInt32(&te.hits))
}

func TestGetValidAccessToken_RefreshesInsideMargin(t *testing.T) {
	te := newTokenEndpoint(t)
	creds := newFakeCredentialStore()
	b := newTestBroker(t, te, creds)
	ctx := context.Background()

	id := UserIntegrationID("user-1", "gmail")
	require.NoError(t, b.StoreTokens(ctx, id, &models.OAuthCredential{
		Provider: "google", IntegrationSlug: "gmail",
		AccessToken: "at-stale", RefreshToken: "rt",
		ExpiresAt: time.Now().Add(30 * time.Second),
	}))

	token, err := b.GetValidAccessToken(ctx, id, "google", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "provider-at", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&te.hits))

	stored := creds.stored(id)
	require.NotNil(t, stored)
	assert.Equal(t, "provider-rt", stored.RefreshToken)
	assert.Equal(t, models.CredentialStatusActive, stored.Status)
}

func TestGetValidAccessToken_NoCredentialNeedsReconnect(t *testing.T) {
	b := newTestBroker(t, newTokenEndpoint(t), newFakeCredentialStore())

	_, err := b.GetValidAccessToken(context.Background(), UserIntegrationID("user-1", "gmail"), "google", "gmail")
	require.Error(t, err)
	assert.True(t, errors.IsDegraded(err))
}

func TestGetValidAccessToken_RejectedRefreshMarksFailed(t *testing.T) {
	te := newTokenEndpoint(t)
	te.setStatus(http.StatusBadRequest)
	creds := newFakeCredentialStore()
	b := newTestBroker(t, te, creds)
	ctx := context.Background()

	id := UserIntegrationID("user-1", "gmail")
	require.NoError(t, b.StoreTokens(ctx, id, &models.OAuthCredential{
		Provider: "google", IntegrationSlug: "gmail",
		AccessToken: "at", RefreshToken: "rt-revoked",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := b.GetValidAccessToken(ctx, id, "google", "gmail")
	require.Error(t, err)
	assert.True(t, errors.IsDegraded(err))

	// Marked failed, not deleted: the refresh token is still there for forensics
	// and the UI can show a reconnect prompt.
	stored := creds.stored(id)
	require.NotNil(t, stored)
	assert.Equal(t, models.CredentialStatusFailed, stored.Status)
	assert.Equal(t, "rt-revoked", stored.RefreshToken)

	// Subsequent calls short-circuit without touching the provider again.
	hitsBefore := atomic.LoadInt32(&te.hits)
	_, err = b.GetValidAccessToken(ctx, id, "google", "gmail")
	require.Error(t, err)
	assert.True(t, errors.IsDegraded(err))
	assert.Equal(t, hitsBefore, atomic.LoadInt32(&te.hits))
}

func TestGetValidAccessToken_ProviderOutageIsTransient(t *testing.T) {
	te := newTokenEndpoint(t)
	te.setStatus(http.StatusInternalServerError)
	creds := newFakeCredentialStore()
	b := newTestBroker(t, te, creds)
	ctx := context.Background()

	id := UserIntegrationID("user-1", "gmail")
	require.NoError(t, b.StoreTokens(ctx, id, &models.OAuthCredential{
		Provider: "google", IntegrationSlug: "gmail",
		AccessToken: "at", RefreshToken: "rt",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	_, err := b.GetValidAccessToken(ctx, id, "google", "gmail")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	// An outage is not an invalidation; the credential stays active.
	assert.Equal(t, models.CredentialStatusActive, creds.stored(id).Status)
}

func TestGetValidAccessToken_ConcurrentCallersRefreshOnce(t *testing.T) {
	te := newTokenEndpoint(t)
	te.gate = make(chan struct{})
	te.began = make(chan struct{})
	creds := newFakeCredentialStore()
	b := newTestBroker(t, te, creds)
	ctx := context.Background()

	id := UserIntegrationID("user-1", "gmail")
	require.NoError(t, b.StoreTokens(ctx, id, &models.OAuthCredential{
		Provider: "google", IntegrationSlug: "gmail",
		AccessToken: "at-stale", RefreshToken: "rt",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	var wg sync.WaitGroup
	tokens := make([]string, 10)

	wg.Add(1)
	go func() {
		defer wg.Done()
		tokens[0], _ = b.GetValidAccessToken(ctx, id, "google", "gmail")
	}()
	<-te.began

	// The refresh is now blocked at the provider; everyone else joins the flight.
	for i := 1; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = b.GetValidAccessToken(ctx, id, "google", "gmail")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(te.gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&te.hits))
	for _, token := range tokens {
		assert.Equal(t, "provider-at", token)
	}
}
