// Package statestore implements the single-use stores for OAuth state
// nonces: an in-memory store for the desktop process and a Redis store for
// the hosted dashboard, where the redirect may land on another instance.
package statestore

import (
	"context"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/domain/repository"
	"github.com/goodhang/authcore/pkg/constants"
)

// MemoryStore holds issued states in a short-TTL in-process cache.
type MemoryStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

var _ repository.StateStore = (*MemoryStore)(nil)

// NewMemoryStore creates the in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(constants.OAuthStateTTL, constants.OAuthStateCleanupInterval),
	}
}

// Save stores the state under its nonce for the state TTL.
func (s *MemoryStore) Save(ctx context.Context, state *models.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(state.Nonce, state, gocache.DefaultExpiration)
	return nil
}

// Consume removes and returns the state for the nonce. The lookup and delete
// happen under one lock so a nonce can be matched at most once.
func (s *MemoryStore) Consume(ctx context.Context, nonce string) (*models.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, found := s.cache.Get(nonce)
	if !found {
		return nil, nil
	}
	s.cache.Delete(nonce)
	return v.(*models.OAuthState), nil
}
