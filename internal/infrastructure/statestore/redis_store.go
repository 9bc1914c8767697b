package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/domain/repository"
	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
)

const redisKeyPrefix = "oauth:state:"

// RedisStore holds issued states in Redis, so the callback can be served by
// any instance of the hosted dashboard.
type RedisStore struct {
	client redis.UniversalClient
}

var _ repository.StateStore = (*RedisStore)(nil)

// NewRedisStore creates the Redis-backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Save stores the encoded state under its nonce with the state TTL.
func (s *RedisStore) Save(ctx context.Context, state *models.OAuthState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Internal("encode oauth state").WithCause(err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+state.Nonce, payload, constants.OAuthStateTTL).Err(); err != nil {
		return errors.ErrNetwork("state store", err)
	}
	return nil
}

// Consume removes and returns the state for the nonce. GETDEL makes the
// lookup and invalidation one atomic step.
func (s *RedisStore) Consume(ctx context.Context, nonce string) (*models.OAuthState, error) {
	payload, err := s.client.GetDel(ctx, redisKeyPrefix+nonce).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.ErrNetwork("state store", err)
	}

	var state models.OAuthState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Internal(fmt.Sprintf("decode oauth state: %v", err))
	}
	return &state, nil
}
