package repository

import (
	"context"

	"github.com/goodhang/authcore/internal/domain/models"
)

// StateStore holds issued OAuth state nonces for the duration of one
// authorization round trip.
//
// Consume removes and returns the state for the given nonce in one step, so a
// nonce can be matched at most once regardless of how the match turns out.
// It returns (nil, nil) when the nonce was never issued or already consumed.
type StateStore interface {
	Save(ctx context.Context, state *models.OAuthState) error
	Consume(ctx context.Context, nonce string) (*models.OAuthState, error)
}
