package repository

import (
	"context"

	"github.com/goodhang/authcore/internal/domain/models"
)

// CredentialStore persists OAuthCredential records, one per user-integration
// id, encrypted at rest. Get returns (nil, nil) when no credential exists.
type CredentialStore interface {
	Get(ctx context.Context, userIntegrationID string) (*models.OAuthCredential, error)
	Put(ctx context.Context, userIntegrationID string, cred *models.OAuthCredential) error
	Delete(ctx context.Context, userIntegrationID string) error
}
