package store

import (
	"context"
	"encoding/json"

	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/domain/repository"
	"github.com/goodhang/authcore/internal/infrastructure/secrets"
	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

// CredentialStore persists OAuthCredential records through the secret store,
// one record per user-integration id.
type CredentialStore struct {
	secrets secrets.Store
	logger  logger.Logger
}

var _ repository.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates the credential store.
func NewCredentialStore(s secrets.Store, log logger.Logger) *CredentialStore {
	return &CredentialStore{
		secrets: s,
		logger:  log.WithComponent("store.credentials"),
	}
}

// Get returns the stored credential, or (nil, nil) when none exists or the
// record is unreadable.
func (s *CredentialStore) Get(ctx context.Context, userIntegrationID string) (*models.OAuthCredential, error) {
	var cred *models.OAuthCredential

	err := s.secrets.Acquire(ctx, secretKey(userIntegrationID), func(plaintext []byte) error {
		if plaintext == nil {
			return nil
		}
		var decoded models.OAuthCredential
		if err := json.Unmarshal(plaintext, &decoded); err != nil {
			s.logger.Warn(ctx, "stored credential undecodable, treating as absent",
				logger.String("user_integration_id", userIntegrationID))
			return nil
		}
		cred = &decoded
		return nil
	})
	if err != nil {
		if errors.IsStorage(err) {
			s.logger.Warn(ctx, "credential store unavailable, treating as absent",
				logger.String("user_integration_id", userIntegrationID))
			return nil, nil
		}
		return nil, err
	}
	return cred, nil
}

// Put overwrites the credential record for the integration id.
func (s *CredentialStore) Put(ctx context.Context, userIntegrationID string, cred *models.OAuthCredential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return errors.Internal("encode credential").WithCause(err)
	}
	return s.secrets.Put(ctx, secretKey(userIntegrationID), payload)
}

// Delete removes the credential record for the integration id.
func (s *CredentialStore) Delete(ctx context.Context, userIntegrationID string) error {
	return s.secrets.Delete(ctx, secretKey(userIntegrationID))
}

func secretKey(userIntegrationID string) string {
	return constants.SecretKeyIntegrationPrefix + userIntegrationID
}
