// Package store implements the persistent stores over the secure secret
// store: the device registration record and per-integration credentials.
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

// RegistrationStore persists the single DeviceRegistration record through the
// secret store's scoped-acquisition API.
type RegistrationStore struct {
	secrets secrets.Store
	logger  logger.Logger
}

var _ repository.RegistrationStore = (*RegistrationStore)(nil)

// NewRegistrationStore creates the registration store.
func NewRegistrationStore(s secrets.Store, log logger.Logger) *RegistrationStore {
	return &RegistrationStore{
		secrets: s,
		logger:  log.WithComponent("store.registration"),
	}
}

// Get returns the stored registration, or (nil, nil) when none exists.
// Unavailable or corrupted storage is logged and reported as absence: the
// worst outcome is that a registered device re-activates, which beats
// crashing the dashboard on launch.
func (s *RegistrationStore) Get(ctx context.Context) (*models.DeviceRegistration, error) {
	var reg *models.DeviceRegistration

	err := s.secrets.Acquire(ctx, constants.SecretKeyRegistration, func(plaintext []byte) error {
		if plaintext == nil {
			return nil
		}
		var decoded models.DeviceRegistration
		if err := json.Unmarshal(plaintext, &decoded); err != nil {
			s.logger.Warn(ctx, "stored registration undecodable, treating as absent")
			return nil
		}
		if !decoded.IsComplete() {
			s.logger.Warn(ctx, "stored registration incomplete, treating as absent")
			return nil
		}
		reg = &decoded
		return nil
	})
	if err != nil {
		if errors.IsStorage(err) {
			s.logger.Warn(ctx, "registration store unavailable, treating as absent")
			return nil, nil
		}
		return nil, err
	}
	return reg, nil
}

// Put overwrites the registration record.
func (s *RegistrationStore) Put(ctx context.Context, code, userID string, product constants.Product, refreshToken string) error {
	reg := models.NewDeviceRegistration(code, userID, product, refreshToken)
	payload, err := json.Marshal(reg)
	if err != nil {
		return errors.Internal("encode registration").WithCause(err)
	}
	return s.secrets.Put(ctx, constants.SecretKeyRegistration, payload)
}

// Clear removes the registration record.
func (s *RegistrationStore) Clear(ctx context.Context) error {
	return s.secrets.Delete(ctx, constants.SecretKeyRegistration)
}
