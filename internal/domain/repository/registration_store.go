// Package repository defines the storage interfaces implemented under
// internal/infrastructure.
package repository

import (
	"context"

	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/pkg/constants"
)

// RegistrationStore owns the single persisted DeviceRegistration record.
//
// Get returns (nil, nil) when no registration exists or the stored record is
// unreadable; callers treat absence as "not registered", never as a hard
// failure. Put overwrites any prior record (one device, one binding); writes
// are last-writer-wins across processes.
type RegistrationStore interface {
	Get(ctx context.Context) (*models.DeviceRegistration, error)
	Put(ctx context.Context, code, userID string, product constants.Product, refreshToken string) error
	Clear(ctx context.Context) error
}
