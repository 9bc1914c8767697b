package models

import (
	"time"

	"github.com/goodhang/authcore/pkg/constants"
)

// DeviceRegistration is the persisted binding between this install and a user
// account: activation code, user id, product entitlement, and the long-lived
// refresh token. Exactly one record exists per installed device. It is owned
// by the registration store and written only through it.
type DeviceRegistration struct {
	ActivationCode string             `json:"activation_code"`
	UserID         string             `json:"user_id"`
	Product        constants.Product  `json:"product"`
	RefreshToken   string             `json:"refresh_token"`
	RegisteredAt   time.Time          `json:"registered_at"`
}

// NewDeviceRegistration creates a registration stamped with the current time.
func NewDeviceRegistration(activationCode, userID string, product constants.Product, refreshToken string) *DeviceRegistration {
	return &DeviceRegistration{
		ActivationCode: activationCode,
		UserID:         userID,
		Product:        product,
		RefreshToken:   refreshToken,
		RegisteredAt:   time.Now().UTC(),
	}
}

// IsComplete reports whether the record carries the fields a restore needs.
// A record missing its code or user id is treated as absent by the store.
func (r *DeviceRegistration) IsComplete() bool {
	return r != nil && r.ActivationCode != "" && r.UserID != "" && r.Product.IsValid()
}

// HasRefreshToken reports whether a refresh token is stored. Legacy installs
// registered before token persistence have none and restore through the host
// bridge instead.
func (r *DeviceRegistration) HasRefreshToken() bool {
	return r != nil && r.RefreshToken != ""
}
