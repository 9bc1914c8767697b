package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/domain/service"
	"github.com/goodhang/authcore/internal/infrastructure/monitoring"
	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

func newActivationService(t *testing.T, regs *fakeRegistrationStore, activation *fakeActivation) *ActivationAppService {
	t.Helper()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	sessions := NewSessionManager(context.Background(), regs, &fakeIdentity{}, activation, &fakeBridge{}, metrics, logger.NewNop())
	return NewActivationAppService(regs, activation, sessions, metrics, logger.NewNop())
}

func signedIn() *service.IdentitySession {
	return &service.IdentitySession{
		UserID:       "user-1",
		SessionID:    "sess-1",
		AccessToken:  "at",
		RefreshToken: "rt",
	}
}

func TestValidate_EmptyCode(t *testing.T) {
	svc := newActivationService(t, &fakeRegistrationStore{}, &fakeActivation{})

	_, err := svc.Validate(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRedeem_ClaimsAndPersists(t *testing.T) {
	regs := &fakeRegistrationStore{}
	activation := &fakeActivation{}
	svc := newActivationService(t, regs, activation)

	require.NoError(t, svc.Redeem(context.Background(), "GH-CODE-1", signedIn(), constants.ProductGoodHang))

	assert.Equal(t, int32(1), atomic.LoadInt32(&activation.claimCalls))
	stored := regs.stored()
	require.NotNil(t, stored)
	assert.Equal(t, "GH-CODE-1", stored.ActivationCode)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "rt", stored.RefreshToken)

	current := svc.sessions.Current()
	assert.Equal(t, constants.StateAuthenticatedWithToken, current.State)
	assert.Equal(t, "at", current.Session.AccessToken)
}

func TestRedeem_IdempotentForSameCodeAndUser(t *testing.T) {
	regs := &fakeRegistrationStore{
		reg: models.NewDeviceRegistration("GH-CODE-1", "user-1", constants.ProductGoodHang, "rt-old"),
	}
	activation := &fakeActivation{}
	svc := newActivationService(t, regs, activation)

	require.NoError(t, svc.Redeem(context.Background(), "GH-CODE-1", signedIn(), constants.ProductGoodHang))

	// Re-activating the same binding never hits the claim endpoint.
	assert.Equal(t, int32(0), atomic.LoadInt32(&activation.claimCalls))
	assert.Equal(t, constants.StateAuthenticatedWithToken, svc.sessions.Current().State)
}

func TestRedeem_DifferentCodeReclaims(t *testing.T) {
	regs := &fakeRegistrationStore{
		reg: models.NewDeviceRegistration("GH-OLD", "user-1", constants.ProductGoodHang, "rt-old"),
	}
	activation := &fakeActivation{}
	svc := newActivationService(t, regs, activation)

	require.NoError(t, svc.Redeem(context.Background(), "GH-NEW", signedIn(), constants.ProductGoodHang))

	assert.Equal(t, int32(1), atomic.LoadInt32(&activation.claimCalls))
	stored := regs.stored()
	require.NotNil(t, stored)
	assert.Equal(t, "GH-NEW", stored.ActivationCode)
}

func TestRedeem_ConflictSurfaces(t *testing.T) {
	regs := &fakeRegistrationStore{}
	activation := &fakeActivation{
		claimFn: func(code, userID string) (*service.ClaimResult, error) {
			return nil, errors.ErrActivationCodeClaimed("")
		},
	}
	svc := newActivationService(t, regs, activation)

	err := svc.Redeem(context.Background(), "GH-TAKEN", signedIn(), constants.ProductGoodHang)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Nil(t, regs.stored())
	assert.Equal(t, constants.StateUnauthenticated, svc.sessions.Current().State)
}

func TestRedeem_InputValidation(t *testing.T) {
	svc := newActivationService(t, &fakeRegistrationStore{}, &fakeActivation{})
	ctx := context.Background()

	assert.True(t, errors.IsValidation(svc.Redeem(ctx, "", signedIn(), constants.ProductGoodHang)))
	assert.True(t, errors.IsValidation(svc.Redeem(ctx, "GH-CODE-1", nil, constants.ProductGoodHang)))
	assert.True(t, errors.IsValidation(svc.Redeem(ctx, "GH-CODE-1", &service.IdentitySession{}, constants.ProductGoodHang)))
	assert.True(t, errors.IsValidation(svc.Redeem(ctx, "GH-CODE-1", signedIn(), constants.Product("solitaire"))))
}
