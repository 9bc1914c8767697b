package service

import (
	"context"

	"github.com/goodhang/authcore/internal/domain/repository"
	"github.com/goodhang/authcore/internal/domain/service"
	"github.com/goodhang/authcore/internal/infrastructure/monitoring"
	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

// ActivationAppService orchestrates activation-key redemption: validate,
// claim, persist the device registration, establish the session.
type ActivationAppService struct {
	regs       repository.RegistrationStore
	activation service.ActivationService
	sessions   *SessionManager
	metrics    *monitoring.Metrics
	logger     logger.Logger
}

// NewActivationAppService creates the activation service.
func NewActivationAppService(
	regs repository.RegistrationStore,
	activation service.ActivationService,
	sessions *SessionManager,
	metrics *monitoring.Metrics,
	log logger.Logger,
) *ActivationAppService {
	return &ActivationAppService{
		regs:       regs,
		activation: activation,
		sessions:   sessions,
		metrics:    metrics,
		logger:     log.WithComponent("activation.service"),
	}
}

// Validate checks a code without claiming it, returning the assessment
// preview when the service provides one.
func (s *ActivationAppService) Validate(ctx context.Context, code string) (*service.ValidationResult, error) {
	if code == "" {
		return nil, errors.Validation("activation_code_missing", "Enter an activation code.")
	}
	return s.activation.Validate(ctx, code)
}

// Redeem claims the code for the signed-in user, persists the binding, and
// establishes the session.
//
// Redemption is idempotent: when the stored registration already binds this
// exact (code, user) pair, Redeem succeeds without a claim round trip. The
// server would report "already redeemed" anyway, and skipping the call keeps
// re-activation after a reinstall from looking like a double claim.
func (s *ActivationAppService) Redeem(ctx context.Context, code string, identitySession *service.IdentitySession, product constants.Product) error {
	if code == "" {
		return errors.Validation("activation_code_missing", "Enter an activation code.")
	}
	if identitySession == nil || identitySession.UserID == "" {
		return errors.Validation("not_signed_in", "Sign in before redeeming an activation code.")
	}
	if !product.IsValid() {
		return errors.Validation("product_unknown", "Unknown product for this activation code.")
	}

	existing, err := s.regs.Get(ctx)
	if err != nil {
		return err
	}
	if existing != nil && existing.ActivationCode == code && existing.UserID == identitySession.UserID {
		s.logger.Info(ctx, "code already redeemed by this device, skipping claim",
			logger.String("user_id", identitySession.UserID))
		s.metrics.RecordActivationClaim("already_redeemed")
		s.sessions.SetSession(identitySession.UserID, identitySession.SessionID, identitySession.AccessToken, existing.Product)
		return nil
	}

	if _, err := s.activation.Claim(ctx, code, identitySession.UserID); err != nil {
		if errors.IsConflict(err) {
			s.metrics.RecordActivationClaim("conflict")
		} else {
			s.metrics.RecordActivationClaim("failed")
		}
		return err
	}
	s.metrics.RecordActivationClaim("success")

	if err := s.regs.Put(ctx, code, identitySession.UserID, product, identitySession.RefreshToken); err != nil {
		// The claim went through but the binding did not persist. The next
		// launch will re-validate and the same-user claim is a no-op, so
		// surface the storage failure rather than pretending activation held.
		return err
	}

	s.sessions.SetSession(identitySession.UserID, identitySession.SessionID, identitySession.AccessToken, product)
	return nil
}
