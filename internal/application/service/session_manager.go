// Package service contains the application services orchestrating the
// domain: session lifecycle and activation-key redemption.
package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/goodhang/authcore/internal/domain/models"
	"github.com/goodhang/authcore/internal/domain/repository"
	"github.com/goodhang/authcore/internal/domain/service"
	"github.com/goodhang/authcore/internal/infrastructure/monitoring"
	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/errors"
	"github.com/goodhang/authcore/pkg/logger"
)

// SessionManager owns the in-memory session state machine. It is the single
// writer of session state; the rest of the application reads through
// Current() and subscribes through Changes().
//
// The access token lives only in this struct. It is never written to
// persistent storage; only the refresh token inside the device registration
// survives a restart.
type SessionManager struct {
	root       context.Context
	regs       repository.RegistrationStore
	identity   service.IdentityProvider
	activation service.ActivationService
	bridge     service.HostBridge
	metrics    *monitoring.Metrics
	logger     logger.Logger

	sf singleflight.Group

	// writeMu serializes registration writes against sign-out, so a restore
	// cannot recreate a registration that ClearSession just destroyed.
	writeMu sync.Mutex

	mu      sync.RWMutex
	current models.SessionSnapshot
	epoch   uint64
	changes chan models.SessionSnapshot
}

// NewSessionManager creates the session manager. root is the application
// lifetime context: cancelling it aborts any in-flight restore so no write
// completes after teardown has begun.
func NewSessionManager(
	root context.Context,
	regs repository.RegistrationStore,
	identity service.IdentityProvider,
	activation service.ActivationService,
	bridge service.HostBridge,
	metrics *monitoring.Metrics,
	log logger.Logger,
) *SessionManager {
	return &SessionManager{
		root:       root,
		regs:       regs,
		identity:   identity,
		activation: activation,
		bridge:     bridge,
		metrics:    metrics,
		logger:     log.WithComponent("session.manager"),
		current:    models.SessionSnapshot{State: constants.StateUnauthenticated},
		changes:    make(chan models.SessionSnapshot, 16),
	}
}

// Current returns the current session snapshot.
func (m *SessionManager) Current() models.SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Changes returns the change-notification channel. Every state transition is
// published; slow consumers lose the oldest notification, never the newest.
func (m *SessionManager) Changes() <-chan models.SessionSnapshot {
	return m.changes
}

// CheckSession reconstructs the session from the persisted registration.
// Concurrent calls are coalesced into one flight: a duplicate refresh against
// a single-use refresh token would invalidate the first one.
func (m *SessionManager) CheckSession(ctx context.Context) (models.SessionSnapshot, error) {
	result, err, _ := m.sf.Do("check_session", func() (interface{}, error) {
		// The flight runs on the application context, not the first caller's:
		// the callers awaiting the shared result may outlive whoever started
		// it, and only application shutdown should abort the restore.
		return m.restore(m.root), nil
	})
	if err != nil {
		return m.Current(), err
	}
	snapshot := result.(models.SessionSnapshot)

	select {
	case <-ctx.Done():
		return snapshot, ctx.Err()
	default:
		return snapshot, nil
	}
}

// restore implements the startup state machine. The epoch captured at flight
// start pins the restore to the session generation it began in: a sign-out or
// sign-in during the flight bumps the epoch, and the stale result is dropped
// instead of published.
func (m *SessionManager) restore(ctx context.Context) models.SessionSnapshot {
	start := time.Now()
	epoch := m.currentEpoch()
	m.publishAt(epoch, models.SessionSnapshot{State: constants.StateRestoring})

	snapshot := m.runRestore(ctx, epoch)

	m.metrics.RecordSessionRestore(string(snapshot.State), time.Since(start))
	if !m.publishAt(epoch, snapshot) {
		return m.Current()
	}
	return snapshot
}

func (m *SessionManager) runRestore(ctx context.Context, epoch uint64) models.SessionSnapshot {
	if err := ctx.Err(); err != nil {
		// Shutting down: leave whatever state we were in untouched.
		return m.Current()
	}

	reg, err := m.regs.Get(ctx)
	if err != nil {
		// The store already downgrades corruption to absence, so an error here
		// is something genuinely unexpected.
		m.logger.Error(ctx, "registration read failed", err)
		return models.SessionSnapshot{State: constants.StateError, Reason: err.Error()}
	}
	if reg == nil {
		return models.SessionSnapshot{State: constants.StateUnauthenticated}
	}

	validation, err := m.activation.Validate(ctx, reg.ActivationCode)
	if err != nil {
		// Could not verify right now. The binding stays; the user keeps
		// cached access without a live token instead of being signed out.
		m.logger.Warn(ctx, "activation validation unavailable, degrading",
			logger.String("user_id", reg.UserID))
		return m.degradedSnapshot(reg)
	}
	if !validation.Valid {
		// The code was invalidated server-side. The binding is gone for good:
		// clear it so the next launch goes straight to activation.
		m.logger.Info(ctx, "activation code no longer valid, clearing registration",
			logger.String("user_id", reg.UserID))
		if err := m.regs.Clear(ctx); err != nil {
			m.logger.Error(ctx, "failed to clear stale registration", err)
		}
		return models.SessionSnapshot{State: constants.StateUnauthenticated}
	}

	if !reg.HasRefreshToken() {
		return m.restoreLegacy(ctx, reg, validation.SessionID)
	}

	return m.restoreWithRefreshToken(ctx, reg, epoch)
}

// restoreWithRefreshToken exchanges the stored refresh token for a live
// session, persisting a rotated refresh token when the provider issues one.
func (m *SessionManager) restoreWithRefreshToken(ctx context.Context, reg *models.DeviceRegistration, epoch uint64) models.SessionSnapshot {
	identitySession, err := m.identity.RefreshSession(ctx, reg.RefreshToken)
	if err != nil {
		// Expired or revoked refresh token, or the network is down. Either
		// way the binding is kept and only the live token is missing.
		m.logger.Warn(ctx, "session refresh failed, degrading",
			logger.String("user_id", reg.UserID))
		return m.degradedSnapshot(reg)
	}

	if err := ctx.Err(); err != nil {
		// Shutdown raced the refresh: do not write after teardown.
		return m.Current()
	}

	m.writeMu.Lock()
	if m.currentEpoch() != epoch {
		// Sign-out won the race while the refresh was in flight. The
		// registration is gone, and writing the rotated token back would
		// resurrect it.
		m.writeMu.Unlock()
		return m.Current()
	}
	if identitySession.RefreshToken != "" && identitySession.RefreshToken != reg.RefreshToken {
		// Read-compare-write is serial here: restores are single-flight, so
		// no concurrent restore can interleave a conflicting update.
		if err := m.regs.Put(ctx, reg.ActivationCode, reg.UserID, reg.Product, identitySession.RefreshToken); err != nil {
			m.logger.Error(ctx, "failed to persist rotated refresh token", err)
		}
	}
	m.writeMu.Unlock()

	userID := identitySession.UserID
	if userID == "" {
		userID = reg.UserID
	}
	return models.SessionSnapshot{
		State: constants.StateAuthenticatedWithToken,
		Session: &models.Session{
			UserID:      userID,
			SessionID:   identitySession.SessionID,
			AccessToken: identitySession.AccessToken,
			Product:     reg.Product,
		},
	}
}

// restoreLegacy handles installs registered before refresh-token persistence:
// the desktop shell may still hold a bearer-only session in the keychain.
func (m *SessionManager) restoreLegacy(ctx context.Context, reg *models.DeviceRegistration, sessionID string) models.SessionSnapshot {
	bridgeSession, err := m.bridge.GetSession(ctx)
	if err != nil {
		m.logger.Warn(ctx, "host bridge session lookup failed")
		return models.SessionSnapshot{State: constants.StateUnauthenticated}
	}
	if bridgeSession == nil || bridgeSession.Token == "" {
		return models.SessionSnapshot{State: constants.StateUnauthenticated}
	}

	if bridgeSession.SessionID == "" {
		bridgeSession.SessionID = sessionID
	}
	return models.SessionSnapshot{
		State: constants.StateAuthenticatedWithToken,
		Session: &models.Session{
			UserID:      bridgeSession.UserID,
			SessionID:   bridgeSession.SessionID,
			AccessToken: bridgeSession.Token,
			Product:     reg.Product,
		},
	}
}

func (m *SessionManager) degradedSnapshot(reg *models.DeviceRegistration) models.SessionSnapshot {
	return models.SessionSnapshot{
		State: constants.StateAuthenticatedWithoutToken,
		Session: &models.Session{
			UserID:  reg.UserID,
			Product: reg.Product,
		},
	}
}

// SetSession installs a session established by sign-in, sign-up, or an OAuth
// callback, bypassing restore. Any in-flight restore is invalidated; its
// result would be older than what just got installed.
func (m *SessionManager) SetSession(userID, sessionID, accessToken string, product constants.Product) {
	m.install(models.SessionSnapshot{
		State: constants.StateAuthenticatedWithToken,
		Session: &models.Session{
			UserID:      userID,
			SessionID:   sessionID,
			AccessToken: accessToken,
			Product:     product,
		},
	})
}

// ClearSession signs the device out: the registration and any shell-held
// session are destroyed and the state drops to Unauthenticated. An in-flight
// restore is invalidated so it can neither re-persist the registration nor
// publish an authenticated state over the sign-out.
func (m *SessionManager) ClearSession(ctx context.Context) error {
	m.writeMu.Lock()
	err := m.regs.Clear(ctx)
	if err == nil {
		// Bump before releasing writeMu: a restore that is already past its
		// refresh must see the new epoch before it may touch the store.
		m.bumpEpoch()
	}
	m.writeMu.Unlock()
	if err != nil {
		return err
	}
	if err := m.bridge.ClearSession(ctx); err != nil {
		// The registration is already gone; a failed bridge clear must not
		// leave the UI looking signed in.
		m.logger.Warn(ctx, "host bridge clear failed")
	}
	m.install(models.SessionSnapshot{State: constants.StateUnauthenticated})
	return nil
}

// FetchUserStatus returns the per-product status for the current session.
// It requires a live access token and degrades with a typed error otherwise.
func (m *SessionManager) FetchUserStatus(ctx context.Context) (*models.UserStatus, error) {
	snapshot := m.Current()
	if !snapshot.Session.HasAccessToken() {
		return nil, errNoAccessToken(snapshot.State)
	}
	return m.bridge.FetchUserStatus(ctx, snapshot.Session.AccessToken, snapshot.Session.UserID)
}

// errNoAccessToken distinguishes "you must sign in" from "we couldn't verify
// right now, limited functionality". Collapsing the two into one generic
// message is exactly what the error taxonomy exists to prevent.
func errNoAccessToken(state constants.SessionState) error {
	if state == constants.StateAuthenticatedWithoutToken {
		return errors.Degraded("no_access_token",
			"We couldn't verify your session right now. Cached data is available; live status is not.")
	}
	return errors.Validation("not_signed_in", "Sign in to view your status.")
}

func (m *SessionManager) currentEpoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

func (m *SessionManager) bumpEpoch() {
	m.mu.Lock()
	m.epoch++
	m.mu.Unlock()
}

// install records a state established outside restore and moves to the next
// session epoch, invalidating any restore still in flight.
func (m *SessionManager) install(snapshot models.SessionSnapshot) {
	m.mu.Lock()
	m.epoch++
	m.current = snapshot
	m.mu.Unlock()
	m.notify(snapshot)
}

// publishAt records a restore-produced state, but only while the epoch the
// restore started in is still current. Returns false when the restore went
// stale and its result was dropped.
func (m *SessionManager) publishAt(epoch uint64, snapshot models.SessionSnapshot) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	m.current = snapshot
	m.mu.Unlock()
	m.notify(snapshot)
	return true
}

func (m *SessionManager) notify(snapshot models.SessionSnapshot) {
	for {
		select {
		case m.changes <- snapshot:
			return
		default:
			// Channel full: drop the oldest notification so subscribers
			// always converge on the latest state.
			select {
			case <-m.changes:
			default:
			}
		}
	}
}
