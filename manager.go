package goSession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/client"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/idle"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
)

const prefsQueueSize = 16

// Manager owns one client-side session: its token pair, the single-flight
// refresh, the authenticated HTTP client, the idle logout and the
// authorization checks. It is safe for concurrent use.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	clock   clockwork.Clock
	metrics *Metrics

	store       *session.Store
	storeCloser io.Closer
	backend     *api.Backend
	account     *api.Account
	coordinator *refresh.Coordinator
	client      *client.Client
	idle        *idle.Monitor
	bus         *idle.Bus
	routes      map[string]guard.Spec

	navigator  Navigator
	prefs      Preferences
	prefsQueue chan func(context.Context)
	audit      *audit.Dispatcher
	amqp       *audit.AMQPSink

	// redirected is set once the navigator has been told about the end of
	// the current session, and cleared when a new one starts.
	redirected atomic.Bool

	baseCtx     context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
	closed      atomic.Bool
	closeOnce   sync.Once
}

func (m *Manager) checkOpen() error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	return nil
}

/*
====================================
SIGN IN / SIGN OUT
====================================
*/

// Login exchanges credentials for a session. The email is normalized
// before it is sent.
func (m *Manager) Login(ctx context.Context, creds api.Credentials) (*session.Identity, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	resp, err := m.backend.Login(ctx, creds)
	if err == nil {
		err = m.establish(ctx, resp)
	}
	if err != nil {
		err = classifyAuthError(err)
		m.metrics.Inc(MetricLoginFailure)
		m.emitAudit(ctx, AuditLoginFailed, nil, err, map[string]string{"email": api.NormalizeEmail(creds.Email)})
		return nil, err
	}

	id := m.store.Identity()
	m.metrics.Inc(MetricLoginSuccess)
	m.emitAudit(ctx, AuditLogin, id, nil, nil)
	return id, nil
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, reg api.Registration) (*session.Identity, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	resp, err := m.backend.Register(ctx, reg)
	if err == nil {
		err = m.establish(ctx, resp)
	}
	if err != nil {
		err = classifyAuthError(err)
		m.metrics.Inc(MetricRegisterFailure)
		m.emitAudit(ctx, AuditRegisterFailed, nil, err, map[string]string{"email": reg.Email})
		return nil, err
	}

	id := m.store.Identity()
	m.metrics.Inc(MetricRegisterSuccess)
	m.emitAudit(ctx, AuditRegister, id, nil, nil)
	return id, nil
}

func (m *Manager) establish(ctx context.Context, resp *api.AuthResponse) error {
	if resp == nil || resp.User.ID == "" || resp.Access == "" || resp.Refresh == "" {
		return errIncompleteAuth
	}
	err := m.store.SetIdentityAndTokens(ctx, resp.User.ToIdentity(), resp.Access, resp.Refresh)
	return m.tolerantPersist(err)
}

// classifyAuthError maps login and registration failures onto the root
// sentinels while keeping the original error reachable.
func classifyAuthError(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, apiErr)
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

// Logout ends the session. Logging out without a session is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	existed, err := m.store.Clear(ctx, session.ReasonLogout)
	if existed {
		m.metrics.Inc(MetricLogout)
	}
	return m.tolerantPersist(err)
}

// tolerantPersist drops storage write failures: the in-memory session is
// authoritative for this process.
func (m *Manager) tolerantPersist(err error) error {
	if errors.Is(err, session.ErrPersist) {
		m.metrics.Inc(MetricPersistFailure)
		return nil
	}
	return err
}

func (m *Manager) onIdleTimeout() {
	m.metrics.Inc(MetricIdleTimeout)
	if _, err := m.store.Clear(m.baseCtx, session.ReasonIdleTimeout); err != nil {
		m.metrics.Inc(MetricPersistFailure)
	}
}

/*
====================================
SESSION STATE
====================================
*/

// Session returns a snapshot of the current session.
func (m *Manager) Session() session.Session { return m.store.Session() }

// Identity returns a copy of the signed-in identity, or nil.
func (m *Manager) Identity() *session.Identity { return m.store.Identity() }

// Authenticated reports whether a session is active.
func (m *Manager) Authenticated() bool { return m.store.Authenticated() }

// Role returns the signed-in role, or RoleUnknown when signed out.
func (m *Manager) Role() permission.Role {
	if id := m.store.Identity(); id != nil {
		return id.Role
	}
	return permission.RoleUnknown
}

// HasMinRole reports whether the signed-in role is at least required.
func (m *Manager) HasMinRole(required permission.Role) bool {
	return permission.HasMinRole(m.Role(), required)
}

// HasPermission checks name against the default permission matrix.
func (m *Manager) HasPermission(name string) bool {
	return permission.HasPermission(m.Role(), name)
}

// IsAdmin reports whether the signed-in role is ADMIN.
func (m *Manager) IsAdmin() bool { return permission.IsAdmin(m.Role()) }

// IsStaffOrAbove reports whether the signed-in role is STAFF or ADMIN.
func (m *Manager) IsStaffOrAbove() bool { return permission.IsStaffOrAbove(m.Role()) }

// Guard evaluates spec against the current identity.
func (m *Manager) Guard(spec guard.Spec) guard.Decision {
	d := guard.Evaluate(m.store.Identity(), spec)
	m.recordDecision(d)
	return d
}

// GuardRoute evaluates the spec configured for route name.
func (m *Manager) GuardRoute(name string) (guard.Decision, error) {
	spec, ok := m.routes[name]
	if !ok {
		return guard.Decision{}, fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return m.Guard(spec), nil
}

// ObserveDecision records a decision made elsewhere, for use with
// middleware.WithObserver.
func (m *Manager) ObserveDecision(d guard.Decision) { m.recordDecision(d) }

func (m *Manager) recordDecision(d guard.Decision) {
	switch d.Outcome {
	case guard.Allow:
		m.metrics.Inc(MetricGuardAllow)
	case guard.RedirectLogin:
		m.metrics.Inc(MetricGuardRedirectLogin)
	case guard.RedirectTo:
		m.metrics.Inc(MetricGuardRedirect)
	case guard.Deny:
		m.metrics.Inc(MetricGuardDeny)
	}
}

/*
====================================
AUTHENTICATED CALLS
====================================
*/

// Client returns the authenticated HTTP client.
func (m *Manager) Client() *client.Client { return m.client }

// Do sends req through the authenticated client.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return m.client.Do(req)
}

// TokenSource exposes the access token to oauth2-aware libraries.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return m.coordinator.TokenSource(ctx, m.cfg.Client.ProactiveRefreshSkew)
}

// UpdateProfile saves profile fields and merges the returned user into the
// session identity.
func (m *Manager) UpdateProfile(ctx context.Context, u api.ProfileUpdate) (*session.Identity, error) {
	if err := m.requireSession(); err != nil {
		return nil, err
	}
	user, err := m.account.UpdateProfile(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := m.updateIdentity(ctx, user.MergeInto); err != nil {
		return nil, err
	}
	id := m.store.Identity()
	m.emitAudit(ctx, AuditProfileUpdated, id, nil, nil)
	return id, nil
}

// ChangePassword changes the signed-in user's password. The session is
// kept.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := m.requireSession(); err != nil {
		return err
	}
	err := m.account.ChangePassword(ctx, oldPassword, newPassword)
	m.emitAudit(ctx, AuditPasswordChanged, m.store.Identity(), err, nil)
	return err
}

// UploadAvatar uploads a profile picture and stores its URL on the
// identity.
func (m *Manager) UploadAvatar(ctx context.Context, filename string, image io.Reader) (string, error) {
	if err := m.requireSession(); err != nil {
		return "", err
	}
	avatar, err := m.account.UploadAvatar(ctx, filename, image)
	if err != nil {
		return "", err
	}
	if err := m.updateIdentity(ctx, func(id *session.Identity) { id.Avatar = avatar }); err != nil {
		return "", err
	}
	m.emitAudit(ctx, AuditAvatarUploaded, m.store.Identity(), nil, nil)
	return avatar, nil
}

func (m *Manager) requireSession() error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if !m.store.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

func (m *Manager) updateIdentity(ctx context.Context, fn func(*session.Identity)) error {
	err := m.store.UpdateIdentity(ctx, fn)
	if errors.Is(err, session.ErrNoSession) {
		return ErrNotAuthenticated
	}
	return m.tolerantPersist(err)
}

/*
====================================
ACTIVITY
====================================
*/

// RecordActivity reports user activity to the idle monitor.
func (m *Manager) RecordActivity(sig idle.Signal) {
	switch {
	case m.bus != nil:
		m.bus.Emit(sig)
	case m.idle != nil:
		m.idle.Touch()
	}
}

// IdleDeadline reports when the session ends without further activity.
func (m *Manager) IdleDeadline() (time.Time, bool) {
	if m.idle == nil {
		return time.Time{}, false
	}
	return m.idle.Deadline()
}

/*
====================================
EVENTS
====================================
*/

func (m *Manager) onSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventEstablished, session.EventRestored:
		m.redirected.Store(false)
		if m.idle != nil {
			m.idle.Start(m.onIdleTimeout)
		}
		if ev.Kind == session.EventRestored {
			m.metrics.Inc(MetricSessionRestored)
			m.emitAudit(m.baseCtx, AuditSessionRestored, ev.Session.Identity, nil, nil)
		}
		userID := ev.Session.Identity.ID
		m.enqueuePreferences(func(ctx context.Context) error { return m.prefs.Load(ctx, userID) })

	case session.EventRefreshed:
		m.emitAudit(m.baseCtx, AuditTokenRefreshed, ev.Session.Identity, nil, nil)

	case session.EventCleared:
		if m.idle != nil {
			m.idle.Stop()
		}
		m.metrics.Inc(MetricSessionCleared)
		m.emitAudit(m.baseCtx, AuditSessionCleared, ev.Previous.Identity, nil, map[string]string{"reason": string(ev.Reason)})
		m.enqueuePreferences(m.prefs.Reset)
		if m.redirected.CompareAndSwap(false, true) {
			m.logger.Info("goSession: session ended", "reason", ev.Reason)
			m.navigator.RedirectToLogin(ev.Reason)
		}
	}
}

func (m *Manager) enqueuePreferences(job func(context.Context) error) {
	if m.prefsQueue == nil {
		return
	}
	wrapped := func(ctx context.Context) {
		if err := job(ctx); err != nil {
			m.metrics.Inc(MetricPreferencesFailure)
			m.logger.Warn("goSession: preferences update failed", "err", err)
		}
	}
	select {
	case m.prefsQueue <- wrapped:
	default:
		m.metrics.Inc(MetricPreferencesFailure)
		m.logger.Warn("goSession: preferences queue full, update skipped")
	}
}

func (m *Manager) runPreferences() {
	defer m.wg.Done()
	for {
		select {
		case job := <-m.prefsQueue:
			job(m.baseCtx)
		case <-m.baseCtx.Done():
			return
		}
	}
}

func (m *Manager) refreshHooks() refresh.Hooks {
	return refresh.Hooks{
		Started: func() { m.metrics.Inc(MetricRefreshStarted) },
		Queued:  func() { m.metrics.Inc(MetricRefreshWaiterQueued) },
		Settled: func(waiters int, elapsed time.Duration, err error) {
			m.metrics.Observe(MetricRefreshLatency, elapsed)
			if err != nil {
				m.metrics.Inc(MetricRefreshFailure)
				m.logger.Warn("goSession: token refresh failed", "waiters", waiters, "elapsed", elapsed, "err", err)
				return
			}
			m.metrics.Inc(MetricRefreshSuccess)
		},
	}
}

func (m *Manager) clientHooks() client.Hooks {
	return client.Hooks{
		Replayed: func(stale bool) {
			m.metrics.Inc(MetricRequestReplayed)
			if stale {
				m.metrics.Inc(MetricStaleReplay)
			}
		},
		RetryExhausted:   func() { m.metrics.Inc(MetricRetryExhausted) },
		ProactiveRefresh: func() { m.metrics.Inc(MetricProactiveRefresh) },
	}
}

func (m *Manager) emitAudit(ctx context.Context, eventType string, id *session.Identity, err error, meta map[string]string) {
	if m.audit == nil {
		return
	}
	e := audit.NewEvent(eventType, err == nil)
	if id != nil {
		e.UserID = id.ID
		e.Role = id.Role.String()
	}
	if err != nil {
		e.Error = err.Error()
	}
	if r, ok := meta["reason"]; ok {
		e.Reason = r
		delete(meta, "reason")
	}
	if len(meta) > 0 {
		e.Metadata = meta
	}
	m.audit.Emit(ctx, e)
}

/*
====================================
OBSERVABILITY / LIFECYCLE
====================================
*/

// Metrics returns the live metrics.
func (m *Manager) Metrics() *Metrics { return m.metrics }

// MetricsSnapshot copies the current metrics.
func (m *Manager) MetricsSnapshot() MetricsSnapshot { return m.metrics.Snapshot() }

// AuditDropped reports audit events lost to backpressure.
func (m *Manager) AuditDropped() uint64 { return m.audit.Dropped() }

// Close stops background work, the idle monitor and audit delivery, and
// releases storage opened from the configuration. The session itself is
// kept in storage. Close is idempotent.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.cancel()
		m.wg.Wait()
		if m.idle != nil {
			m.idle.Stop()
		}
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.audit.Close()
		err = errors.Join(m.storeCloser.Close(), m.amqp.Close())
	})
	return err
}
