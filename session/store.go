package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DefaultKey is the storage key of the persisted session record.
const DefaultKey = "auth-storage"

// LoadStatus reports what Load found in storage.
type LoadStatus uint8

const (
	LoadEmpty LoadStatus = iota
	LoadRestored
	LoadCorrupt
)

// Option configures a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for swallowed storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the single owner of the current session. All mutations go
// through one serialized writer path which persists the record and then
// notifies listeners in order.
type Store struct {
	kv     KeyValueStore
	key    string
	logger *slog.Logger

	writeMu sync.Mutex

	mu  sync.RWMutex
	cur Session

	listenersMu sync.Mutex
	listeners   map[uint64]Listener
	nextID      uint64
}

// NewStore creates a Store persisting to kv. The store starts empty; call
// Load to restore a previous session.
func NewStore(kv KeyValueStore, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		key:       DefaultKey,
		logger:    slog.Default(),
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key in use.
func (s *Store) Key() string { return s.key }

// Subscribe registers l for every subsequent event and returns a function
// that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

/*
====================================
READS
====================================
*/

// Session returns a snapshot of the current session.
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone()
}

// Identity returns a copy of the current identity, or nil.
func (s *Store) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Identity.Clone()
}

// Authenticated reports whether a user is signed in.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Authenticated
}

// AccessToken returns the current access token, or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.AccessToken
}

// RefreshToken returns the current refresh token, or "".
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.RefreshToken
}

/*
====================================
MUTATIONS
====================================
*/

// Load restores the persisted session. A missing record leaves the store
// empty. A corrupt record is removed and treated as no session; it is not
// reported as an error.
func (s *Store) Load(ctx context.Context) (LoadStatus, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return LoadEmpty, nil
	}
	if err != nil {
		return LoadEmpty, fmt.Errorf("session: load: %w", err)
	}

	restored, err := Decode(data)
	if err != nil {
		s.logger.Warn("session: discarding unreadable persisted session", "key", s.key, "err", err)
		if rmErr := s.kv.Remove(ctx, s.key); rmErr != nil && !errors.Is(rmErr, ErrNotFound) {
			s.logger.Warn("session: remove corrupt record failed", "key", s.key, "err", rmErr)
		}
		return LoadCorrupt, nil
	}
	if restored.Empty() {
		return LoadEmpty, nil
	}

	prev := s.swap(restored)
	s.emit(Event{Kind: EventRestored, Session: restored.Clone(), Previous: prev})
	return LoadRestored, nil
}

// SetIdentityAndTokens establishes a new session after login or registration.
func (s *Store) SetIdentityAndTokens(ctx context.Context, identity *Identity, access, refresh string) error {
	if identity == nil || identity.ID == "" || refresh == "" {
		return ErrInvalidSession
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := Session{
		AccessToken:   access,
		RefreshToken:  refresh,
		Identity:      identity.Clone(),
		Authenticated: true,
	}
	prev := s.swap(next)
	err := s.persist(ctx, next)
	s.emit(Event{Kind: EventEstablished, Session: next.Clone(), Previous: prev})
	return err
}

// SetAccessToken replaces the access token after a refresh.
func (s *Store) SetAccessToken(ctx context.Context, access string) error {
	return s.RotateTokens(ctx, access, "")
}

// RotateTokens replaces the access token and, when refresh is non-empty,
// the refresh token.
func (s *Store) RotateTokens(ctx context.Context, access, refresh string) error {
	return s.rotate(ctx, access, refresh, nil)
}

func (s *Store) rotate(ctx context.Context, access, refresh string, guard func(Session) error) error {
	if access == "" {
		return ErrInvalidSession
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	next := s.cur.Clone()
	s.mu.RUnlock()
	if !next.Authenticated {
		return ErrNoSession
	}
	if guard != nil {
		if err := guard(next); err != nil {
			return err
		}
	}

	next.AccessToken = access
	if refresh != "" {
		next.RefreshToken = refresh
	}
	prev := s.swap(next)
	err := s.persist(ctx, next)
	s.emit(Event{Kind: EventRefreshed, Session: next.Clone(), Previous: prev})
	return err
}

// UpdateIdentity applies fn to a copy of the identity and stores the
// result. The identity ID cannot be changed.
func (s *Store) UpdateIdentity(ctx context.Context, fn func(*Identity)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	next := s.cur.Clone()
	s.mu.RUnlock()
	if !next.Authenticated {
		return ErrNoSession
	}

	id := next.Identity.ID
	fn(next.Identity)
	next.Identity.ID = id

	prev := s.swap(next)
	err := s.persist(ctx, next)
	s.emit(Event{Kind: EventIdentityUpdated, Session: next.Clone(), Previous: prev})
	return err
}

// Clear terminates the session. It reports whether a session existed;
// EventCleared is only emitted in that case, so concurrent terminations
// produce exactly one event.
func (s *Store) Clear(ctx context.Context, reason ClearReason) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.clearLocked(ctx, reason)
}

// clearLocked must be called with writeMu held.
func (s *Store) clearLocked(ctx context.Context, reason ClearReason) (bool, error) {
	s.mu.RLock()
	existed := !s.cur.Empty()
	s.mu.RUnlock()
	if !existed {
		return false, nil
	}

	prev := s.swap(Session{})
	var err error
	if rmErr := s.kv.Remove(ctx, s.key); rmErr != nil && !errors.Is(rmErr, ErrNotFound) {
		s.logger.Warn("session: remove persisted session failed", "key", s.key, "err", rmErr)
		err = fmt.Errorf("%w: %w", ErrPersist, rmErr)
	}
	s.emit(Event{Kind: EventCleared, Reason: reason, Previous: prev})
	return true, err
}

/*
====================================
TOKEN PROVIDER
====================================
*/

// OnRefreshed stores tokens issued by a refresh that was started with
// usedRefresh. Storage failures are logged only; the refreshed tokens are
// live in memory. It returns ErrNoSession when the session was terminated
// while the refresh was in flight and ErrSessionChanged when another
// session has been established since.
func (s *Store) OnRefreshed(ctx context.Context, usedRefresh, access, refresh string) error {
	err := s.rotate(ctx, access, refresh, func(cur Session) error {
		if cur.RefreshToken != usedRefresh {
			return ErrSessionChanged
		}
		return nil
	})
	if errors.Is(err, ErrPersist) {
		return nil
	}
	return err
}

// OnInvalidate terminates the session after a failed refresh, provided it
// still holds usedRefresh.
func (s *Store) OnInvalidate(ctx context.Context, usedRefresh string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	current := s.cur.RefreshToken
	s.mu.RUnlock()
	if current != usedRefresh {
		s.logger.Info("session: ignoring failed refresh of a replaced session")
		return
	}
	if _, err := s.clearLocked(ctx, ReasonRefreshFailed); err != nil {
		s.logger.Warn("session: clear after refresh failure", "err", err)
	}
}

func (s *Store) swap(next Session) Session {
	s.mu.Lock()
	prev := s.cur
	s.cur = next
	s.mu.Unlock()
	return prev
}

func (s *Store) persist(ctx context.Context, next Session) error {
	data, err := Encode(next)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.logger.Warn("session: persist failed", "key", s.key, "err", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) emit(ev Event) {
	s.listenersMu.Lock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	fns := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
