package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a KeyValueStore when the key is absent.
	ErrNotFound = errors.New("session: key not found")
	// ErrCorrupt marks a persisted record that cannot be decoded or violates
	// the session invariants.
	ErrCorrupt = errors.New("session: corrupt record")
	// ErrInvalidSession rejects a mutation that would break the invariants.
	ErrInvalidSession = errors.New("session: invalid session")
	// ErrNoSession is returned by mutations that need an authenticated session.
	ErrNoSession = errors.New("session: not authenticated")
	// ErrSessionChanged rejects a refresh outcome whose refresh token no
	// longer belongs to the current session.
	ErrSessionChanged = errors.New("session: session changed during refresh")
	// ErrPersist wraps storage failures. The in-memory state has still been
	// updated when it is returned.
	ErrPersist = errors.New("session: persist failed")
)

// KeyValueStore is the durable medium a Store writes its record to.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
