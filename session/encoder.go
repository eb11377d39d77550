package session

import (
	"encoding/json"
	"fmt"
)

const recordVersionCurrent = 1

type record struct {
	Version       int       `json:"v"`
	Identity      *Identity `json:"identity,omitempty"`
	Access        string    `json:"access,omitempty"`
	Refresh       string    `json:"refresh,omitempty"`
	Authenticated bool      `json:"authenticated"`
}

// Encode serializes the persisted subset of s.
func Encode(s Session) ([]byte, error) {
	if !s.valid() {
		return nil, ErrInvalidSession
	}
	return json.Marshal(record{
		Version:       recordVersionCurrent,
		Identity:      s.Identity,
		Access:        s.AccessToken,
		Refresh:       s.RefreshToken,
		Authenticated: s.Authenticated,
	})
}

// Decode parses a persisted record. Any malformed, unknown-version or
// invariant-violating input yields an error wrapping ErrCorrupt.
func Decode(data []byte) (Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.Version != recordVersionCurrent {
		return Session{}, fmt.Errorf("%w: unsupported session schema version %d", ErrCorrupt, rec.Version)
	}

	s := Session{
		AccessToken:   rec.Access,
		RefreshToken:  rec.Refresh,
		Identity:      rec.Identity,
		Authenticated: rec.Authenticated,
	}
	if !s.valid() {
		return Session{}, fmt.Errorf("%w: invariant violated", ErrCorrupt)
	}
	return s, nil
}
