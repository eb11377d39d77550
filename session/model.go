package session

import (
	"time"

	"github.com/MrEthical07/goSession/permission"
)

// Identity is the read-only projection of the signed-in user handed to
// authorization checks and callers.
type Identity struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username,omitempty"`
	DisplayName  string          `json:"displayName,omitempty"`
	Role         permission.Role `json:"role"`
	Avatar       string          `json:"avatar,omitempty"`
	Department   string          `json:"department,omitempty"`
	IsActive     bool            `json:"isActive"`
	IsFlagged    bool            `json:"isFlagged"`
	OverdueCount int             `json:"overdueCount"`
	JoinedAt     time.Time       `json:"joinedAt,omitzero"`
}

// Clone returns a copy of i, or nil when i is nil.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Session is the client side view of the signed-in user plus the token pair.
//
// Authenticated is true exactly when Identity is non-nil, and a non-empty
// AccessToken always comes with a non-empty RefreshToken.
type Session struct {
	AccessToken   string
	RefreshToken  string
	Identity      *Identity
	Authenticated bool
}

// Clone returns a deep copy so callers can never reach the store's state.
func (s Session) Clone() Session {
	s.Identity = s.Identity.Clone()
	return s
}

// Empty reports whether s holds neither identity nor tokens.
func (s Session) Empty() bool {
	return !s.Authenticated && s.Identity == nil && s.AccessToken == "" && s.RefreshToken == ""
}

func (s Session) valid() bool {
	if s.Authenticated != (s.Identity != nil) {
		return false
	}
	if s.Identity != nil && s.Identity.ID == "" {
		return false
	}
	if s.AccessToken != "" && s.RefreshToken == "" {
		return false
	}
	return true
}

// ClearReason records why a session was terminated.
type ClearReason string

const (
	ReasonLogout        ClearReason = "logout"
	ReasonIdleTimeout   ClearReason = "idle_timeout"
	ReasonRefreshFailed ClearReason = "refresh_failed"
	ReasonCorrupt       ClearReason = "corrupt"
)

// EventKind identifies a store mutation.
type EventKind uint8

const (
	EventEstablished EventKind = iota + 1
	EventRestored
	EventRefreshed
	EventIdentityUpdated
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventEstablished:
		return "established"
	case EventRestored:
		return "restored"
	case EventRefreshed:
		return "refreshed"
	case EventIdentityUpdated:
		return "identity_updated"
	case EventCleared:
		return "cleared"
	}
	return "unknown"
}

// Event is delivered to listeners after each mutation, in mutation order.
// Session is the snapshot after the mutation (empty for EventCleared);
// Previous is the snapshot before it.
type Event struct {
	Kind     EventKind
	Reason   ClearReason
	Session  Session
	Previous Session
}

// Listener receives store events synchronously on the writer path. A
// listener must not mutate the store from within the callback.
type Listener func(Event)
