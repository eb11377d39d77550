package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
)

// User is the backend's user object. Older endpoints answer in snake_case,
// newer ones in camelCase; UnmarshalJSON accepts both.
type User struct {
	ID           string
	Email        string
	Username     string
	FullName     string
	FirstName    string
	LastName     string
	Role         permission.Role
	Avatar       string
	Department   string
	IsActive     *bool
	IsFlagged    *bool
	OverdueCount *int
	DateJoined   time.Time
}

type userWire struct {
	ID           json.RawMessage `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	FullName     string          `json:"fullName"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Role         permission.Role `json:"role"`
	Avatar       *string         `json:"avatar"`
	Department   *string         `json:"department"`
	IsActive     *bool           `json:"isActive"`
	IsActiveS    *bool           `json:"is_active"`
	IsFlagged    *bool           `json:"isFlagged"`
	IsFlaggedS   *bool           `json:"is_flagged"`
	OverdueCount *int            `json:"overdueCount"`
	OverdueS     *int            `json:"overdue_count"`
	DateJoined   string          `json:"date_joined"`
	CreatedAt    string          `json:"createdAt"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	var w userWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*u = User{
		ID:           rawID(w.ID),
		Email:        w.Email,
		Username:     w.Username,
		FullName:     w.FullName,
		FirstName:    w.FirstName,
		LastName:     w.LastName,
		Role:         w.Role,
		Avatar:       deref(w.Avatar),
		Department:   deref(w.Department),
		IsActive:     firstNonNil(w.IsActive, w.IsActiveS),
		IsFlagged:    firstNonNil(w.IsFlagged, w.IsFlaggedS),
		OverdueCount: firstNonNil(w.OverdueCount, w.OverdueS),
	}
	for _, ts := range []string{w.DateJoined, w.CreatedAt} {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			u.DateJoined = t
			break
		}
	}
	return nil
}

// DisplayName is fullName, else "first last", else the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Username
}

// ToIdentity maps the payload onto the session identity.
func (u *User) ToIdentity() *session.Identity {
	id := &session.Identity{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.DisplayName(),
		Role:        u.Role,
		Avatar:      u.Avatar,
		Department:  u.Department,
		JoinedAt:    u.DateJoined,
	}
	if u.IsActive != nil {
		id.IsActive = *u.IsActive
	}
	if u.IsFlagged != nil {
		id.IsFlagged = *u.IsFlagged
	}
	if u.OverdueCount != nil {
		id.OverdueCount = *u.OverdueCount
	}
	return id
}

// MergeInto overlays the fields present in u onto an existing identity.
// Used for profile updates, where the response may be partial.
func (u *User) MergeInto(id *session.Identity) {
	if u.Email != "" {
		id.Email = u.Email
	}
	if u.Username != "" {
		id.Username = u.Username
	}
	if name := u.DisplayName(); name != "" {
		id.DisplayName = name
	}
	if u.Role.Valid() {
		id.Role = u.Role
	}
	if u.Avatar != "" {
		id.Avatar = u.Avatar
	}
	if u.Department != "" {
		id.Department = u.Department
	}
	if u.IsActive != nil {
		id.IsActive = *u.IsActive
	}
	if u.IsFlagged != nil {
		id.IsFlagged = *u.IsFlagged
	}
	if u.OverdueCount != nil {
		id.OverdueCount = *u.OverdueCount
	}
}

// rawID accepts numeric and string ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonNil[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
