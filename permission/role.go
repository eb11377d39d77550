package permission

import (
	"errors"
	"strings"
)

// Role is an ordinal position in the fixed user hierarchy.
// A higher ordinal satisfies every requirement of a lower one.
type Role uint8

const (
	// RoleUnknown is the zero value. It never satisfies a minimum-role check.
	RoleUnknown Role = iota
	RoleStudent
	RoleFaculty
	RoleStaff
	RoleAdmin
)

var errUnknownRole = errors.New("permission: unknown role")

var roleNames = [...]string{
	RoleUnknown: "",
	RoleStudent: "STUDENT",
	RoleFaculty: "FACULTY",
	RoleStaff:   "STAFF",
	RoleAdmin:   "ADMIN",
}

var roleLabels = [...]string{
	RoleUnknown: "Unknown",
	RoleStudent: "Student",
	RoleFaculty: "Faculty",
	RoleStaff:   "Staff",
	RoleAdmin:   "Administrator",
}

// AllRoles returns every valid role in ascending order.
func AllRoles() []Role {
	return []Role{RoleStudent, RoleFaculty, RoleStaff, RoleAdmin}
}

// ParseRole maps the wire name (STUDENT, FACULTY, STAFF, ADMIN) to a Role.
// Matching ignores case and surrounding whitespace. Anything else yields
// RoleUnknown and an error.
func ParseRole(name string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "STUDENT":
		return RoleStudent, nil
	case "FACULTY":
		return RoleFaculty, nil
	case "STAFF":
		return RoleStaff, nil
	case "ADMIN":
		return RoleAdmin, nil
	}
	return RoleUnknown, errUnknownRole
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return r >= RoleStudent && r <= RoleAdmin
}

// String returns the wire name, or "" for an unknown role.
func (r Role) String() string {
	if !r.Valid() {
		return ""
	}
	return roleNames[r]
}

// Label returns the human readable name shown next to a user.
func (r Role) Label() string {
	if !r.Valid() {
		return roleLabels[RoleUnknown]
	}
	return roleLabels[r]
}

// MarshalText encodes the role by wire name. Unknown roles encode as "".
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a wire name. Unrecognised names decode to
// RoleUnknown without error so that a backend introducing a new role
// degrades to "no privileges" instead of failing the whole payload.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		*r = RoleUnknown
		return nil
	}
	*r = parsed
	return nil
}

/*
====================================
HIERARCHY CHECKS
====================================
*/

// HasMinRole reports whether user sits at or above required in the hierarchy.
// An unknown user role ranks below everything; an unknown required role
// can never be satisfied.
func HasMinRole(user, required Role) bool {
	if !required.Valid() {
		return false
	}
	if !user.Valid() {
		return false
	}
	return user >= required
}

// HasMinRoleName is HasMinRole over wire names.
func HasMinRoleName(user, required string) bool {
	u, _ := ParseRole(user)
	r, err := ParseRole(required)
	if err != nil {
		return false
	}
	return HasMinRole(u, r)
}

// HasRole reports exact membership of user in allowed.
func HasRole(user Role, allowed ...Role) bool {
	if !user.Valid() {
		return false
	}
	for _, r := range allowed {
		if r == user {
			return true
		}
	}
	return false
}

// IsAdmin reports whether role is RoleAdmin.
func IsAdmin(role Role) bool {
	return role == RoleAdmin
}

// IsStaffOrAbove reports whether role is RoleStaff or RoleAdmin.
func IsStaffOrAbove(role Role) bool {
	return HasMinRole(role, RoleStaff)
}

// HasPermission checks name against the default matrix. Unknown
// permission names are denied.
func HasPermission(role Role, name string) bool {
	return DefaultMatrix().Allows(role, name)
}
