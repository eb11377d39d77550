package guard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goSession/permission"
)

// Kind identifies the requirement held by a Spec. The zero Kind is
// unsatisfiable.
type Kind uint8

const (
	KindNone Kind = iota
	KindAuthenticated
	KindMinRole
	KindExactRoles
	KindPermission
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticated:
		return "authenticated"
	case KindMinRole:
		return "min_role"
	case KindExactRoles:
		return "exact_roles"
	case KindPermission:
		return "permission"
	default:
		return "none"
	}
}

// Fallback selects what a denied caller sees when no message is shown.
type Fallback uint8

const (
	// RenderNothing hides the guarded content.
	RenderNothing Fallback = iota
	// Custom hands the denial to a caller supplied fallback.
	Custom
)

// Policy controls the outcome of a failed check.
type Policy struct {
	Fallback   Fallback
	RedirectTo string
	ShowDenied bool
}

// Spec is an immutable access requirement plus its denial policy.
type Spec struct {
	kind       Kind
	minRole    permission.Role
	roles      []permission.Role
	permission string
	policy     Policy
}

// Authenticated admits any signed-in identity.
func Authenticated() Spec { return Spec{kind: KindAuthenticated} }

// MinRole admits identities at or above r in the role hierarchy.
func MinRole(r permission.Role) Spec { return Spec{kind: KindMinRole, minRole: r} }

// ExactRoles admits identities whose role is one of roles.
func ExactRoles(roles ...permission.Role) Spec {
	return Spec{kind: KindExactRoles, roles: append([]permission.Role(nil), roles...)}
}

// Permission admits identities whose role is granted name in the default
// permission matrix.
func Permission(name string) Spec { return Spec{kind: KindPermission, permission: name} }

// AdminOnly is MinRole(RoleAdmin).
func AdminOnly() Spec { return MinRole(permission.RoleAdmin) }

// StaffOnly is MinRole(RoleStaff).
func StaffOnly() Spec { return MinRole(permission.RoleStaff) }

// FacultyOnly is MinRole(RoleFaculty).
func FacultyOnly() Spec { return MinRole(permission.RoleFaculty) }

// WithPolicy returns a copy of s using p on denial.
func (s Spec) WithPolicy(p Policy) Spec {
	s.policy = p
	return s
}

// RedirectTo returns a copy of s that redirects to path on denial.
func (s Spec) RedirectTo(path string) Spec {
	s.policy.RedirectTo = path
	return s
}

// ShowDenied returns a copy of s that shows the denial message.
func (s Spec) ShowDenied() Spec {
	s.policy.ShowDenied = true
	return s
}

// WithFallback returns a copy of s using f when the denial message is hidden.
func (s Spec) WithFallback(f Fallback) Spec {
	s.policy.Fallback = f
	return s
}

// Kind reports which requirement s holds.
func (s Spec) Kind() Kind { return s.kind }

// Policy reports the denial policy.
func (s Spec) Policy() Policy { return s.policy }

// Role is the minimum role of a KindMinRole spec.
func (s Spec) Role() permission.Role { return s.minRole }

// PermissionName is the permission of a KindPermission spec.
func (s Spec) PermissionName() string { return s.permission }

// Roles is the role set of a KindExactRoles spec.
func (s Spec) Roles() []permission.Role {
	return append([]permission.Role(nil), s.roles...)
}

// ErrUnknownRole is returned by FromOptions for a role name outside the
// hierarchy.
var ErrUnknownRole = errors.New("guard: unknown role")

// ErrUnknownFallback is returned by FromOptions for an unrecognized
// fallback name.
var ErrUnknownFallback = errors.New("guard: unknown fallback")

// Options is the loose form of a Spec, suited to route tables read from
// configuration. Several requirements may be set; FromOptions keeps the
// highest-precedence one.
type Options struct {
	MinRole    string   `yaml:"min_role" json:"minRole,omitempty"`
	Roles      []string `yaml:"roles" json:"roles,omitempty"`
	Permission string   `yaml:"permission" json:"permission,omitempty"`
	RedirectTo string   `yaml:"redirect_to" json:"redirectTo,omitempty"`
	ShowDenied bool     `yaml:"show_denied" json:"showDenied,omitempty"`
	// Fallback is "nothing" (default) or "custom".
	Fallback string `yaml:"fallback" json:"fallback,omitempty"`
}

// FromOptions resolves o into a Spec. With no requirement set the Spec
// admits any signed-in identity.
func FromOptions(o Options) (Spec, error) {
	var s Spec
	switch {
	case strings.TrimSpace(o.MinRole) != "":
		r, err := permission.ParseRole(o.MinRole)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q", ErrUnknownRole, o.MinRole)
		}
		s = MinRole(r)
	case len(o.Roles) > 0:
		roles := make([]permission.Role, 0, len(o.Roles))
		for _, name := range o.Roles {
			r, err := permission.ParseRole(name)
			if err != nil {
				return Spec{}, fmt.Errorf("%w: %q", ErrUnknownRole, name)
			}
			roles = append(roles, r)
		}
		s = ExactRoles(roles...)
	case strings.TrimSpace(o.Permission) != "":
		s = Permission(strings.TrimSpace(o.Permission))
	default:
		s = Authenticated()
	}

	var fb Fallback
	switch strings.ToLower(strings.TrimSpace(o.Fallback)) {
	case "", "nothing":
		fb = RenderNothing
	case "custom":
		fb = Custom
	default:
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownFallback, o.Fallback)
	}
	return s.WithPolicy(Policy{Fallback: fb, RedirectTo: o.RedirectTo, ShowDenied: o.ShowDenied}), nil
}

// RequiredDescription names what s requires, for display next to a denial.
func RequiredDescription(s Spec) string {
	switch s.kind {
	case KindMinRole:
		return "Required role: " + s.minRole.String()
	case KindExactRoles:
		names := make([]string, len(s.roles))
		for i, r := range s.roles {
			names[i] = r.String()
		}
		return "Required role: " + strings.Join(names, ", ")
	case KindAuthenticated:
		return "Sign-in required"
	default:
		return "Required role: Special permission"
	}
}
