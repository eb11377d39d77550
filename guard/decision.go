package guard

import (
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
)

// DeniedMessage is shown to a caller denied with ShowMessage set.
const DeniedMessage = "You don't have permission to access this area. Please contact your administrator if you believe this is an error."

// Outcome is the kind of a Decision.
type Outcome uint8

const (
	Allow Outcome = iota + 1
	RedirectLogin
	RedirectTo
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectTo:
		return "redirect_to"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating a Spec.
type Decision struct {
	Outcome Outcome
	// Path is the redirect target of a RedirectTo decision.
	Path string
	// ShowMessage and Fallback describe a Deny decision.
	ShowMessage bool
	Fallback    Fallback
	// Required describes the unmet requirement of a denial.
	Required string
}

// Allowed reports whether the decision admits the caller.
func (d Decision) Allowed() bool { return d.Outcome == Allow }

func (d Decision) String() string {
	switch d.Outcome {
	case RedirectTo:
		return "redirect_to(" + d.Path + ")"
	case Deny:
		if d.ShowMessage {
			return "deny(show)"
		}
		return "deny(hide)"
	default:
		return d.Outcome.String()
	}
}

// Evaluate decides whether identity satisfies s. A nil identity is sent to
// login before any requirement is looked at.
func Evaluate(identity *session.Identity, s Spec) Decision {
	if identity == nil {
		return Decision{Outcome: RedirectLogin}
	}
	if satisfied(identity.Role, s) {
		return Decision{Outcome: Allow}
	}

	required := RequiredDescription(s)
	if s.policy.RedirectTo != "" {
		return Decision{Outcome: RedirectTo, Path: s.policy.RedirectTo, Required: required}
	}
	return Decision{
		Outcome:     Deny,
		ShowMessage: s.policy.ShowDenied,
		Fallback:    s.policy.Fallback,
		Required:    required,
	}
}

func satisfied(role permission.Role, s Spec) bool {
	switch s.kind {
	case KindAuthenticated:
		return true
	case KindMinRole:
		return permission.HasMinRole(role, s.minRole)
	case KindExactRoles:
		return permission.HasRole(role, s.roles...)
	case KindPermission:
		return permission.HasPermission(role, s.permission)
	default:
		return false
	}
}
