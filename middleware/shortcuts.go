package middleware

import (
	"net/http"

	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/permission"
)

// RequireAuthenticated admits any signed-in identity.
func RequireAuthenticated(src IdentitySource, opts ...Option) func(http.Handler) http.Handler {
	return Guard(src, guard.Authenticated(), opts...)
}

// RequireMinRole admits identities at or above role, showing the denial
// message otherwise.
func RequireMinRole(src IdentitySource, role permission.Role, opts ...Option) func(http.Handler) http.Handler {
	return Guard(src, guard.MinRole(role).ShowDenied(), opts...)
}

// RequirePermission admits identities granted name, showing the denial
// message otherwise.
func RequirePermission(src IdentitySource, name string, opts ...Option) func(http.Handler) http.Handler {
	return Guard(src, guard.Permission(name).ShowDenied(), opts...)
}
