package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/goSession/guard"
)

// EchoIdentityKey is the echo context key holding the admitted identity.
const EchoIdentityKey = "goSession.identity"

// EchoGuard is Guard for echo routers. The admitted identity is available
// both through IdentityFromContext on the request context and under
// EchoIdentityKey.
func EchoGuard(src IdentitySource, spec guard.Spec, opts ...Option) echo.MiddlewareFunc {
	cfg := newConfig(opts)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			id, d := cfg.decide(src, r, spec)
			switch d.Outcome {
			case guard.Allow:
				id = id.Clone()
				c.SetRequest(r.WithContext(WithIdentity(r.Context(), id)))
				c.Set(EchoIdentityKey, id)
				return next(c)
			case guard.RedirectLogin:
				return c.Redirect(http.StatusFound, cfg.loginPath)
			case guard.RedirectTo:
				return c.Redirect(http.StatusFound, d.Path)
			}

			if d.ShowMessage {
				return c.JSON(http.StatusForbidden, deniedBody{Detail: guard.DeniedMessage, Required: d.Required})
			}
			if d.Fallback == guard.Custom && cfg.fallback != nil {
				return echo.WrapHandler(cfg.fallback)(c)
			}
			return c.NoContent(http.StatusForbidden)
		}
	}
}
