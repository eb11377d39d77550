package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/session"
)

// DefaultLoginPath is the redirect target for unauthenticated callers.
const DefaultLoginPath = "/login"

// IdentitySource supplies the signed-in identity, or nil when there is
// none. session.Store and the root Manager implement it.
type IdentitySource interface {
	Identity() *session.Identity
}

// Resolver derives the identity from the request itself, for servers that
// authenticate each request.
type Resolver func(r *http.Request) *session.Identity

// Option configures a gate.
type Option func(*config)

type config struct {
	loginPath string
	fallback  http.Handler
	resolver  Resolver
	observe   func(guard.Decision)
}

// WithLoginPath overrides DefaultLoginPath.
func WithLoginPath(path string) Option {
	return func(c *config) {
		if path != "" {
			c.loginPath = path
		}
	}
}

// WithFallback serves denials whose policy selects guard.Custom.
func WithFallback(h http.Handler) Option {
	return func(c *config) { c.fallback = h }
}

// WithResolver takes the identity from each request instead of the
// IdentitySource.
func WithResolver(fn Resolver) Option {
	return func(c *config) { c.resolver = fn }
}

// WithObserver is called with every decision, mainly for metrics.
func WithObserver(fn func(guard.Decision)) Option {
	return func(c *config) { c.observe = fn }
}

func newConfig(opts []Option) config {
	c := config{loginPath: DefaultLoginPath}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c config) identity(src IdentitySource, r *http.Request) *session.Identity {
	if c.resolver != nil {
		return c.resolver(r)
	}
	if src == nil {
		return nil
	}
	return src.Identity()
}

func (c config) decide(src IdentitySource, r *http.Request, spec guard.Spec) (*session.Identity, guard.Decision) {
	id := c.identity(src, r)
	d := guard.Evaluate(id, spec)
	if c.observe != nil {
		c.observe(d)
	}
	return id, d
}

type identityContextKey struct{}

// IdentityFromContext returns the identity admitted by a gate.
func IdentityFromContext(ctx context.Context) (*session.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*session.Identity)
	return id, ok && id != nil
}

// WithIdentity stores id in ctx the way a gate does.
func WithIdentity(ctx context.Context, id *session.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

type deniedBody struct {
	Detail   string `json:"detail"`
	Required string `json:"required"`
}

// Guard returns middleware admitting requests whose identity satisfies spec.
func Guard(src IdentitySource, spec guard.Spec, opts ...Option) func(http.Handler) http.Handler {
	cfg := newConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, d := cfg.decide(src, r, spec)
			switch d.Outcome {
			case guard.Allow:
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id.Clone())))
			case guard.RedirectLogin:
				http.Redirect(w, r, cfg.loginPath, http.StatusFound)
			case guard.RedirectTo:
				http.Redirect(w, r, d.Path, http.StatusFound)
			default:
				cfg.deny(w, r, d)
			}
		})
	}
}

func (c config) deny(w http.ResponseWriter, r *http.Request, d guard.Decision) {
	if d.ShowMessage {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(deniedBody{Detail: guard.DeniedMessage, Required: d.Required})
		return
	}
	if d.Fallback == guard.Custom && c.fallback != nil {
		c.fallback.ServeHTTP(w, r)
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
