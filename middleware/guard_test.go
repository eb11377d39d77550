package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
)

type staticSource struct{ id *session.Identity }

func (s staticSource) Identity() *session.Identity { return s.id }

func as(r permission.Role) staticSource {
	return staticSource{id: &session.Identity{ID: "42", Email: "x@campus.edu", Role: r}}
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	io.WriteString(w, id.Role.String())
})

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	return rec
}

func TestGuardOutcomes(t *testing.T) {
	t.Run("allow", func(t *testing.T) {
		rec := serve(Guard(as(permission.RoleStaff), guard.StaffOnly())(okHandler))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "STAFF", rec.Body.String())
	})
	t.Run("anonymous", func(t *testing.T) {
		rec := serve(Guard(staticSource{}, guard.StaffOnly(), WithLoginPath("/signin"))(okHandler))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/signin", rec.Header().Get("Location"))
	})
	t.Run("nil source", func(t *testing.T) {
		rec := serve(Guard(nil, guard.Authenticated())(okHandler))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, DefaultLoginPath, rec.Header().Get("Location"))
	})
	t.Run("redirect", func(t *testing.T) {
		rec := serve(Guard(as(permission.RoleStudent), guard.StaffOnly().RedirectTo("/dashboard"))(okHandler))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})
	t.Run("deny with message", func(t *testing.T) {
		rec := serve(RequireMinRole(as(permission.RoleFaculty), permission.RoleAdmin)(okHandler))
		require.Equal(t, http.StatusForbidden, rec.Code)
		var body deniedBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, guard.DeniedMessage, body.Detail)
		assert.Equal(t, "Required role: ADMIN", body.Required)
	})
	t.Run("deny hidden", func(t *testing.T) {
		rec := serve(Guard(as(permission.RoleFaculty), guard.AdminOnly())(okHandler))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
	t.Run("deny custom fallback", func(t *testing.T) {
		fb := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		rec := serve(Guard(as(permission.RoleStudent), guard.AdminOnly().WithFallback(guard.Custom), WithFallback(fb))(okHandler))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGuardResolverAndObserver(t *testing.T) {
	var seen []guard.Outcome
	resolver := func(r *http.Request) *session.Identity {
		tok, ok := BearerToken(r)
		if !ok || tok != "staff-token" {
			return nil
		}
		return &session.Identity{ID: "1", Role: permission.RoleStaff}
	}
	h := RequirePermission(nil, permission.ViewReports,
		WithResolver(resolver),
		WithObserver(func(d guard.Decision) { seen = append(seen, d.Outcome) }),
	)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, []guard.Outcome{guard.Allow, guard.RedirectLogin}, seen)
}

func TestAllowedIdentityIsACopy(t *testing.T) {
	src := as(permission.RoleAdmin)
	h := RequireAuthenticated(src)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		id.Role = permission.RoleStudent
	}))
	serve(h)
	assert.Equal(t, permission.RoleAdmin, src.id.Role)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer ")
	_, ok = BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer abc.def")
	tok, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)
}

func TestEchoGuard(t *testing.T) {
	e := echo.New()
	handler := func(c echo.Context) error {
		id, ok := c.Get(EchoIdentityKey).(*session.Identity)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		fromCtx, _ := IdentityFromContext(c.Request().Context())
		return c.String(http.StatusOK, id.Role.String()+"/"+fromCtx.Role.String())
	}
	e.GET("/admin", handler, EchoGuard(as(permission.RoleAdmin), guard.AdminOnly()))
	e.GET("/staff", handler, EchoGuard(as(permission.RoleStudent), guard.StaffOnly().ShowDenied()))
	e.GET("/hidden", handler, EchoGuard(as(permission.RoleStudent), guard.StaffOnly()))
	e.GET("/redirect", handler, EchoGuard(as(permission.RoleStudent), guard.StaffOnly().RedirectTo("/home")))
	e.GET("/anon", handler, EchoGuard(staticSource{}, guard.Authenticated()))

	do := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := do("/admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ADMIN/ADMIN", rec.Body.String())

	rec = do("/staff")
	require.Equal(t, http.StatusForbidden, rec.Code)
	var body deniedBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Required role: STAFF", body.Required)

	rec = do("/hidden")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do("/redirect")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))

	rec = do("/anon")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, DefaultLoginPath, rec.Header().Get("Location"))
}
