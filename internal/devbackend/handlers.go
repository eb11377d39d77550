package devbackend

import (
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
)

// Routes served besides the configured auth paths.
const (
	MePath            = "/auth/me/"
	NotificationsPath = "/notifications/"
	ReportsPath       = "/reports/"
	UsersPath         = "/users/"
)

const accountKey = "devbackend.account"

// userPayload is the user object in the backend's snake_case wire form.
type userPayload struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	Avatar       string `json:"avatar,omitempty"`
	Department   string `json:"department"`
	IsActive     bool   `json:"is_active"`
	IsFlagged    bool   `json:"is_flagged"`
	OverdueCount int    `json:"overdue_count"`
	DateJoined   string `json:"date_joined"`
}

type registerRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Password2  string `json:"password2"`
	FullName   string `json:"fullName"`
	Role       string `json:"role"`
	Department string `json:"department"`
	StudentID  string `json:"student_id"`
}

type authResponse struct {
	User    userPayload `json:"user"`
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
}

func detail(msg string) echo.Map { return echo.Map{"detail": msg} }

func (s *Server) routes() {
	p := s.cfg.Paths
	s.echo.POST(p.Login, s.login)
	s.echo.POST(p.Register, s.register)
	s.echo.POST(p.Refresh, s.refreshToken)

	authed := s.echo.Group("", s.requireBearer)
	authed.GET(MePath, s.me)
	authed.PUT(p.Profile, s.updateProfile)
	authed.POST(p.Password, s.changePassword)
	authed.POST(p.Avatar, s.uploadAvatar)
	authed.GET(NotificationsPath, s.notifications)

	resolve := middleware.WithResolver(func(r *http.Request) *session.Identity {
		id, _ := middleware.IdentityFromContext(r.Context())
		return id
	})
	authed.GET(ReportsPath, s.reports, middleware.EchoGuard(nil, guard.MinRole(permission.RoleStaff).ShowDenied(), resolve))
	authed.DELETE(UsersPath+":id/", s.deleteUser, middleware.EchoGuard(nil, guard.Permission(permission.DeleteUsers).ShowDenied(), resolve))
}

// requireBearer answers 401 unless the request carries a live access
// token, and exposes the caller's identity to the route guards.
func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := middleware.BearerToken(c.Request())
		if !ok {
			return c.JSON(http.StatusUnauthorized, detail("Authentication credentials were not provided."))
		}
		acct, ok := s.authenticate(token)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "Given token not valid for any token type", "code": "token_not_valid"})
		}
		s.protectedHits.Add(1)

		r := c.Request()
		c.SetRequest(r.WithContext(middleware.WithIdentity(r.Context(), s.identity(acct))))
		c.Set(accountKey, acct)
		return next(c)
	}
}

func (s *Server) identity(acct *account) *session.Identity {
	u := s.snapshot(acct)
	role, _ := permission.ParseRole(u.Role)
	return &session.Identity{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     role,
		IsActive: u.IsActive,
	}
}

func (s *Server) login(c echo.Context) error {
	var req api.Credentials
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detail("Malformed request."))
	}
	email := api.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"email": []string{"This field is required."}})
	}

	ctx := c.Request().Context()
	ip := c.RealIP()
	if s.limiter != nil {
		if err := s.limiter.CheckLogin(ctx, email, ip); err != nil {
			return s.throttled(c, err)
		}
	}

	s.mu.RLock()
	acct := s.users[s.byEmail[email]]
	s.mu.RUnlock()

	ok := false
	if acct != nil {
		ok, _ = s.hasher.Verify(req.Password, acct.passwordHash)
	}
	if !ok {
		if s.limiter != nil {
			if err := s.limiter.FailLogin(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
				s.logger.Warn("devbackend: record failed login", "err", err)
			}
		}
		return c.JSON(http.StatusUnauthorized, detail("No active account found with the given credentials"))
	}
	if s.limiter != nil {
		if err := s.limiter.ResetLogin(ctx, email, ip); err != nil {
			s.logger.Warn("devbackend: reset login throttle", "err", err)
		}
	}
	return s.respondWithPair(c, http.StatusOK, s.snapshot(acct))
}

func (s *Server) throttled(c echo.Context, err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return c.JSON(http.StatusTooManyRequests, detail("Request was throttled."))
	}
	s.logger.Error("devbackend: login throttle unavailable", "err", err)
	return c.JSON(http.StatusServiceUnavailable, detail("Service temporarily unavailable."))
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detail("Malformed request."))
	}
	acct, fields, err := s.createAccount(req)
	if err != nil {
		s.logger.Error("devbackend: register", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, fields)
	}
	return s.respondWithPair(c, http.StatusCreated, s.snapshot(acct))
}

func (s *Server) respondWithPair(c echo.Context, status int, u userPayload) error {
	access, refresh, err := s.issuePair(u)
	if err != nil {
		s.logger.Error("devbackend: issue tokens", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token issue failed"})
	}
	return c.JSON(status, authResponse{User: u, Access: access, Refresh: refresh})
}

func (s *Server) refreshToken(c echo.Context) error {
	s.refreshCalls.Add(1)
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Refresh) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"refresh": []string{"This field is required."}})
	}
	invalid := echo.Map{"detail": "Token is invalid or expired", "code": "token_not_valid"}
	if s.failRefresh.Load() {
		return c.JSON(http.StatusUnauthorized, invalid)
	}

	claims, err := s.tokens.Parse(req.Refresh, jwt.KindRefresh)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, invalid)
	}
	s.mu.RLock()
	owner := s.refresh[claims.ID]
	acct := s.users[claims.Subject]
	s.mu.RUnlock()
	if owner != claims.Subject || acct == nil {
		return c.JSON(http.StatusUnauthorized, invalid)
	}
	if s.limiter != nil {
		if err := s.limiter.AllowRefresh(c.Request().Context(), claims.Subject); err != nil {
			return s.throttled(c, err)
		}
	}

	u := s.snapshot(acct)
	if !s.cfg.RotateRefresh {
		access, err := s.issueAccess(u)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token issue failed"})
		}
		return c.JSON(http.StatusOK, echo.Map{"access": access})
	}

	access, refresh, err := s.issuePair(u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token issue failed"})
	}
	s.mu.Lock()
	delete(s.refresh, claims.ID)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{"access": access, "refresh": refresh})
}

func (s *Server) me(c echo.Context) error {
	return c.JSON(http.StatusOK, s.snapshot(c.Get(accountKey).(*account)))
}

func (s *Server) updateProfile(c echo.Context) error {
	acct := c.Get(accountKey).(*account)
	var req api.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detail("Malformed request."))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Email != "" {
		email := api.NormalizeEmail(req.Email)
		if other, taken := s.byEmail[email]; taken && other != acct.user.ID {
			return c.JSON(http.StatusBadRequest, echo.Map{"email": []string{"user with this email already exists."}})
		}
		delete(s.byEmail, acct.user.Email)
		s.byEmail[email] = acct.user.ID
		acct.user.Email = email
	}
	if req.FullName != "" {
		acct.user.FirstName, acct.user.LastName, _ = strings.Cut(strings.TrimSpace(req.FullName), " ")
	}
	if req.FirstName != "" {
		acct.user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		acct.user.LastName = req.LastName
	}
	if req.Username != "" {
		acct.user.Username = req.Username
	}
	if req.Department != "" {
		acct.user.Department = req.Department
	}
	return c.JSON(http.StatusOK, acct.user)
}

func (s *Server) changePassword(c echo.Context) error {
	acct := c.Get(accountKey).(*account)
	var req struct {
		Old string `json:"old_password"`
		New string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, detail("Malformed request."))
	}

	s.mu.RLock()
	current := acct.passwordHash
	s.mu.RUnlock()
	if ok, _ := s.hasher.Verify(req.Old, current); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"old_password": []string{"Wrong password."}})
	}
	hash, err := s.hasher.Hash(req.New)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"new_password": []string{"This password is too short."}})
	}

	s.mu.Lock()
	acct.passwordHash = hash
	s.mu.Unlock()
	return c.JSON(http.StatusOK, detail("Password updated."))
}

func (s *Server) uploadAvatar(c echo.Context) error {
	acct := c.Get(accountKey).(*account)
	file, err := c.FormFile("avatar")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"avatar": []string{"No file was submitted."}})
	}

	s.mu.Lock()
	acct.user.Avatar = "/media/avatars/" + acct.user.ID + "/" + path.Base(file.Filename)
	avatar := acct.user.Avatar
	s.mu.Unlock()
	return c.JSON(http.StatusOK, echo.Map{"avatar": avatar})
}

func (s *Server) notifications(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"unread": 0, "results": []any{}})
}

func (s *Server) reports(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"results": []any{}})
}

func (s *Server) deleteUser(c echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.users[id]
	if !ok {
		return c.JSON(http.StatusNotFound, detail("Not found."))
	}
	delete(s.byEmail, acct.user.Email)
	delete(s.users, id)
	return c.NoContent(http.StatusNoContent)
}
