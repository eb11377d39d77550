package devbackend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/permission"
)

// Config configures a Server.
type Config struct {
	Secret        []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RotateRefresh bool
	Paths         api.Paths
	Password      password.Config
	// Redis enables login throttling. Nil disables it.
	Redis  redis.UniversalClient
	Rate   rate.Config
	Logger *slog.Logger
}

// DefaultConfig issues five-minute access tokens and seven-day refresh
// tokens. Secret must still be set.
func DefaultConfig() Config {
	return Config{
		AccessTTL:  5 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Paths:      api.DefaultPaths(),
		Password:   password.DefaultConfig(),
		Rate:       rate.DefaultConfig(),
	}
}

// Server is an in-memory implementation of the authentication backend
// wire contract, for examples, load tests and end-to-end tests.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	echo    *echo.Echo
	tokens  *jwt.Manager
	hasher  *password.Argon2
	limiter *rate.Limiter

	mu      sync.RWMutex
	users   map[string]*account
	byEmail map[string]string
	access  map[string]string
	refresh map[string]string

	refreshCalls  atomic.Int64
	failRefresh   atomic.Bool
	refreshDelay  atomic.Int64
	protectedHits atomic.Int64
}

type account struct {
	user         userPayload
	passwordHash string
}

// New validates cfg and registers every route.
func New(cfg Config) (*Server, error) {
	if cfg.Paths == (api.Paths{}) {
		cfg.Paths = api.DefaultPaths()
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.Secret,
		Issuer:        "devbackend",
	})
	if err != nil {
		return nil, fmt.Errorf("devbackend: tokens: %w", err)
	}
	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("devbackend: password: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		echo:    echo.New(),
		tokens:  tokens,
		hasher:  hasher,
		users:   make(map[string]*account),
		byEmail: make(map[string]string),
		access:  make(map[string]string),
		refresh: make(map[string]string),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if cfg.Redis != nil {
		s.limiter = rate.New(cfg.Redis, cfg.Rate)
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes()
	return s, nil
}

// ServeHTTP makes the Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

/*
====================================
TEST CONTROLS
====================================
*/

// FailRefresh makes every refresh answer 401 while on.
func (s *Server) FailRefresh(on bool) { s.failRefresh.Store(on) }

// SetRefreshDelay holds each refresh response for d.
func (s *Server) SetRefreshDelay(d time.Duration) { s.refreshDelay.Store(int64(d)) }

// RefreshCalls reports how many refresh requests arrived.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// ProtectedHits reports how many requests reached an authenticated handler.
func (s *Server) ProtectedHits() int64 { return s.protectedHits.Load() }

// RevokeAccessTokens invalidates every access token issued so far, as if
// they had all expired. Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	clear(s.access)
	s.mu.Unlock()
}

// RevokeSessions invalidates every access and refresh token.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	clear(s.access)
	clear(s.refresh)
	s.mu.Unlock()
}

// SeedUser describes an account created directly, bypassing registration.
type SeedUser struct {
	Email      string
	Password   string
	Username   string
	FullName   string
	Role       permission.Role
	Department string
}

// Seed creates an account and returns its id.
func (s *Server) Seed(u SeedUser) (string, error) {
	reg := registerRequest{
		Username:   u.Username,
		Email:      u.Email,
		Password:   u.Password,
		Password2:  u.Password,
		FullName:   u.FullName,
		Role:       u.Role.String(),
		Department: u.Department,
	}
	acct, fields, err := s.createAccount(reg)
	if err != nil {
		return "", err
	}
	if len(fields) > 0 {
		return "", fmt.Errorf("devbackend: seed %s: %v", u.Email, fields)
	}
	return acct.user.ID, nil
}

/*
====================================
ACCOUNTS AND TOKENS
====================================
*/

func (s *Server) createAccount(req registerRequest) (*account, map[string][]string, error) {
	fields := map[string][]string{}
	email := api.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		fields["email"] = append(fields["email"], "Enter a valid email address.")
	}
	if req.Password != req.Password2 {
		fields["password"] = append(fields["password"], "Password fields didn't match.")
	}
	role, err := permission.ParseRole(req.Role)
	if req.Role == "" {
		role, err = permission.RoleStudent, nil
	}
	if err != nil {
		fields["role"] = append(fields["role"], fmt.Sprintf("%q is not a valid choice.", req.Role))
	}

	hash, err := s.hasher.Hash(req.Password)
	switch {
	case errors.Is(err, password.ErrTooShort):
		fields["password"] = append(fields["password"], "This password is too short.")
	case errors.Is(err, password.ErrTooLong):
		fields["password"] = append(fields["password"], "This password is too long.")
	case err != nil:
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		fields["email"] = append(fields["email"], "user with this email already exists.")
	}
	if len(fields) > 0 {
		return nil, fields, nil
	}

	username := req.Username
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	first, last, _ := strings.Cut(strings.TrimSpace(req.FullName), " ")
	acct := &account{
		passwordHash: hash,
		user: userPayload{
			ID:         uuid.NewString(),
			Email:      email,
			Username:   username,
			FirstName:  first,
			LastName:   last,
			Role:       role.String(),
			Department: req.Department,
			IsActive:   true,
			DateJoined: time.Now().UTC().Format(time.RFC3339),
		},
	}
	s.users[acct.user.ID] = acct
	s.byEmail[email] = acct.user.ID
	return acct, nil, nil
}

func (s *Server) issuePair(u userPayload) (access, refresh string, err error) {
	access, err = s.issueAccess(u)
	if err != nil {
		return "", "", err
	}
	refresh, claims, err := s.tokens.Issue(jwt.KindRefresh, u.ID, u.Role)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	s.refresh[claims.ID] = u.ID
	s.mu.Unlock()
	return access, refresh, nil
}

func (s *Server) issueAccess(u userPayload) (string, error) {
	token, claims, err := s.tokens.Issue(jwt.KindAccess, u.ID, u.Role)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.access[claims.ID] = u.ID
	s.mu.Unlock()
	return token, nil
}

// authenticate resolves a bearer access token to its account.
func (s *Server) authenticate(token string) (*account, bool) {
	claims, err := s.tokens.Parse(token, jwt.KindAccess)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.access[claims.ID] != claims.Subject {
		return nil, false
	}
	acct, ok := s.users[claims.Subject]
	return acct, ok
}

func (s *Server) snapshot(acct *account) userPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return acct.user
}
