package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/refresh"
)

// Paths are the backend routes, relative to the base URL.
type Paths struct {
	Login    string `yaml:"login" env:"LOGIN"`
	Refresh  string `yaml:"refresh" env:"REFRESH"`
	Register string `yaml:"register" env:"REGISTER"`
	Profile  string `yaml:"profile" env:"PROFILE"`
	Password string `yaml:"password" env:"PASSWORD"`
	Avatar   string `yaml:"avatar" env:"AVATAR"`
}

// DefaultPaths returns the stock backend routes.
func DefaultPaths() Paths {
	return Paths{
		Login:    "/auth/login/",
		Refresh:  "/auth/token/refresh/",
		Register: "/auth/register/",
		Profile:  "/auth/profile/",
		Password: "/auth/profile/password/",
		Avatar:   "/auth/profile/picture/",
	}
}

// Credentials are the login inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up form.
type Registration struct {
	Username   string          `json:"username"`
	Email      string          `json:"email"`
	Password   string          `json:"password"`
	Password2  string          `json:"password2"`
	FullName   string          `json:"fullName"`
	Role       permission.Role `json:"role"`
	Department string          `json:"department"`
	StudentID  string          `json:"student_id"`
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	User    User   `json:"user"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// ProfileUpdate carries the editable profile fields. Empty fields are
// not sent.
type ProfileUpdate struct {
	FullName   string `json:"fullName,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Username   string `json:"username,omitempty"`
	Department string `json:"department,omitempty"`
}

// Doer sends an HTTP request. *http.Client and the authenticated client
// both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Backend talks to the authentication endpoints that do not require a
// bearer token.
type Backend struct {
	baseURL string
	paths   Paths
	http    Doer
}

// NewBackend returns a Backend rooted at baseURL. A nil hc uses
// http.DefaultClient.
func NewBackend(baseURL string, hc Doer, paths Paths) *Backend {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Backend{baseURL: strings.TrimRight(baseURL, "/"), paths: paths, http: hc}
}

// URL resolves a backend path against the base URL.
func (b *Backend) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return b.baseURL + path
}

// NormalizeEmail trims and lower-cases an address the way login expects it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login exchanges credentials for a user and token pair.
func (b *Backend) Login(ctx context.Context, c Credentials) (*AuthResponse, error) {
	c.Email = NormalizeEmail(c.Email)
	var out AuthResponse
	if err := b.send(ctx, b.http, http.MethodPost, b.paths.Login, c, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account. A missing username defaults to the local
// part of the email, a missing role to STUDENT, and password2 mirrors
// password.
func (b *Backend) Register(ctx context.Context, r Registration) (*AuthResponse, error) {
	if r.Username == "" {
		r.Username, _, _ = strings.Cut(r.Email, "@")
	}
	if !r.Role.Valid() {
		r.Role = permission.RoleStudent
	}
	if r.Password2 == "" {
		r.Password2 = r.Password
	}
	var out AuthResponse
	if err := b.send(ctx, b.http, http.MethodPost, b.paths.Register, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh implements refresh.Refresher against the token refresh route.
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (refresh.Tokens, error) {
	var out struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	req := map[string]string{"refresh": refreshToken}
	if err := b.send(ctx, b.http, http.MethodPost, b.paths.Refresh, req, &out); err != nil {
		return refresh.Tokens{}, err
	}
	return refresh.Tokens{Access: out.Access, Refresh: out.Refresh}, nil
}

// Account returns the profile API bound to an authenticated Doer.
func (b *Backend) Account(doer Doer) *Account {
	return &Account{b: b, doer: doer}
}

// Account groups the profile endpoints, which require a bearer token.
type Account struct {
	b    *Backend
	doer Doer
}

// UpdateProfile sends the changed fields and returns the updated user.
func (a *Account) UpdateProfile(ctx context.Context, u ProfileUpdate) (*User, error) {
	var out User
	if err := a.b.send(ctx, a.doer, http.MethodPut, a.b.paths.Profile, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword verifies oldPassword server side and sets newPassword.
func (a *Account) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return a.b.send(ctx, a.doer, http.MethodPost, a.b.paths.Password, body, nil)
}

// UploadAvatar posts the image as the multipart field "avatar" and
// returns the stored avatar URL.
func (a *Account) UploadAvatar(ctx context.Context, filename string, image io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, image); err != nil {
		return "", fmt.Errorf("api: read avatar: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.b.URL(a.b.paths.Avatar), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out struct {
		Avatar string `json:"avatar"`
	}
	if err := a.b.roundTrip(a.doer, req, &out); err != nil {
		return "", err
	}
	return out.Avatar, nil
}

func (b *Backend) send(ctx context.Context, doer Doer, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.URL(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return b.roundTrip(doer, req, out)
}

func (b *Backend) roundTrip(doer Doer, req *http.Request, out any) error {
	resp, err := doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ReadError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
