package devbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/permission"
)

func post(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLoginReturnsUserAndPair(t *testing.T) {
	srv, hs := NewTest(t)
	_, err := srv.Seed(SeedUser{Email: "ada@uni.edu", Password: "correct-horse", FullName: "Ada Lovelace", Role: permission.RoleFaculty})
	require.NoError(t, err)

	b := api.NewBackend(hs.URL, hs.Client(), api.DefaultPaths())
	resp, err := b.Login(context.Background(), api.Credentials{Email: "  ADA@uni.edu ", Password: "correct-horse"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Access)
	assert.NotEmpty(t, resp.Refresh)
	assert.Equal(t, "ada@uni.edu", resp.User.Email)
	assert.Equal(t, permission.RoleFaculty, resp.User.Role)
	assert.Equal(t, "Ada Lovelace", resp.User.DisplayName())
	require.NotNil(t, resp.User.IsActive)
	assert.True(t, *resp.User.IsActive)
}

func TestLoginRejectsWrongPasswordAndThrottles(t *testing.T) {
	srv, hs := NewTest(t, func(c *Config) { c.Rate.MaxLoginFailures = 2 })
	_, err := srv.Seed(SeedUser{Email: "bob@uni.edu", Password: "right-password"})
	require.NoError(t, err)
	b := api.NewBackend(hs.URL, hs.Client(), api.DefaultPaths())
	ctx := context.Background()

	_, err = b.Login(ctx, api.Credentials{Email: "bob@uni.edu", Password: "wrong-password"})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "No active account found with the given credentials", api.FormatError(err, ""))

	_, _ = b.Login(ctx, api.Credentials{Email: "bob@uni.edu", Password: "wrong-password"})
	_, err = b.Login(ctx, api.Credentials{Email: "bob@uni.edu", Password: "right-password"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestRegisterValidatesFields(t *testing.T) {
	srv, hs := NewTest(t)
	_, err := srv.Seed(SeedUser{Email: "taken@uni.edu", Password: "long-enough"})
	require.NoError(t, err)
	b := api.NewBackend(hs.URL, hs.Client(), api.DefaultPaths())

	_, err = b.Register(context.Background(), api.Registration{Email: "taken@uni.edu", Password: "long-enough"})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, []string{"user with this email already exists."}, apiErr.FieldMessages("email"))

	resp, err := b.Register(context.Background(), api.Registration{Email: "new@uni.edu", Password: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, "new", resp.User.Username)
	assert.Equal(t, permission.RoleStudent, resp.User.Role)
}

func TestRefreshControls(t *testing.T) {
	srv, hs := NewTest(t)
	_, err := srv.Seed(SeedUser{Email: "c@uni.edu", Password: "long-enough", Role: permission.RoleStaff})
	require.NoError(t, err)
	b := api.NewBackend(hs.URL, hs.Client(), api.DefaultPaths())
	ctx := context.Background()

	pair, err := b.Login(ctx, api.Credentials{Email: "c@uni.edu", Password: "long-enough"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(t, hs.URL+MePath, pair.Access).StatusCode)
	srv.RevokeAccessTokens()
	assert.Equal(t, http.StatusUnauthorized, get(t, hs.URL+MePath, pair.Access).StatusCode)

	tokens, err := b.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.Empty(t, tokens.Refresh, "refresh is not rotated by default")
	assert.Equal(t, http.StatusOK, get(t, hs.URL+MePath, tokens.Access).StatusCode)

	srv.FailRefresh(true)
	_, err = b.Refresh(ctx, pair.Refresh)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.EqualValues(t, 2, srv.RefreshCalls())
}

func TestRefreshRotation(t *testing.T) {
	srv, hs := NewTest(t, func(c *Config) { c.RotateRefresh = true })
	_, err := srv.Seed(SeedUser{Email: "d@uni.edu", Password: "long-enough"})
	require.NoError(t, err)
	b := api.NewBackend(hs.URL, hs.Client(), api.DefaultPaths())
	ctx := context.Background()

	pair, err := b.Login(ctx, api.Credentials{Email: "d@uni.edu", Password: "long-enough"})
	require.NoError(t, err)
	tokens, err := b.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.Refresh)

	_, err = b.Refresh(ctx, pair.Refresh)
	assert.Error(t, err, "rotated refresh token is single use")
}

func TestRoleGatedRoutes(t *testing.T) {
	srv, hs := NewTest(t)
	_, err := srv.Seed(SeedUser{Email: "s@uni.edu", Password: "long-enough", Role: permission.RoleStudent})
	require.NoError(t, err)
	_, err = srv.Seed(SeedUser{Email: "a@uni.edu", Password: "long-enough", Role: permission.RoleAdmin})
	require.NoError(t, err)
	victim, err := srv.Seed(SeedUser{Email: "v@uni.edu", Password: "long-enough"})
	require.NoError(t, err)
	b := api.NewBackend(hs.URL, hs.Client(), api.DefaultPaths())
	ctx := context.Background()

	student, err := b.Login(ctx, api.Credentials{Email: "s@uni.edu", Password: "long-enough"})
	require.NoError(t, err)
	admin, err := b.Login(ctx, api.Credentials{Email: "a@uni.edu", Password: "long-enough"})
	require.NoError(t, err)

	resp := get(t, hs.URL+ReportsPath, student.Access)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Required role: STAFF", body["required"])

	assert.Equal(t, http.StatusOK, get(t, hs.URL+ReportsPath, admin.Access).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, hs.URL+ReportsPath, "").StatusCode)

	req, err := http.NewRequest(http.MethodDelete, hs.URL+UsersPath+victim+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+admin.Access)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)
}

func TestRefreshDelayHonoursClientCancel(t *testing.T) {
	srv, hs := NewTest(t)
	srv.SetRefreshDelay(time.Second)
	b := api.NewBackend(hs.URL, hs.Client(), api.DefaultPaths())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Refresh(ctx, "whatever")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "deadline"), err.Error())
}

func TestChangePasswordChecksOld(t *testing.T) {
	srv, hs := NewTest(t)
	_, err := srv.Seed(SeedUser{Email: "e@uni.edu", Password: "old-password"})
	require.NoError(t, err)
	b := api.NewBackend(hs.URL, hs.Client(), api.DefaultPaths())
	pair, err := b.Login(context.Background(), api.Credentials{Email: "e@uni.edu", Password: "old-password"})
	require.NoError(t, err)

	resp := post(t, hs.URL+api.DefaultPaths().Password, pair.Access, map[string]string{"old_password": "nope-nope", "new_password": "new-password"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, hs.URL+api.DefaultPaths().Password, pair.Access, map[string]string{"old_password": "old-password", "new_password": "new-password"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = b.Login(context.Background(), api.Credentials{Email: "e@uni.edu", Password: "new-password"})
	assert.NoError(t, err)
}
