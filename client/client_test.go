package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens struct {
	mu          sync.Mutex
	access      string
	refresh     string
	invalidated int
}

func (s *tokens) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *tokens) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

func (s *tokens) OnRefreshed(_ context.Context, _, access, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	return nil
}

func (s *tokens) OnInvalidate(context.Context, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
	s.access, s.refresh = "", ""
}

func (s *tokens) set(access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
}

type harness struct {
	store   *tokens
	coord   *refresh.Coordinator
	client  *Client
	calls   atomic.Int32
	replays atomic.Int32
	stale   atomic.Int32
	hooks   Hooks
}

func newHarness(t *testing.T, srv *httptest.Server, r refresh.RefresherFunc, opts ...Option) *harness {
	t.Helper()
	h := &harness{store: &tokens{access: "a1", refresh: "r1"}}
	coord, err := refresh.New(refresh.Options{
		Provider: h.store,
		Refresher: refresh.RefresherFunc(func(ctx context.Context, tok string) (refresh.Tokens, error) {
			h.calls.Add(1)
			return r(ctx, tok)
		}),
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	h.coord = coord
	h.hooks = Hooks{Replayed: func(stale bool) {
		h.replays.Add(1)
		if stale {
			h.stale.Add(1)
		}
	}}
	all := append([]Option{WithHTTPClient(srv.Client()), WithBaseURL(srv.URL), WithHooks(h.hooks)}, opts...)
	h.client = New(h.store, coord, all...)
	return h
}

// acceptOnly answers 401 to every bearer token except valid.
func acceptOnly(valid string, seen *[]string, mu *sync.Mutex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if mu != nil {
			mu.Lock()
			*seen = append(*seen, auth)
			mu.Unlock()
		}
		if auth != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Given token not valid for any token type"}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"echo":`+strings.TrimSpace(string(orDefault(body, `null`)))+`,"rid":"`+r.Header.Get(RequestIDHeader)+`"}`)
	}
}

func orDefault(b []byte, def string) []byte {
	if len(b) == 0 {
		return []byte(def)
	}
	return b
}

func TestDoAttachesBearerAndRequestID(t *testing.T) {
	srv := httptest.NewServer(acceptOnly("a1", nil, nil))
	defer srv.Close()
	h := newHarness(t, srv, func(context.Context, string) (refresh.Tokens, error) {
		t.Fatal("unexpected refresh")
		return refresh.Tokens{}, nil
	})

	var out struct {
		RID string `json:"rid"`
	}
	ctx := WithRequestID(context.Background(), "req-123")
	require.NoError(t, h.client.GetJSON(ctx, "/items/", &out))
	assert.Equal(t, "req-123", out.RID)

	require.NoError(t, h.client.GetJSON(context.Background(), "/items/", &out))
	assert.Len(t, out.RID, 36)
}

func TestDoRefreshesAndReplaysBodyOnce(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(acceptOnly("a2", &seen, &mu))
	defer srv.Close()
	h := newHarness(t, srv, func(_ context.Context, tok string) (refresh.Tokens, error) {
		assert.Equal(t, "r1", tok)
		return refresh.Tokens{Access: "a2"}, nil
	})

	var out struct {
		Echo map[string]string `json:"echo"`
		RID  string            `json:"rid"`
	}
	require.NoError(t, h.client.PostJSON(context.Background(), "/requests/", map[string]string{"item": "microscope"}, &out))
	assert.Equal(t, "microscope", out.Echo["item"])
	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, seen)
	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, int32(1), h.replays.Load())
	assert.Equal(t, "a2", h.store.AccessToken())
}

func TestDoPersistent401IsReturnedAfterOneRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"User is inactive"}`)
	}))
	defer srv.Close()
	var exhausted atomic.Int32
	h := newHarness(t, srv, func(context.Context, string) (refresh.Tokens, error) {
		return refresh.Tokens{Access: "a2"}, nil
	})
	h.client.hooks.RetryExhausted = func() { exhausted.Add(1) }

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/reports/", nil)
	resp, err := h.client.Do(req)
	assert.Nil(t, resp)
	require.True(t, IsUnauthorized(err))
	var ue *UnauthorizedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "User is inactive", ue.Detail)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, int32(1), exhausted.Load())
}

func TestDoPropagatesRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(acceptOnly("never", nil, nil))
	defer srv.Close()
	h := newHarness(t, srv, func(context.Context, string) (refresh.Tokens, error) {
		return refresh.Tokens{}, &api.Error{Status: http.StatusUnauthorized, Detail: "Token is blacklisted"}
	})

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/items/", nil)
	_, err := h.client.Do(req)
	require.ErrorIs(t, err, refresh.ErrRefreshFailed)
	assert.False(t, IsUnauthorized(err))
	assert.Equal(t, 1, h.store.invalidated)
	assert.Zero(t, h.replays.Load())
}

func TestDoReplaysWithAlreadyRefreshedToken(t *testing.T) {
	var h *harness
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer a1" {
			// another caller refreshed while this request was in flight
			h.store.set("a2")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()
	h = newHarness(t, srv, func(context.Context, string) (refresh.Tokens, error) {
		return refresh.Tokens{Access: "a3"}, nil
	})

	require.NoError(t, h.client.GetJSON(context.Background(), "/items/", nil))
	assert.Zero(t, h.calls.Load())
	assert.Equal(t, int32(1), h.stale.Load())
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const n = 12
	var unauthorized atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a2" {
			unauthorized.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	h := newHarness(t, srv, func(ctx context.Context, _ string) (refresh.Tokens, error) {
		deadline := time.Now().Add(time.Second)
		for unauthorized.Load() < n && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		return refresh.Tokens{Access: "a2"}, nil
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.client.GetJSON(context.Background(), "/items/", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, int32(n), unauthorized.Load())
}

func TestProactiveRefreshBeforeExpiry(t *testing.T) {
	m, err := jwt.NewManager(jwt.Config{
		AccessTTL: 20 * time.Second, RefreshTTL: time.Hour,
		SigningMethod: jwt.MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef"),
	})
	require.NoError(t, err)
	soon, _, err := m.Issue(jwt.KindAccess, "1", "STAFF")
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(acceptOnly("a2", &seen, &mu))
	defer srv.Close()
	var proactive atomic.Int32
	h := newHarness(t, srv, func(context.Context, string) (refresh.Tokens, error) {
		return refresh.Tokens{Access: "a2"}, nil
	}, WithProactiveRefresh(time.Minute))
	h.client.hooks.ProactiveRefresh = func() { proactive.Add(1) }
	h.store.set(soon)

	require.NoError(t, h.client.GetJSON(context.Background(), "/items/", nil))
	assert.Equal(t, []string{"Bearer a2"}, seen)
	assert.Equal(t, int32(1), proactive.Load())
}

func TestJSONHelpersReturnAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPut:
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"detail":"You do not have permission to perform this action."}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	h := newHarness(t, srv, func(context.Context, string) (refresh.Tokens, error) {
		return refresh.Tokens{}, errors.New("unused")
	})

	ctx := context.Background()
	require.NoError(t, h.client.Delete(ctx, "/requests/4/"))

	err := h.client.PutJSON(ctx, "/inventory/1/", map[string]int{"qty": 3}, nil)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "You do not have permission to perform this action.", api.FormatError(err, ""))
	assert.Zero(t, h.calls.Load())
}
