package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/jwt"
)

// maxDrain bounds how much of a discarded 401 body is read.
const maxDrain = 16 << 10

// TokenSource supplies the session's current access token.
type TokenSource interface {
	AccessToken() string
}

// TokenRefresher returns a freshly refreshed access token, sharing any
// refresh already in flight.
type TokenRefresher interface {
	EnsureValidToken(ctx context.Context) (string, error)
}

// Hooks observe recovery activity. Nil fields are skipped.
type Hooks struct {
	// Replayed is called before a replay; stale reports that the
	// replay reuses a token another caller already refreshed.
	Replayed         func(stale bool)
	RetryExhausted   func()
	ProactiveRefresh func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport client. Defaults to http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBaseURL resolves relative request URLs against base.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if u, err := url.Parse(strings.TrimRight(base, "/") + "/"); err == nil && base != "" {
			c.base = u
		}
	}
}

// WithProactiveRefresh refreshes before sending when the access token is a
// JWT expiring within skew.
func WithProactiveRefresh(skew time.Duration) Option {
	return func(c *Client) { c.skew = skew }
}

// WithHooks installs observation hooks.
func WithHooks(h Hooks) Option {
	return func(c *Client) { c.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client attaches bearer tokens and recovers from expired access tokens.
type Client struct {
	tokens    TokenSource
	refresher TokenRefresher
	http      *http.Client
	base      *url.URL
	skew      time.Duration
	hooks     Hooks
	logger    *slog.Logger
}

// New returns a Client reading tokens from tokens and refreshing through
// refresher.
func New(tokens TokenSource, refresher TokenRefresher, opts ...Option) *Client {
	c := &Client{
		tokens:    tokens,
		refresher: refresher,
		http:      http.DefaultClient,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req with the current access token. On 401 it recovers once as
// described in the package documentation. The request body is buffered so
// it can be replayed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := c.prepare(req); err != nil {
		return nil, err
	}
	reqID := requestID(ctx)

	token := c.tokens.AccessToken()
	if c.expiringSoon(token) {
		if c.hooks.ProactiveRefresh != nil {
			c.hooks.ProactiveRefresh()
		}
		fresh, err := c.refresher.EnsureValidToken(ctx)
		if err != nil {
			return nil, err
		}
		token = fresh
	}

	resp, err := c.send(req, token, reqID)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drain(resp)

	next := c.tokens.AccessToken()
	stale := next != "" && next != token
	if !stale {
		next, err = c.refresher.EnsureValidToken(ctx)
		if err != nil {
			return nil, err
		}
	}
	if c.hooks.Replayed != nil {
		c.hooks.Replayed(stale)
	}

	resp, err = c.send(req, next, reqID)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	if c.hooks.RetryExhausted != nil {
		c.hooks.RetryExhausted()
	}
	detail := api.ReadError(resp).Detail
	resp.Body.Close()
	c.logger.Warn("client: request rejected after token refresh", "method", req.Method, "url", req.URL.String(), "request_id", reqID)
	return nil, &UnauthorizedError{Method: req.Method, URL: req.URL.String(), Detail: detail}
}

func (c *Client) prepare(req *http.Request) error {
	if c.base != nil && !req.URL.IsAbs() {
		req.URL = c.base.ResolveReference(&url.URL{
			Path:     strings.TrimPrefix(req.URL.Path, "/"),
			RawQuery: req.URL.RawQuery,
		})
		req.Host = ""
	}
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("client: buffer request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(body))
	return nil
}

func (c *Client) send(orig *http.Request, token, reqID string) (*http.Response, error) {
	req := orig.Clone(orig.Context())
	if orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}
	req.Header.Set(RequestIDHeader, reqID)
	return c.http.Do(req)
}

func (c *Client) expiringSoon(token string) bool {
	if c.skew <= 0 || token == "" {
		return false
	}
	exp, err := jwt.ExpiresAt(token)
	if err != nil {
		return false
	}
	return time.Until(exp) <= c.skew
}

/*
====================================
JSON HELPERS
====================================
*/

// GetJSON decodes the response of GET path into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends in as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

// PutJSON sends in as JSON with PUT and decodes the response into out.
func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

// Delete issues DELETE path and discards the body.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.ReadError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	resp.Body.Close()
}
