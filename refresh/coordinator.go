package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds a single refresh call.
const DefaultTimeout = 15 * time.Second

// Tokens is the result of a refresh call. Refresh is empty when the
// backend does not rotate refresh tokens.
type Tokens struct {
	Access  string
	Refresh string
}

// Refresher performs the network exchange of a refresh token.
//
//go:generate go run go.uber.org/mock/mockgen -package=refresh -destination=refresher_mock_test.go github.com/MrEthical07/goSession/refresh Refresher
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (Tokens, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return f(ctx, refreshToken)
}

// TokenProvider is the session side of a refresh: it supplies the current
// tokens and receives the outcome.
//
// usedRefresh is the refresh token the cycle was started with. OnRefreshed
// and OnInvalidate must only act on the session still holding it; a session
// established while the refresh was in flight is left untouched and
// OnRefreshed reports an error.
type TokenProvider interface {
	AccessToken() string
	RefreshToken() string
	OnRefreshed(ctx context.Context, usedRefresh, access, refresh string) error
	OnInvalidate(ctx context.Context, usedRefresh string)
}

// Hooks observe coordinator activity. Nil fields are skipped.
type Hooks struct {
	Started func()
	Queued  func()
	Settled func(waiters int, elapsed time.Duration, err error)
}

// Options configures a Coordinator.
type Options struct {
	Provider  TokenProvider
	Refresher Refresher
	Timeout   time.Duration
	Hooks     Hooks
	Logger    *slog.Logger
}

type result struct {
	token string
	err   error
}

// Coordinator is the single-flight refresh state machine.
type Coordinator struct {
	provider  TokenProvider
	refresher Refresher
	timeout   time.Duration
	hooks     Hooks
	logger    *slog.Logger

	mu         sync.Mutex
	refreshing bool
	waiters    []chan result

	cycles atomic.Uint64
}

// New validates opts and returns an idle Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Provider == nil {
		return nil, errors.New("refresh: provider is required")
	}
	if opts.Refresher == nil {
		return nil, errors.New("refresh: refresher is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		provider:  opts.Provider,
		refresher: opts.Refresher,
		timeout:   opts.Timeout,
		hooks:     opts.Hooks,
		logger:    opts.Logger,
	}, nil
}

// EnsureValidToken returns a freshly refreshed access token. If a refresh
// is already running the caller joins it instead of starting another.
func (c *Coordinator) EnsureValidToken(ctx context.Context) (string, error) {
	ch := make(chan result, 1)

	c.mu.Lock()
	lead := !c.refreshing
	c.refreshing = true
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	if lead {
		c.cycles.Add(1)
		if c.hooks.Started != nil {
			c.hooks.Started()
		}
		go c.run(context.WithoutCancel(ctx), c.provider.RefreshToken())
	} else if c.hooks.Queued != nil {
		c.hooks.Queued()
	}

	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		c.abandon(ch)
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, refreshToken string) {
	start := time.Now()
	res := c.refresh(ctx, refreshToken)

	if res.err != nil {
		c.logger.Warn("refresh: token refresh failed", "err", res.err)
		c.provider.OnInvalidate(ctx, refreshToken)
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	for _, w := range waiters {
		w <- res
	}
	c.refreshing = false
	c.mu.Unlock()

	if c.hooks.Settled != nil {
		c.hooks.Settled(len(waiters), time.Since(start), res.err)
	}
}

func (c *Coordinator) refresh(ctx context.Context, refreshToken string) result {
	if refreshToken == "" {
		return result{err: &Error{Err: ErrNoRefreshToken}}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	tokens, err := c.refresher.Refresh(callCtx, refreshToken)
	cancel()
	if err == nil && tokens.Access == "" {
		err = ErrEmptyAccessToken
	}
	if err == nil {
		err = c.provider.OnRefreshed(ctx, refreshToken, tokens.Access, tokens.Refresh)
	}
	if err != nil {
		return result{err: &Error{Err: err}}
	}
	return result{token: tokens.Access}
}

// abandon drops ch from the queue if the cycle has not settled yet.
func (c *Coordinator) abandon(ch chan result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Waiters returns the number of callers parked on the current cycle,
// including the one that started it.
func (c *Coordinator) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Cycles returns how many refresh calls have been started.
func (c *Coordinator) Cycles() uint64 {
	return c.cycles.Load()
}
