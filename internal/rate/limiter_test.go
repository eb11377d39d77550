package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestLoginBudgetAndCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginFailures = 3
	l, mr := newLimiter(t, cfg)
	ctx := context.Background()

	require.NoError(t, l.CheckLogin(ctx, "a@x.io", "10.0.0.1"))
	require.NoError(t, l.FailLogin(ctx, "a@x.io", "10.0.0.1"))
	require.NoError(t, l.FailLogin(ctx, "a@x.io", "10.0.0.1"))
	assert.ErrorIs(t, l.FailLogin(ctx, "a@x.io", "10.0.0.1"), ErrRateLimited)
	assert.ErrorIs(t, l.CheckLogin(ctx, "a@x.io", "10.0.0.2"), ErrRateLimited)
	assert.ErrorIs(t, l.CheckLogin(ctx, "b@x.io", "10.0.0.1"), ErrRateLimited, "ip budget is shared")

	n, err := l.LoginFailures(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mr.FastForward(cfg.LoginCooldown + time.Second)
	assert.NoError(t, l.CheckLogin(ctx, "a@x.io", "10.0.0.1"))
}

func TestResetLoginClearsCounters(t *testing.T) {
	l, _ := newLimiter(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, l.FailLogin(ctx, "a@x.io", "10.0.0.1"))
	require.NoError(t, l.ResetLogin(ctx, "a@x.io", "10.0.0.1"))

	n, err := l.LoginFailures(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefreshThrottle(t *testing.T) {
	cfg := DefaultConfig()
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		require.NoError(t, l.AllowRefresh(ctx, "u1"), "throttle disabled by default")
	}

	cfg.EnableRefreshThrottle = true
	cfg.MaxRefreshes = 2
	cfg.KeyPrefix = "t2:"
	l, _ = newLimiter(t, cfg)
	require.NoError(t, l.AllowRefresh(ctx, "u1"))
	require.NoError(t, l.AllowRefresh(ctx, "u1"))
	assert.ErrorIs(t, l.AllowRefresh(ctx, "u1"), ErrRateLimited)
	assert.NoError(t, l.AllowRefresh(ctx, "u2"))
}

func TestRedisDownIsReported(t *testing.T) {
	l, mr := newLimiter(t, DefaultConfig())
	mr.Close()
	assert.ErrorIs(t, l.CheckLogin(context.Background(), "a@x.io", ""), ErrRedisUnavailable)
}
