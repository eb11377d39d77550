package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the fixed-window budgets.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginFailures      int
	LoginCooldown         time.Duration
	EnableRefreshThrottle bool
	MaxRefreshes          int
	RefreshWindow         time.Duration
	// KeyPrefix namespaces every counter; defaults to "devauth:".
	KeyPrefix string
}

// DefaultConfig allows five failed logins per ten minutes and does not
// throttle refreshes.
func DefaultConfig() Config {
	return Config{
		EnableIPThrottle: true,
		MaxLoginFailures: 5,
		LoginCooldown:    10 * time.Minute,
		MaxRefreshes:     120,
		RefreshWindow:    time.Minute,
		KeyPrefix:        "devauth:",
	}
}

// Limiter counts failed logins per email and per client IP, and refreshes
// per subject, in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter on rdb.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "devauth:"
	}
	return &Limiter{redis: rdb, config: cfg}
}

// CheckLogin fails with ErrRateLimited once email or ip has used its
// failure budget.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	for _, key := range l.loginKeys(email, ip) {
		if err := l.checkCounter(ctx, key, l.config.MaxLoginFailures); err != nil {
			return err
		}
	}
	return nil
}

// FailLogin records a failed attempt. It returns ErrRateLimited when this
// attempt exhausted the budget.
func (l *Limiter) FailLogin(ctx context.Context, email, ip string) error {
	limited := false
	for _, key := range l.loginKeys(email, ip) {
		count, err := l.incrementWithTTL(ctx, key, l.config.LoginCooldown)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxLoginFailures) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	if err := l.redis.Del(ctx, l.loginKeys(email, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginFailures returns the failure count for email. Missing keys count
// as zero.
func (l *Limiter) LoginFailures(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.key("login", email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(max(count, 0)), nil
}

// AllowRefresh counts one refresh for subject and fails once the window
// budget is spent. It always succeeds when refresh throttling is off.
func (l *Limiter) AllowRefresh(ctx context.Context, subject string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.key("refresh", subject), l.config.RefreshWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshes) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) loginKeys(email, ip string) []string {
	keys := []string{l.key("login", email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.key("login-ip", ip))
	}
	return keys
}

func (l *Limiter) key(kind, id string) string {
	return l.config.KeyPrefix + kind + ":" + id
}

func (l *Limiter) checkCounter(ctx context.Context, key string, limit int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
