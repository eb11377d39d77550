package devbackend

import (
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/password"
)

// TestSecret signs tokens of servers created by NewTest.
var TestSecret = []byte("devbackend-test-secret-0123456789abcdef")

// FastPassword is the cheapest argon2id setting password accepts.
func FastPassword() password.Config {
	cfg := password.DefaultConfig()
	cfg.Memory = 8 * 1024
	cfg.Time = 1
	cfg.Parallelism = 1
	return cfg
}

// NewTest serves a Server on an httptest listener, with login throttling
// in an in-process Redis. Both are shut down with tb.
func NewTest(tb testing.TB, mutate ...func(*Config)) (*Server, *httptest.Server) {
	tb.Helper()

	mr := miniredis.RunT(tb)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	cfg.Secret = TestSecret
	cfg.Password = FastPassword()
	cfg.Redis = rdb
	for _, fn := range mutate {
		fn(&cfg)
	}

	srv, err := New(cfg)
	if err != nil {
		tb.Fatalf("devbackend: %v", err)
	}
	hs := httptest.NewServer(srv)
	tb.Cleanup(hs.Close)
	return srv, hs
}
