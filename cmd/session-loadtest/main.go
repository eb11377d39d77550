package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/internal/devbackend"
	"github.com/MrEthical07/goSession/kvstore"
	"github.com/MrEthical07/goSession/permission"
)

const loadPassword = "load-test-password"

func main() {
	var (
		managers     = flag.Int("managers", 8, "number of independent sessions")
		concurrency  = flag.Int("concurrency", 64, "concurrent requests per session and round")
		rounds       = flag.Int("rounds", 20, "access token revocations to survive")
		refreshDelay = flag.Duration("refresh-delay", 20*time.Millisecond, "latency added to every refresh response")
		redisAddr    = flag.String("redis-addr", "", "redis address for session storage; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()
	_ = godotenv.Load()

	if *managers <= 0 || *concurrency <= 0 || *rounds <= 0 {
		fmt.Fprintln(os.Stderr, "managers, concurrency, and rounds must be > 0")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer rdb.Close()

	cfg := devbackend.DefaultConfig()
	cfg.Secret = []byte("session-loadtest-secret-0123456789")
	cfg.Password = devbackend.FastPassword()
	cfg.Logger = logger
	srv, err := devbackend.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dev backend: %v\n", err)
		os.Exit(1)
	}
	hs := httptest.NewServer(srv)
	defer hs.Close()

	sessions, err := signIn(ctx, hs, rdb, logger, *managers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign in: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		for _, m := range sessions {
			_ = m.Close()
		}
	}()

	srv.SetRefreshDelay(*refreshDelay)
	stats := runRounds(ctx, srv, sessions, *rounds, *concurrency)

	fmt.Println("---- results ----")
	printStats("request", stats)

	want := int64(*rounds * *managers)
	fmt.Printf("refresh calls: %d (expected %d)\n", srv.RefreshCalls(), want)
	var queued, replayed uint64
	for _, m := range sessions {
		queued += m.Metrics().Value(goSession.MetricRefreshWaiterQueued)
		replayed += m.Metrics().Value(goSession.MetricRequestReplayed)
	}
	fmt.Printf("waiters queued: %d, requests replayed: %d\n", queued, replayed)
	if srv.RefreshCalls() != want || stats.failures > 0 {
		fmt.Fprintln(os.Stderr, "single-flight refresh violated")
		os.Exit(1)
	}
}

// signIn creates one account and one Manager per session, each persisting
// to its own key in Redis.
func signIn(ctx context.Context, hs *httptest.Server, rdb redis.UniversalClient, logger *slog.Logger, n int) ([]*goSession.Manager, error) {
	out := make([]*goSession.Manager, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("load%d@uni.edu", i)

		cfg := goSession.DefaultConfig()
		cfg.Backend.BaseURL = hs.URL
		cfg.Session.StorageKey = fmt.Sprintf("loadtest:%d", i)
		cfg.Idle.Enabled = false

		m, err := goSession.New().
			WithConfig(cfg).
			WithStore(kvstore.NewRedis(rdb, "gosession:", 0)).
			WithHTTPClient(hs.Client()).
			WithLogger(logger).
			Build(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, m)

		_, err = m.Register(ctx, api.Registration{Email: email, Password: loadPassword, Role: permission.RoleStudent})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func runRounds(ctx context.Context, srv *devbackend.Server, sessions []*goSession.Manager, rounds, concurrency int) phaseStats {
	var (
		mu        sync.Mutex
		latencies []time.Duration
		failures  int64
	)

	start := time.Now()
	for r := 0; r < rounds; r++ {
		srv.RevokeAccessTokens()

		g, gctx := errgroup.WithContext(ctx)
		for _, m := range sessions {
			for w := 0; w < concurrency; w++ {
				g.Go(func() error {
					var out map[string]any
					t0 := time.Now()
					err := m.Client().GetJSON(gctx, devbackend.MePath, &out)
					d := time.Since(t0)

					mu.Lock()
					latencies = append(latencies, d)
					if err != nil {
						failures++
					}
					mu.Unlock()
					return err
				})
			}
		}
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "round %d: %v\n", r, err)
		}
	}
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
