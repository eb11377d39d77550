package goSession

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/kvstore"
	"github.com/MrEthical07/goSession/session"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// OpenStore builds the KeyValueStore selected by cfg. The returned Closer
// releases any connection the store opened and is never nil.
func OpenStore(ctx context.Context, cfg StorageConfig) (session.KeyValueStore, io.Closer, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Driver {
	case StorageMemory:
		return kvstore.NewMemory(), nopCloser, nil

	case StorageRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing redis_url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("%w: %w", kvstore.ErrRedisUnavailable, err)
		}
		return kvstore.NewRedis(rdb, cfg.RedisPrefix, cfg.RedisTTL), rdb, nil

	case StorageFile:
		f, err := kvstore.NewFile(cfg.FilePath, []byte(cfg.FilePassphrase))
		if err != nil {
			return nil, nil, err
		}
		return f, nopCloser, nil

	default:
		s, err := kvstore.OpenSQL(ctx, kvstore.Dialect(cfg.Driver), cfg.DSN, cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
