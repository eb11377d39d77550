package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, kv session.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	require.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, kv.Set(ctx, "auth-storage", []byte(`{"v":1}`)))
	got, err := kv.Get(ctx, "auth-storage")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))

	require.NoError(t, kv.Set(ctx, "auth-storage", []byte(`{"v":2}`)))
	got, err = kv.Get(ctx, "auth-storage")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(got))

	require.NoError(t, kv.Remove(ctx, "auth-storage"))
	_, err = kv.Get(ctx, "auth-storage")
	require.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, kv.Remove(ctx, "auth-storage"))
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	in := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", in))
	in[0] = 'X'
	out, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(out))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	exerciseStore(t, NewRedis(rdb, "gs:", 0))

	ctx := context.Background()
	withTTL := NewRedis(rdb, "gs:", time.Minute)
	require.NoError(t, withTTL.Set(ctx, "k", []byte("v")))
	assert.True(t, mr.Exists("gs:k"))
	assert.Equal(t, time.Minute, mr.TTL("gs:k"))

	mr.FastForward(2 * time.Minute)
	_, err := withTTL.Get(ctx, "k")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	_, err := NewRedis(rdb, "", 0).Get(context.Background(), "k")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestFileStoreRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.kv")
	f, err := NewFile(path, []byte("s3cret-passphrase"))
	require.NoError(t, err)
	exerciseStore(t, f)

	ctx := context.Background()
	require.NoError(t, f.Set(ctx, "auth-storage", []byte("persisted")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "persisted")

	reopened, err := NewFile(path, []byte("s3cret-passphrase"))
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "auth-storage")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))

	_, err = NewFile(path, []byte("wrong-passphrase"))
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestFileStoreFailedWriteKeepsEntry(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(dir, "session.kv")
	f, err := NewFile(path, []byte("s3cret-passphrase"))
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, "auth-storage", []byte("persisted")))

	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0o600))

	require.Error(t, f.Remove(ctx, "auth-storage"))
	got, err := f.Get(ctx, "auth-storage")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))

	require.NoError(t, os.Remove(dir))
	require.NoError(t, f.Remove(ctx, "auth-storage"))
	reopened, err := NewFile(path, []byte("s3cret-passphrase"))
	require.NoError(t, err)
	_, err = reopened.Get(ctx, "auth-storage")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestFileStoreRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign")
	require.NoError(t, os.WriteFile(path, []byte("hello world, not ours"), 0o600))
	_, err := NewFile(path, []byte("pw"))
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, DialectSQLite, filepath.Join(t.TempDir(), "kv.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	assert.Equal(t, DialectSQLite, s.Dialect())
	exerciseStore(t, s)
}

func TestSQLRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, DialectSQLite, filepath.Join(t.TempDir(), "kv.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = NewSQL(ctx, s.db, DialectSQLite, "kv; DROP TABLE x")
	require.Error(t, err)

	_, err = NewSQL(ctx, s.db, Dialect("oracle"), "")
	require.Error(t, err)
}
