package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type sessionInfo struct {
	RefreshToken string `msgpack:"refreshToken"`
	SessionID    string `msgpack:"sessionId"`
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	file, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	_, client := newTestRedis(t)
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   file,
		"redis":  NewRedisBackend(client, WithPrefix("test")),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(backend)
			require.True(t, s.Available())

			var token string
			found, err := s.Get(ctx, "token", &token)
			assert.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Set(ctx, "token", "abc", DefaultTTL))
			require.NoError(t, s.Set(ctx, "sessionInfo", &sessionInfo{RefreshToken: "r1", SessionID: "s1"}, DefaultTTL))

			found, err = s.Get(ctx, "token", &token)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "abc", token)

			var info sessionInfo
			found, err = s.Get(ctx, "sessionInfo", &info)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, sessionInfo{RefreshToken: "r1", SessionID: "s1"}, info)

			require.NoError(t, s.Clear(ctx, "token"))
			found, err = s.Get(ctx, "token", &token)
			assert.NoError(t, err)
			assert.False(t, found)

			assert.NoError(t, s.Clear(ctx, "never-set"))
		})
	}
}

func TestStoreExpiryDeletesKey(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	backend := NewMemoryBackend()
	s := New(backend, WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "token", "abc", 5*24*time.Hour))
	assert.Equal(t, []string{"token"}, backend.Keys())

	clock.now = clock.now.Add(4 * 24 * time.Hour)
	var token string
	found, err := s.Get(ctx, "token", &token)
	require.NoError(t, err)
	assert.True(t, found)

	clock.now = clock.now.Add(2 * 24 * time.Hour)
	token = ""
	found, err = s.Get(ctx, "token", &token)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, token)
	assert.Empty(t, backend.Keys(), "expired key is removed from storage")
}

func TestStoreExpiryIsAbsolute(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(NewMemoryBackend(), WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", 1, time.Hour))
	clock.now = clock.now.Add(time.Hour)
	var v int
	found, err := s.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, found, "an entry is gone exactly at its expiration")
}

func TestStoreSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	backend := NewMemoryBackend()
	s := New(backend, WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "token", "abc", time.Hour))
	snap, ok, err := s.Snapshot(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)

	clock.now = clock.now.Add(30 * time.Minute)
	require.NoError(t, s.Set(ctx, "token", "xyz", time.Hour))
	require.NoError(t, s.Restore(ctx, "token", snap))

	var token string
	found, err := s.Get(ctx, "token", &token)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc", token)

	clock.now = clock.now.Add(30 * time.Minute)
	found, err = s.Get(ctx, "token", &token)
	require.NoError(t, err)
	assert.False(t, found, "restored entry keeps its original expiry")

	require.NoError(t, s.Set(ctx, "token", "abc", time.Hour))
	require.NoError(t, s.Restore(ctx, "token", nil))
	assert.Empty(t, backend.Keys())

	_, ok, err = New(nil).Snapshot(ctx, "token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreWithoutBackendIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	assert.False(t, s.Available())
	assert.NoError(t, s.Set(ctx, "token", "abc", DefaultTTL))
	var token string
	found, err := s.Get(ctx, "token", &token)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, s.Clear(ctx, "token"))

	var nilStore *Store
	assert.False(t, nilStore.Available())
}

func TestStoreRejectsNonPositiveTTL(t *testing.T) {
	s := New(NewMemoryBackend())
	assert.Error(t, s.Set(context.Background(), "k", "v", 0))
}

func TestStoreDiscardsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, "token", []byte("not msgpack at all \xff\xff")))
	s := New(backend)

	var token string
	found, err := s.Get(ctx, "token", &token)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, backend.Keys())
}

func TestFileBackendPermissionsAndEscaping(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFileBackend(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, f.Save(ctx, "a/b", []byte("x")))
	info, err := os.Stat(filepath.Join(f.Dir(), "a%2Fb"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, ok, err := f.Load(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), data)

	require.NoError(t, f.Delete(ctx, "a/b"))
	require.NoError(t, f.Delete(ctx, "a/b"))
	_, ok, err = f.Load(ctx, "a/b")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	f1, err := NewFileBackend(dir)
	require.NoError(t, err)
	require.NoError(t, New(f1).Set(ctx, "token", "persisted", time.Hour))

	f2, err := NewFileBackend(dir)
	require.NoError(t, err)
	var token string
	found, err := New(f2).Get(ctx, "token", &token)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "persisted", token)
}

func TestRedisBackendPrefix(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	r := NewRedisBackend(client, WithPrefix("dash"))
	require.NoError(t, r.Save(ctx, "token", []byte("v")))
	assert.True(t, mr.Exists("dash:token"))

	plain := NewRedisBackend(client, WithPrefix(""))
	require.NoError(t, plain.Save(ctx, "token", []byte("v")))
	assert.True(t, mr.Exists("token"))

	require.NoError(t, r.Delete(ctx, "token"))
	assert.False(t, mr.Exists("dash:token"))
}

func TestRedisBackendError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	s := New(NewRedisBackend(client, WithQueryTimeout(100*time.Millisecond)))
	var v string
	_, err := s.Get(context.Background(), "token", &v)
	assert.Error(t, err)
}
