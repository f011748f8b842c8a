package gateway

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/lock"
	"github.com/2389/parley/internal/store"
)

func TestNew_MemoryBackend(t *testing.T) {
	gw, err := New(context.Background(), testConfig(), slog.Default())
	require.NoError(t, err)
	assert.IsType(t, &store.MockStore{}, gw.store)
	require.NoError(t, gw.Shutdown(context.Background()))
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Backend = config.BackendSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "data", "parley.db")

	s, locker, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &store.SQLiteStore{}, s)
	assert.IsType(t, &lock.LocalLocker{}, locker)
}

func TestOpenStore_RedisSharesLock(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Database.Backend = config.BackendRedis
	cfg.Database.RedisURL = "redis://" + mr.Addr() + "/0"

	s, locker, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &store.RedisStore{}, s)
	assert.IsType(t, &lock.RedisLocker{}, locker)
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Backend = "cassandra"

	_, _, err := openStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewGateway_RejectsUnknownLockScope(t *testing.T) {
	cfg := testConfig()
	cfg.Conversations.Lock.Scope = "global"

	_, err := newGateway(context.Background(), cfg, store.NewMockStore(), lock.NewLocalLocker(lock.DefaultOptions()), slog.Default())
	assert.Error(t, err)
}

func TestLockOptions(t *testing.T) {
	opts := lockOptions(config.LockConfig{
		Attempts:   3,
		RetryDelay: 10 * time.Millisecond,
		Timeout:    time.Second,
		TTL:        2 * time.Second,
	})
	assert.Equal(t, 3, opts.Attempts)
	assert.Equal(t, 10*time.Millisecond, opts.RetryDelay)
	assert.Equal(t, time.Second, opts.Timeout)
	assert.Equal(t, 2*time.Second, opts.TTL)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/parley")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/parley", dir)

	t.Setenv("HOME", "/home/test")
	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/test", ".local", "share", "parley-gateway", "tailscale"), dir)
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)

	t.Setenv("TS_AUTHKEY", "")
	_, err = resolveTailscaleAuthKey("")
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	gw, _ := newTestGateway(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_TailnetNeedsAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	cfg := testConfig()
	cfg.Tailscale = config.TailscaleConfig{Enabled: true, Hostname: "parley", StateDir: filepath.Join(t.TempDir(), "ts")}
	gw, _ := newTestGateway(t, cfg)

	err := gw.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth key")
	assert.Nil(t, gw.tsnetServer)
	assert.DirExists(t, cfg.Tailscale.StateDir)
}
