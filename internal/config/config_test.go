package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proofledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9090"

[store]
backend = "redis"
namespace = "garden"

[redis]
addr = "redis:6379"

[ledger]
owner = "OWNER"
oracle = "ORACLE"
reward_rate = 3

[chain]
genesis = "2026-01-01T00:00:00Z"
block_interval = "30s"

[[auth.principals]]
identity = "A"
password_hash = "$2a$10$abc"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "redis", cfg.Store.Backend)
	require.Equal(t, "garden", cfg.Store.Namespace)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, ledger.Identity("OWNER"), cfg.Ledger.Owner)
	require.Equal(t, ledger.Identity("ORACLE"), cfg.Ledger.Oracle)
	require.Equal(t, int64(3), cfg.Ledger.RewardRate)
	// Unset genesis parameters keep their defaults.
	require.Equal(t, int64(144), cfg.Ledger.SubmissionTimeoutBlocks)
	require.Len(t, cfg.Auth.Principals, 1)

	d, err := cfg.Chain.Interval()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, d)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[store]\nbackend = \"etcd\"\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestOracleDefaultsToOwner(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	cfg, err := Load(write("owner.toml", "[ledger]\nowner = \"OWNER\"\n"))
	require.NoError(t, err)
	require.Equal(t, ledger.Identity("OWNER"), cfg.Ledger.Owner)
	require.Equal(t, ledger.Identity("OWNER"), cfg.Ledger.Oracle)

	cfg, err = Load(write("both.toml", "[ledger]\noracle = \"ORACLE\"\nowner = \"OWNER\"\n"))
	require.NoError(t, err)
	require.Equal(t, ledger.Identity("ORACLE"), cfg.Ledger.Oracle)

	cfg, err = Load(write("oracle.toml", "[ledger]\noracle = \"ORACLE\"\n"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Ledger.Owner, cfg.Ledger.Owner)
	require.Equal(t, ledger.Identity("ORACLE"), cfg.Ledger.Oracle)
}
