package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaths(t *testing.T) *Paths {
	dir := t.TempDir()
	return &Paths{
		ConfigDir: filepath.Join(dir, "config"),
		DataDir:   filepath.Join(dir, "data"),
		CacheDir:  filepath.Join(dir, "cache"),
	}
}

func TestLoadFileDefaults(t *testing.T) {
	paths := testPaths(t)

	cfg, err := LoadFile(filepath.Join(paths.ConfigDir, "missing.toml"), paths)
	require.NoError(t, err)

	assert.Equal(t, paths.DataDir, cfg.General.DataDir)
	assert.Equal(t, filepath.Join(paths.DataDir, "roster.db"), cfg.Storage.Database)
	assert.Equal(t, filepath.Join(paths.DataDir, "roster.log"), cfg.Logging.File)
	assert.Equal(t, 10*time.Minute, cfg.Reconcile.PendingTTL.Duration)
	assert.Equal(t, 1000, cfg.Reconcile.MaxPending)
	assert.Equal(t, 256, cfg.General.InboxSize)
}

func TestLoadFileOverrides(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.MkdirAll(paths.ConfigDir, 0700))

	path := filepath.Join(paths.ConfigDir, "config.toml")
	content := `
[logging]
level = "debug"

[reconcile]
pending_ttl = "30s"
max_pending = 10

[client]
name = "test-client"
features = ["urn:xmpp:ping"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("ROSTER_MAX_PENDING", "42")
	t.Setenv("ROSTER_METRICS_LISTEN", "127.0.0.1:9100")

	cfg, err := LoadFile(path, paths)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.PendingTTL.Duration)
	assert.Equal(t, 42, cfg.Reconcile.MaxPending, "environment wins over file")
	assert.Equal(t, "test-client", cfg.Client.Name)
	assert.Equal(t, []string{"urn:xmpp:ping"}, cfg.Client.Features)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Listen)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.MkdirAll(paths.ConfigDir, 0700))

	path := filepath.Join(paths.ConfigDir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[general]\ninbox_size = 0\n"), 0600))

	_, err := LoadFile(path, paths)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[reconcile]\npending_ttl = \"soon\"\n"), 0600))
	_, err = LoadFile(path, paths)
	assert.Error(t, err)
}

func TestLoadAccountsFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.toml")

	accounts, err := LoadAccountsFile(path)
	require.NoError(t, err)
	assert.Empty(t, accounts.Accounts)

	content := `
[[accounts]]
jid = "alice@example.com"
password = "secret"

[[accounts]]
jid = "bob@example.com"
port = 5223
resource = "laptop"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	accounts, err = LoadAccountsFile(path)
	require.NoError(t, err)
	require.Len(t, accounts.Accounts, 2)

	assert.Equal(t, 5222, accounts.Accounts[0].Port)
	assert.Equal(t, "roster", accounts.Accounts[0].Resource)
	assert.Equal(t, 5223, accounts.Accounts[1].Port)
	assert.Equal(t, "laptop", accounts.Accounts[1].Resource)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data"), expandPath("~/data"))
	assert.Equal(t, "/var/lib/roster", expandPath("/var/lib/roster"))
}
