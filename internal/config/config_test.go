package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFile(filepath.Join(dir, "config.toml"), dir)
	require.NoError(t, err)

	assert.True(t, cfg.General.AutoRoster)
	assert.Equal(t, dir, cfg.General.DataDir)
	assert.Equal(t, filepath.Join(dir, "xmpplink.log"), cfg.Logging.File)
	assert.Equal(t, time.Second, cfg.PumpTimeout())
	assert.Equal(t, 30*time.Second, cfg.DialTimeout())
	assert.True(t, cfg.Storage.Journal)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[general]
auto_roster = false

[logging]
level = "debug"

[connection]
pump_timeout_ms = 250

[storage]
journal = false
`)

	cfg, err := LoadFile(path, dir)
	require.NoError(t, err)

	assert.False(t, cfg.General.AutoRoster)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.PumpTimeout())
	assert.False(t, cfg.Storage.Journal)
}

func TestLoadFileRejectsBadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", "[general\n")

	_, err := LoadFile(path, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadAccountsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "accounts.toml", `
[[accounts]]
jid = "alice@example.com"
password = "secret"

[[accounts]]
jid = "bob@example.org"
server = "xmpp.example.org"
port = 5223
resource = "laptop"
`)

	accounts, err := LoadAccountsFile(path)
	require.NoError(t, err)
	require.Len(t, accounts.Accounts, 2)

	alice, ok := accounts.Find("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, DefaultPort, alice.Port)
	assert.Equal(t, "alice@example.com", alice.Address())

	bob, ok := accounts.Find("bob@example.org")
	require.True(t, ok)
	assert.Equal(t, 5223, bob.Port)
	assert.Equal(t, "bob@example.org/laptop", bob.Address())

	_, ok = accounts.Find("carol@example.net")
	assert.False(t, ok)
}

func TestLoadAccountsFileValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadAccountsFile(writeFile(t, dir, "nojid.toml", "[[accounts]]\npassword = \"x\"\n"))
	assert.ErrorContains(t, err, "missing jid")

	_, err = LoadAccountsFile(writeFile(t, dir, "port.toml", "[[accounts]]\njid = \"a@b\"\nport = 70000\n"))
	assert.ErrorContains(t, err, "out of range")
}

func TestLoadAccountsFileMissing(t *testing.T) {
	accounts, err := LoadAccountsFile(filepath.Join(t.TempDir(), "accounts.toml"))
	require.NoError(t, err)
	assert.Empty(t, accounts.Accounts)
}

func TestSaveAndLoadUnderXDG(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))

	cfg := DefaultConfig()
	cfg.Connection.PumpTimeoutMS = 50
	require.NoError(t, Save(cfg))
	require.NoError(t, SaveAccounts(&AccountsConfig{Accounts: []Account{{JID: "alice@example.com"}}}))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, loaded.Connection.PumpTimeoutMS)
	assert.Equal(t, filepath.Join(home, "data", "xmpplink"), loaded.General.DataDir)

	accounts, err := LoadAccounts()
	require.NoError(t, err)
	require.Len(t, accounts.Accounts, 1)
	assert.Equal(t, DefaultPort, accounts.Accounts[0].Port)

	info, err := os.Stat(filepath.Join(home, "config", "xmpplink", "accounts.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestAccountsAddRemove(t *testing.T) {
	accounts := &AccountsConfig{}

	require.NoError(t, accounts.Add(Account{JID: "alice@example.com"}))
	assert.Equal(t, DefaultPort, accounts.Accounts[0].Port)

	assert.ErrorContains(t, accounts.Add(Account{JID: "alice@example.com"}), "already exists")
	assert.ErrorContains(t, accounts.Add(Account{}), "missing jid")
	assert.ErrorContains(t, accounts.Add(Account{JID: "bob@example.org", Port: -1}), "out of range")
	require.Len(t, accounts.Accounts, 1)

	assert.True(t, accounts.Remove("alice@example.com"))
	assert.False(t, accounts.Remove("alice@example.com"))
	assert.Empty(t, accounts.Accounts)
}
