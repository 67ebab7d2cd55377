package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meszmate/xmpplink/internal/config"
	"github.com/meszmate/xmpplink/internal/storage/sqlite"
	"github.com/meszmate/xmpplink/internal/xmpp/roster"
)

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeAccountsFixture(home string) error {
	dir := filepath.Join(home, "config", "xmpplink")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	accounts := `
[[accounts]]
jid = "alice@example.com"
password = "secret"

[[accounts]]
jid = "bob@example.org"
server = "xmpp.example.org"
port = 5223
`
	return os.WriteFile(filepath.Join(dir, "accounts.toml"), []byte(accounts), 0o600)
}

func TestAccountsRequiresConfiguredAccounts(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "accounts")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoAccounts)
}

func TestAccountsShowsJournal(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	dataDir := filepath.Join(home, "data", "xmpplink")
	require.NoError(t, os.MkdirAll(dataDir, 0o700))
	journal, err := sqlite.New(dataDir)
	require.NoError(t, err)
	require.NoError(t, journal.SaveStatus("alice@example.com", "connected", nil))
	require.NoError(t, journal.SaveStatus("alice@example.com", "failed", errors.New("stream reset")))
	require.NoError(t, journal.Close())

	stdout, _, err := executeCLI(t, home, "accounts")
	require.NoError(t, err)
	assert.Contains(t, stdout, "alice@example.com")
	assert.Contains(t, stdout, "failed (stream reset)")
	assert.Contains(t, stdout, "(srv):5222")
	assert.Contains(t, stdout, "xmpp.example.org:5223")
}

func TestRosterUnknownAccount(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "roster", "--account", "carol@example.net")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carol@example.net")
}

func TestChatRejectsArgs(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "chat", "extra")
	require.Error(t, err)
}

func TestPickAccount(t *testing.T) {
	accounts := &config.AccountsConfig{Accounts: []config.Account{
		{JID: "alice@example.com", Password: "a"},
		{JID: "bob@example.org", Password: "b"},
		{JID: "carol@example.net"},
	}}

	acc, err := pickAccount(accounts, viper.New())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", acc.JID)

	v := viper.New()
	v.Set("account", "bob@example.org")
	acc, err = pickAccount(accounts, v)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.org", acc.JID)

	v.Set("account", "dave@example.net")
	_, err = pickAccount(accounts, v)
	assert.Error(t, err)

	v.Set("account", "carol@example.net")
	_, err = pickAccount(accounts, v)
	assert.ErrorContains(t, err, "XMPPLINK_PASSWORD")

	_, err = pickAccount(&config.AccountsConfig{}, viper.New())
	assert.ErrorIs(t, err, errNoAccounts)
}

func TestPickAccountPasswordFromEnv(t *testing.T) {
	t.Setenv("XMPPLINK_ACCOUNT", "carol@example.net")
	t.Setenv("XMPPLINK_PASSWORD", "from-env")

	accounts := &config.AccountsConfig{Accounts: []config.Account{
		{JID: "alice@example.com", Password: "a"},
		{JID: "carol@example.net"},
	}}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	acc, err := pickAccount(accounts, v)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.net", acc.JID)
	assert.Equal(t, "from-env", accounts.Accounts[1].Password)
}

func TestWriteRoster(t *testing.T) {
	contacts := []roster.Contact{
		{JID: "bob@example.com", Name: "Bob", Subscription: roster.SubscriptionBoth},
		{JID: "carol@example.net", Subscription: roster.SubscriptionNone},
	}

	var table bytes.Buffer
	require.NoError(t, writeRoster(&table, contacts, false))
	assert.Contains(t, table.String(), "SUBSCRIPTION")
	assert.Contains(t, table.String(), "bob@example.com")
	assert.Contains(t, table.String(), "none")

	var raw bytes.Buffer
	require.NoError(t, writeRoster(&raw, contacts, true))
	assert.True(t, json.Valid(raw.Bytes()))
	assert.Contains(t, raw.String(), `"JID": "carol@example.net"`)

	var empty bytes.Buffer
	require.NoError(t, writeRoster(&empty, nil, false))
	assert.Equal(t, "roster is empty\n", empty.String())
}

func TestInitWritesDefaultConfig(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "config.toml")

	path := filepath.Join(home, "config", "xmpplink", "config.toml")
	cfg, err := config.LoadFile(path, filepath.Join(home, "data", "xmpplink"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Connection, cfg.Connection)

	_, _, err = executeCLI(t, home, "init")
	assert.ErrorContains(t, err, "already exists")

	_, _, err = executeCLI(t, home, "init", "--force")
	assert.NoError(t, err)
}

func TestAccountsAdd(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	_, _, err := executeCLI(t, home, "accounts", "add", "carol@example.net", "--server", "xmpp.example.net", "--resource", "cli")
	require.NoError(t, err)

	accounts, err := config.LoadAccounts()
	require.NoError(t, err)
	carol, ok := accounts.Find("carol@example.net")
	require.True(t, ok)
	assert.Equal(t, "xmpp.example.net", carol.Server)
	assert.Equal(t, config.DefaultPort, carol.Port)
	assert.Equal(t, "carol@example.net/cli", carol.Address())
	assert.Empty(t, carol.Password)
	_, ok = accounts.Find("alice@example.com")
	assert.True(t, ok)

	_, _, err = executeCLI(t, home, "accounts", "add", "carol@example.net")
	assert.ErrorContains(t, err, "already exists")
}

func TestAccountsForget(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeAccountsFixture(home))

	dataDir := filepath.Join(home, "data", "xmpplink")
	require.NoError(t, os.MkdirAll(dataDir, 0o700))
	journal, err := sqlite.New(dataDir)
	require.NoError(t, err)
	require.NoError(t, journal.SaveStatus("alice@example.com", "connected", nil))
	require.NoError(t, journal.SaveStatus("bob@example.org", "connected", nil))
	require.NoError(t, journal.Close())

	stdout, _, err := executeCLI(t, home, "accounts", "forget", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, stdout, "forgot alice@example.com")

	accounts, err := config.LoadAccounts()
	require.NoError(t, err)
	_, ok := accounts.Find("alice@example.com")
	assert.False(t, ok)
	require.Len(t, accounts.Accounts, 1)

	journal, err = sqlite.New(dataDir)
	require.NoError(t, err)
	defer journal.Close()
	entry, err := journal.LastStatus("alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, entry)
	entry, err = journal.LastStatus("bob@example.org")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}
