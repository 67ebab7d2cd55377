package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meszmate/xmpplink/internal/config"
	"github.com/meszmate/xmpplink/internal/logging"
)

var errNoAccounts = errors.New("no accounts configured")

const envPrefix = "XMPPLINK"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "xmpplink",
		Short:         "Minimal XMPP client: chat and fetch rosters from the terminal",
		Long:          "xmpplink connects the accounts in accounts.toml to their servers. XMPPLINK_ACCOUNT and XMPPLINK_PASSWORD override the account selection and its password.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringP("account", "a", "", "account JID from accounts.toml (default: first account)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output to stderr")
	_ = v.BindPFlag("account", rootCmd.PersistentFlags().Lookup("account"))
	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(
		newChatCmd(v),
		newRosterCmd(v),
		newAccountsCmd(),
		newInitCmd(),
	)
	return rootCmd
}

// env is everything a command needs from disk.
type env struct {
	cfg      *config.Config
	accounts *config.AccountsConfig
	log      *logging.Logger
}

func loadEnv(v *viper.Viper, console bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	accounts, err := config.LoadAccounts()
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	verbose := v.GetBool("verbose")
	log, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: console && (cfg.Logging.Console || verbose),
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	if verbose {
		log.SetLevel(logging.LevelDebug)
	}
	logging.SetDefault(log)

	return &env{cfg: cfg, accounts: accounts, log: log}, nil
}

// pickAccount resolves the account to use. Without a selection the first
// configured account is used. A password from the environment replaces the
// stored one.
func pickAccount(accounts *config.AccountsConfig, v *viper.Viper) (*config.Account, error) {
	if len(accounts.Accounts) == 0 {
		return nil, errNoAccounts
	}

	acc := &accounts.Accounts[0]
	if requested := v.GetString("account"); requested != "" {
		var ok bool
		acc, ok = accounts.Find(requested)
		if !ok {
			return nil, fmt.Errorf("account %q is not in accounts.toml", requested)
		}
	}

	if password := v.GetString("password"); password != "" {
		acc.Password = password
	}
	if acc.Password == "" {
		return nil, fmt.Errorf("account %s has no password; set it in accounts.toml or %s_PASSWORD", acc.JID, envPrefix)
	}
	return acc, nil
}
