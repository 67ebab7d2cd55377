package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/meszmate/xmpplink/internal/config"
	"github.com/meszmate/xmpplink/internal/storage/sqlite"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts and their last connection state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			accounts, err := config.LoadAccounts()
			if err != nil {
				return fmt.Errorf("load accounts: %w", err)
			}
			if len(accounts.Accounts) == 0 {
				return errNoAccounts
			}

			var journal *sqlite.DB
			if cfg.Storage.Journal {
				journal, err = sqlite.New(cfg.General.DataDir)
				if err != nil {
					return fmt.Errorf("open journal: %w", err)
				}
				defer journal.Close()
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("JID", "SERVER", "STATE", "LAST CONNECTED")
			for _, acc := range accounts.Accounts {
				server := acc.Server
				if server == "" {
					server = "(srv)"
				}
				server = fmt.Sprintf("%s:%d", server, acc.Port)

				state, last := "-", "-"
				if journal != nil {
					entry, err := journal.LastStatus(acc.JID)
					if err != nil {
						return fmt.Errorf("read journal for %s: %w", acc.JID, err)
					}
					if entry != nil {
						state = entry.Status
						if entry.LastError != "" {
							state += " (" + entry.LastError + ")"
						}
						if !entry.LastConnected.IsZero() {
							last = entry.LastConnected.Format(time.DateTime)
						}
					}
				}
				t.Row(acc.JID, server, state, last)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
	cmd.AddCommand(newAccountsAddCmd(), newAccountsForgetCmd())
	return cmd
}

func newAccountsAddCmd() *cobra.Command {
	var acc config.Account
	cmd := &cobra.Command{
		Use:   "add <jid>",
		Short: "Add an account to accounts.toml",
		Long:  "Add an account to accounts.toml. The password is not stored; supply it with " + envPrefix + "_PASSWORD or edit the file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := config.LoadAccounts()
			if err != nil {
				return fmt.Errorf("load accounts: %w", err)
			}
			acc.JID = args[0]
			if err := accounts.Add(acc); err != nil {
				return err
			}
			if err := config.SaveAccounts(accounts); err != nil {
				return fmt.Errorf("save accounts: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", acc.JID)
			return err
		},
	}
	cmd.Flags().StringVar(&acc.Server, "server", "", "server host (default: resolved from the JID domain)")
	cmd.Flags().IntVar(&acc.Port, "port", config.DefaultPort, "server port")
	cmd.Flags().StringVar(&acc.Resource, "resource", "", "resource to bind")
	return cmd
}

func newAccountsForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <jid>",
		Short: "Remove an account and its connection history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jid := args[0]
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			accounts, err := config.LoadAccounts()
			if err != nil {
				return fmt.Errorf("load accounts: %w", err)
			}

			if accounts.Remove(jid) {
				if err := config.SaveAccounts(accounts); err != nil {
					return fmt.Errorf("save accounts: %w", err)
				}
			}
			if cfg.Storage.Journal {
				journal, err := sqlite.New(cfg.General.DataDir)
				if err != nil {
					return fmt.Errorf("open journal: %w", err)
				}
				defer journal.Close()
				if err := journal.DeleteAccount(jid); err != nil {
					return fmt.Errorf("forget %s: %w", jid, err)
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", jid)
			return err
		},
	}
}
