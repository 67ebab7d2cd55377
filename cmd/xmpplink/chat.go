package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meszmate/xmpplink/internal/app"
	"github.com/meszmate/xmpplink/internal/ui"
)

func newChatCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Console logging would draw over the TUI.
			e, err := loadEnv(v, false)
			if err != nil {
				return err
			}
			defer e.log.Close()

			acc, err := pickAccount(e.accounts, v)
			if err != nil {
				return err
			}

			a, err := app.New(e.cfg, e.accounts, app.WithLogger(e.log))
			if err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer a.Close()

			p := tea.NewProgram(
				ui.NewModel(a, acc.JID),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			a.SetProgram(p)

			if _, err := a.Connect(acc.JID); err != nil {
				return fmt.Errorf("connect %s: %w", acc.JID, err)
			}
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run ui: %w", err)
			}
			return nil
		},
	}
}
