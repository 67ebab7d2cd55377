package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meszmate/xmpplink/internal/app"
	"github.com/meszmate/xmpplink/internal/xmpp"
	"github.com/meszmate/xmpplink/internal/xmpp/roster"
)

func newRosterCmd(v *viper.Viper) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Connect, print the roster and disconnect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(v, true)
			if err != nil {
				return err
			}
			defer e.log.Close()

			acc, err := pickAccount(e.accounts, v)
			if err != nil {
				return err
			}

			e.cfg.General.AutoRoster = true
			a, err := app.New(e.cfg, e.accounts, app.WithLogger(e.log))
			if err != nil {
				return fmt.Errorf("start app: %w", err)
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			contacts, err := fetchRoster(ctx, a, acc.JID)
			if err != nil {
				return err
			}
			if err := a.Disconnect(acc.JID); err == nil {
				a.WaitFor(acc.JID, 2*time.Second, xmpp.StateDisconnected, xmpp.StateFailed)
			}

			return writeRoster(cmd.OutOrStdout(), contacts, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the roster as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	return cmd
}

// fetchRoster connects account and waits for the first roster result or a
// terminal state.
func fetchRoster(ctx context.Context, a *app.App, account string) ([]roster.Contact, error) {
	type result struct {
		contacts []roster.Contact
		err      error
	}
	done := make(chan result, 1)
	deliver := func(r result) {
		select {
		case done <- r:
		default:
		}
	}

	a.Events().Subscribe(app.EventRoster, func(e app.EventMsg) {
		if e.Account == account {
			deliver(result{contacts: e.Contacts, err: e.Err})
		}
	})
	a.Events().Subscribe(app.EventStatus, func(e app.EventMsg) {
		if e.Account != account {
			return
		}
		if e.State == xmpp.StateFailed || e.State == xmpp.StateDisconnected {
			err := fmt.Errorf("session %s before the roster arrived", e.State)
			if e.Err != nil {
				err = fmt.Errorf("session %s before the roster arrived: %w", e.State, e.Err)
			}
			deliver(result{err: err})
		}
	})

	if _, err := a.Connect(account); err != nil {
		return nil, fmt.Errorf("connect %s: %w", account, err)
	}

	select {
	case r := <-done:
		return r.contacts, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for roster: %w", ctx.Err())
	}
}

func writeRoster(w io.Writer, contacts []roster.Contact, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(contacts)
	}

	if len(contacts) == 0 {
		_, err := fmt.Fprintln(w, "roster is empty")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("JID", "NAME", "SUBSCRIPTION")
	for _, c := range contacts {
		t.Row(c.JID, c.Name, string(c.Subscription))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
