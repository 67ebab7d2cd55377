package statusbar

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/meszmate/xmpplink/internal/ui/theme"
	"github.com/meszmate/xmpplink/internal/xmpp"
)

// Model represents the status bar component
type Model struct {
	width     int
	account   string
	state     xmpp.State
	extraInfo string
	styles    *theme.Styles
}

// New creates a new status bar model
func New(styles *theme.Styles) Model {
	return Model{styles: styles}
}

// SetWidth sets the status bar width
func (m Model) SetWidth(width int) Model {
	m.width = width
	return m
}

// SetAccount sets the current account
func (m Model) SetAccount(account string) Model {
	m.account = account
	return m
}

// SetState sets the session state
func (m Model) SetState(state xmpp.State) Model {
	m.state = state
	return m
}

// SetExtraInfo sets extra info to display
func (m Model) SetExtraInfo(info string) Model {
	m.extraInfo = info
	return m
}

// View renders the status bar
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	var indicator string
	switch m.state {
	case xmpp.StateConnected:
		indicator = m.styles.StateOnline.Render("●")
	case xmpp.StateConnecting, xmpp.StateDisconnecting:
		indicator = m.styles.StatePending.Render("◐")
	case xmpp.StateFailed:
		indicator = m.styles.StateFailed.Render("✗")
	default:
		indicator = m.styles.StateOffline.Render("○")
	}

	left := indicator + " " + m.styles.StatusAccount.Render(m.account) + " " + m.state.String()
	if m.extraInfo != "" {
		left += " | " + m.extraInfo
	}

	gap := m.width - lipgloss.Width(left)
	if gap < 0 {
		gap = 0
	}
	return m.styles.StatusBar.Render(left + strings.Repeat(" ", gap))
}
