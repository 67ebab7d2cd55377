package theme

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors contains the base color palette
type Colors struct {
	Primary string
	Muted   string
	Border  string
	Error   string
	Success string
	Warning string
	Nick    string
	Self    string
}

// Styles contains compiled styles for the terminal UI
type Styles struct {
	Border lipgloss.Style

	RosterHeader  lipgloss.Style
	RosterContact lipgloss.Style
	RosterMuted   lipgloss.Style

	ChatNick  lipgloss.Style
	ChatSelf  lipgloss.Style
	ChatError lipgloss.Style

	StatusBar     lipgloss.Style
	StatusAccount lipgloss.Style
	StateOnline   lipgloss.Style
	StatePending  lipgloss.Style
	StateFailed   lipgloss.Style
	StateOffline  lipgloss.Style

	Prompt lipgloss.Style
}

// DefaultColors returns the default palette
func DefaultColors() Colors {
	return Colors{
		Primary: "#7aa2f7",
		Muted:   "#565f89",
		Border:  "#3b4261",
		Error:   "#f7768e",
		Success: "#9ece6a",
		Warning: "#e0af68",
		Nick:    "#bb9af7",
		Self:    "#7dcfff",
	}
}

// Compile builds the styles for a palette
func Compile(c Colors) *Styles {
	s := &Styles{}

	s.Border = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(c.Border))

	s.RosterHeader = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Primary)).
		Bold(true).
		Padding(0, 1)

	s.RosterContact = lipgloss.NewStyle().
		Padding(0, 1)

	s.RosterMuted = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Muted)).
		Padding(0, 1)

	s.ChatNick = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Nick)).
		Bold(true)

	s.ChatSelf = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Self)).
		Bold(true)

	s.ChatError = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Error))

	s.StatusBar = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Muted))

	s.StatusAccount = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Primary))

	s.StateOnline = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Success))
	s.StatePending = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Warning))
	s.StateFailed = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Error))
	s.StateOffline = lipgloss.NewStyle().Foreground(lipgloss.Color(c.Muted))

	s.Prompt = lipgloss.NewStyle().
		Foreground(lipgloss.Color(c.Primary)).
		Bold(true)

	return s
}

// Default returns the compiled default styles
func Default() *Styles {
	return Compile(DefaultColors())
}
