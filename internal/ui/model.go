package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/meszmate/xmpplink/internal/app"
	"github.com/meszmate/xmpplink/internal/ui/components/statusbar"
	"github.com/meszmate/xmpplink/internal/ui/theme"
	"github.com/meszmate/xmpplink/internal/xmpp"
	"github.com/meszmate/xmpplink/internal/xmpp/roster"
	"github.com/meszmate/xmpplink/internal/xmpp/stanza"
)

const rosterWidth = 32

// Backend is the part of the app the UI drives.
type Backend interface {
	SendMessage(account, to, body string, opts ...stanza.MessageOption) error
	RequestRoster(account string) error
	Disconnect(account string) error
}

type line struct {
	from string
	body string
	self bool
	err  bool
}

// Model is the root Bubble Tea model
type Model struct {
	backend Backend
	account string
	styles  *theme.Styles

	width  int
	height int

	state     xmpp.State
	statusbar statusbar.Model
	contacts  []roster.Contact
	lines     []line
	peer      string
	input     []rune
	quitting  bool
}

// NewModel creates the root model for one account.
func NewModel(backend Backend, account string) Model {
	styles := theme.Default()
	return Model{
		backend:   backend,
		account:   account,
		styles:    styles,
		state:     xmpp.StateConnecting,
		statusbar: statusbar.New(styles).SetAccount(account).SetState(xmpp.StateConnecting),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.statusbar = m.statusbar.SetWidth(msg.Width)
		return m, nil

	case app.EventMsg:
		if msg.Account != m.account {
			return m, nil
		}
		return m.handleEvent(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleEvent(e app.EventMsg) (tea.Model, tea.Cmd) {
	switch e.Type {
	case app.EventStatus:
		m.state = e.State
		m.statusbar = m.statusbar.SetState(e.State)
		if e.Err != nil {
			m = m.system(fmt.Sprintf("%s: %v", e.State, e.Err), true)
		}
		if e.State == xmpp.StateDisconnected || e.State == xmpp.StateFailed {
			if m.quitting {
				return m, tea.Quit
			}
			m = m.system("session ended, press ctrl+c to exit", false)
		}

	case app.EventRoster:
		if e.Err != nil {
			m = m.system("roster: "+e.Err.Error(), true)
			break
		}
		m.contacts = e.Contacts
		m.statusbar = m.statusbar.SetExtraInfo(fmt.Sprintf("%d contacts", len(e.Contacts)))

	case app.EventMessage:
		m.lines = append(m.lines, line{from: e.Message.From, body: e.Message.Body})
		if m.peer == "" {
			m.peer = bare(e.Message.From)
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		text := strings.TrimSpace(string(m.input))
		m.input = m.input[:0]
		if text == "" {
			return m, nil
		}
		return m.execute(text)
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.input = append(m.input, ' ')
	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}
	return m, nil
}

// execute runs one input line. Lines starting with "/" are commands, anything
// else goes to the current peer.
func (m Model) execute(text string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(text, "/") {
		if m.peer == "" {
			return m.system("no recipient, use /to <jid> or /msg <jid> <text>", true), nil
		}
		return m.send(m.peer, text), nil
	}

	cmd, args, _ := strings.Cut(text[1:], " ")
	args = strings.TrimSpace(args)
	switch cmd {
	case "roster":
		if err := m.backend.RequestRoster(m.account); err != nil {
			return m.system("roster: "+err.Error(), true), nil
		}
		return m.system("roster requested", false), nil

	case "to":
		if args == "" {
			return m.system("usage: /to <jid>", true), nil
		}
		m.peer = args
		return m.system("talking to "+args, false), nil

	case "msg":
		to, body, ok := strings.Cut(args, " ")
		if !ok || strings.TrimSpace(body) == "" {
			return m.system("usage: /msg <jid> <text>", true), nil
		}
		m.peer = to
		return m.send(to, strings.TrimSpace(body)), nil

	case "quit":
		if err := m.backend.Disconnect(m.account); err != nil {
			return m, tea.Quit
		}
		m.quitting = true
		return m, nil

	default:
		return m.system("unknown command /"+cmd, true), nil
	}
}

func (m Model) send(to, body string) Model {
	if err := m.backend.SendMessage(m.account, to, body); err != nil {
		return m.system("send: "+err.Error(), true)
	}
	m.lines = append(m.lines, line{from: m.account, body: body, self: true})
	return m
}

func (m Model) system(text string, isErr bool) Model {
	m.lines = append(m.lines, line{body: text, err: isErr})
	return m
}

// View implements tea.Model
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	bodyHeight := m.height - 4
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	left := m.styles.Border.
		Width(rosterWidth).
		Height(bodyHeight).
		Render(m.rosterView(bodyHeight))

	chatWidth := m.width - rosterWidth - 4
	if chatWidth < 10 {
		chatWidth = 10
	}
	right := m.styles.Border.
		Width(chatWidth).
		Height(bodyHeight).
		Render(m.chatView(bodyHeight))

	prompt := m.styles.Prompt.Render(m.promptLabel()) + string(m.input)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		m.statusbar.View(),
		prompt,
	)
}

func (m Model) promptLabel() string {
	if m.peer == "" {
		return "> "
	}
	return m.peer + "> "
}

func (m Model) rosterView(height int) string {
	rows := []string{m.styles.RosterHeader.Render("Roster")}
	if len(m.contacts) == 0 {
		rows = append(rows, m.styles.RosterMuted.Render("(empty)"))
	}
	for _, c := range m.contacts {
		label := c.Name
		if label == "" {
			label = c.JID
		}
		rows = append(rows, m.styles.RosterContact.Render(label)+m.styles.RosterMuted.Render(string(c.Subscription)))
	}
	if len(rows) > height {
		rows = rows[:height]
	}
	return strings.Join(rows, "\n")
}

func (m Model) chatView(height int) string {
	lines := m.lines
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}

	rows := make([]string, 0, len(lines))
	for _, l := range lines {
		switch {
		case l.err:
			rows = append(rows, m.styles.ChatError.Render("! "+l.body))
		case l.from == "":
			rows = append(rows, m.styles.RosterMuted.Render("* "+l.body))
		case l.self:
			rows = append(rows, m.styles.ChatSelf.Render("me")+": "+l.body)
		default:
			rows = append(rows, m.styles.ChatNick.Render(bare(l.from))+": "+l.body)
		}
	}
	return strings.Join(rows, "\n")
}

func bare(jid string) string {
	if i := strings.IndexByte(jid, '/'); i >= 0 {
		return jid[:i]
	}
	return jid
}
