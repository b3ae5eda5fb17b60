// Package tui is the terminal front end of the conversation client.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/wanderchat/internal/client"
	"github.com/comigor/wanderchat/internal/logger"
	"github.com/comigor/wanderchat/pkg/chat"
)

// Sender is the part of client.Client the UI drives.
type Sender interface {
	SendMessage(ctx context.Context, text string) (client.State, error)
	SetPending(text string)
	Snapshot() client.Snapshot
}

// SnapshotMsg delivers client state to the program. Snapshots older than the
// last one applied are dropped.
type SnapshotMsg client.Snapshot

type sendDoneMsg struct {
	state client.State
	err   error
}

const (
	headerHeight = 1
	footerHeight = 4
	minBubble    = 20
)

type Model struct {
	sender   Sender
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	messages chat.Conversation
	version  uint64
	busy     bool
	cancel   context.CancelFunc
	status   string
	failed   bool

	width  int
	height int
	ready  bool
}

func NewModel(sender Sender) Model {
	ti := textinput.New()
	ti.Placeholder = "Where would you like to go?"
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	snap := sender.Snapshot()
	return Model{
		sender:   sender,
		input:    ti,
		spinner:  sp,
		messages: snap.Messages,
		version:  snap.Version,
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit

		case tea.KeyEsc:
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil

		case tea.KeyEnter:
			return m.submit()
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if v := m.input.Value(); v != before {
			m.sender.SetPending(v)
		}
		return m, cmd

	case SnapshotMsg:
		if msg.Version <= m.version {
			return m, nil
		}
		m.version = msg.Version
		m.messages = msg.Messages
		m.refresh()
		return m, nil

	case sendDoneMsg:
		m.busy = false
		m.cancel = nil
		m.failed = false
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, context.Canceled):
			m.status = "reply canceled"
		case errors.Is(msg.err, client.ErrSendInFlight):
			m.status = "still waiting for the previous reply"
		default:
			m.status = msg.err.Error()
			m.failed = true
		}
		// the observer may lag behind the final mutation
		m.apply(m.sender.Snapshot())
		return m, nil

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if m.busy || strings.TrimSpace(text) == "" {
		return m, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.busy = true
	m.status = ""
	m.failed = false
	m.input.Reset()

	sender := m.sender
	send := func() tea.Msg {
		state, err := sender.SendMessage(ctx, text)
		cancel()
		logger.L.Debug("send finished", "state", state, "error", err)
		return sendDoneMsg{state: state, err: err}
	}
	return m, tea.Batch(send, m.spinner.Tick)
}

func (m *Model) apply(s client.Snapshot) {
	if s.Version <= m.version {
		return
	}
	m.version = s.Version
	m.messages = s.Messages
	m.refresh()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	vh := max(1, height-headerHeight-footerHeight)
	if !m.ready {
		m.viewport = viewport.New(width, vh)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vh
	}
	m.input.Width = max(10, width-6)

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(m.bubbleWidth()-4),
	)
	if err != nil {
		logger.L.Warn("markdown renderer unavailable", "error", err)
		r = nil
	}
	m.renderer = r
	m.refresh()
}

func (m Model) bubbleWidth() int {
	return max(minBubble, m.width*2/3)
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	var b strings.Builder
	for i, msg := range m.messages {
		if msg.Role == chat.RoleSystem {
			continue
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
	}
	return b.String()
}

func (m Model) renderMessage(msg chat.Message) string {
	width := m.bubbleWidth()
	if msg.Role == chat.RoleUser {
		bubble := userBubble.Width(width).Render(msg.Content)
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, bubble)
	}

	content := msg.Content
	if content == "" && m.busy {
		content = m.spinner.View()
	} else if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			content = strings.Trim(out, "\n")
		}
	}
	return assistantBubble.Width(width).Render(content)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("wanderchat"))
	b.WriteString("\n")
	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(m.renderHistory())
	}
	b.WriteString("\n")

	switch {
	case m.busy:
		b.WriteString(statusStyle.Render(m.spinner.View() + " thinking... (esc to cancel)"))
	case m.failed:
		b.WriteString(errorStyle.Render(m.status))
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
	default:
		b.WriteString(statusStyle.Render("enter to send, ctrl+c to quit"))
	}
	b.WriteString("\n")
	b.WriteString(inputStyle.Render(m.input.View()))
	return b.String()
}
