// Package tui renders a chat session in the terminal.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"assistant-relay/internal/client"
	"assistant-relay/internal/models"
)

type conversationMsg []models.Message

type sendDoneMsg struct{}

type Model struct {
	ctx     context.Context
	session *client.Session
	updates chan []models.Message

	input    textinput.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	style    string

	messages []models.Message
	sending  bool
	err      error
	width    int
}

// New builds the UI around a fresh session on relay. style is a glamour
// style name; empty picks one from the terminal.
func New(ctx context.Context, relay client.Relay, style string, opts ...client.Option) *Model {
	m := &Model{
		ctx:     ctx,
		updates: make(chan []models.Message, 1),
		style:   style,
	}

	opts = append(opts, client.WithOnChange(m.publish))
	m.session = client.NewSession(relay, opts...)
	m.messages = m.session.Messages()

	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()
	m.input = ti

	m.viewport = viewport.New(80, 20)
	m.resize(80, 24)

	return m
}

// publish keeps only the newest snapshot; each one is the full conversation.
func (m *Model) publish(msgs []models.Message) {
	for {
		select {
		case m.updates <- msgs:
			return
		default:
			select {
			case <-m.updates:
			default:
			}
		}
	}
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case msgs := <-m.updates:
			return conversationMsg(msgs)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) send(text string) tea.Cmd {
	return func() tea.Msg {
		m.session.Send(m.ctx, text)
		return sendDoneMsg{}
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForUpdate())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := m.session.Input()
			if strings.TrimSpace(text) == "" || m.sending || m.session.Busy() {
				return m, nil
			}
			m.input.Reset()
			m.sending = true
			m.err = nil
			return m, m.send(text)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		// The field is read-only while a reply is streaming.
		if !m.sending {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			m.session.SetInput(m.input.Value())
			cmds = append(cmds, cmd)
		}

	case conversationMsg:
		m.messages = msg
		m.refresh()
		cmds = append(cmds, m.waitForUpdate())

	case sendDoneMsg:
		m.sending = false
		m.err = m.session.Err()
		m.messages = m.session.Messages()
		m.refresh()

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) resize(width, height int) {
	m.width = width
	frame := frameStyle.GetHorizontalFrameSize()

	m.viewport.Width = max(width-frame, 10)
	// title + status + input + borders
	m.viewport.Height = max(height-6, 3)
	m.input.Width = max(width-4, 10)

	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(m.viewport.Width-4, 10))}
	if m.style != "" {
		opts = append(opts, glamour.WithStandardStyle(m.style))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}
	if r, err := glamour.NewTermRenderer(opts...); err == nil {
		m.renderer = r
	}

	m.refresh()
}

// refresh re-renders the transcript and scrolls to the newest message.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Personal Assistant"))
	b.WriteString("\n")
	b.WriteString(frameStyle.Render(m.viewport.View()))
	b.WriteString("\n")

	switch {
	case m.sending:
		b.WriteString(statusStyle.Render("Sending..."))
	case m.err != nil:
		b.WriteString(errorStyle.Render("Last message failed"))
	default:
		b.WriteString(statusStyle.Render("enter to send · esc to quit"))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}
