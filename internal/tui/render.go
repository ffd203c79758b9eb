package tui

import (
	"strings"

	"assistant-relay/internal/models"
)

func (m *Model) renderTranscript() string {
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
	}
	return b.String()
}

func (m *Model) renderMessage(msg models.Message) string {
	if msg.Role == models.RoleUser {
		return userLabel.Render("You") + "\n" + userText.Width(max(m.viewport.Width-2, 10)).Render(msg.Content)
	}

	content := msg.Content
	if content == "" {
		return assistantLabel.Render("Assistant") + "\n" + statusStyle.Render("  …")
	}
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			content = strings.TrimRight(out, "\n")
		}
	}
	return assistantLabel.Render("Assistant") + "\n" + content
}
