// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/duahaudo/ai-sidebar-local/internal/storage"
	"github.com/duahaudo/ai-sidebar-local/internal/thinking"
)

// Rows consumed by header, input, and status bar around the viewport.
const chromeHeight = 6

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.viewInput())
	b.WriteString("\n")
	b.WriteString(m.viewStatusBar())
	return b.String()
}

func (m *Model) viewHeader() string {
	title := m.theme.HeaderTitle.Render("AI Sidebar")
	conv := m.snapshot.Conversation.Title
	if conv == "" {
		conv = "New Conversation"
	}
	sub := m.theme.HeaderModel.Render(runewidth.Truncate(conv, maxInt(10, m.width-20), "..."))
	return m.theme.Header.Width(m.width).Render(title + "  " + sub)
}

func (m *Model) viewInput() string {
	prompt := m.theme.InputPrompt.Render("> ")
	if m.editingID != "" {
		prompt = m.theme.InputPrompt.Render("edit> ")
	}
	return m.theme.InputContainer.Width(m.width).Render(prompt + m.input.View())
}

func (m *Model) viewStatusBar() string {
	var left string
	switch {
	case m.state == StateStreaming:
		left = m.spin.View() + m.theme.StatusOK.Render(" streaming")
	case m.statusText != "":
		left = m.theme.StatusError.Render(runewidth.Truncate(m.statusText, maxInt(10, m.width/2), "..."))
	default:
		left = m.theme.StatusOK.Render("ready")
	}

	shortcuts := strings.Join([]string{
		m.theme.ShortcutKey.Render("^n") + m.theme.ShortcutDesc.Render(" new"),
		m.theme.ShortcutKey.Render("^t") + m.theme.ShortcutDesc.Render(" thinking"),
		m.theme.ShortcutKey.Render("^e") + m.theme.ShortcutDesc.Render(" edit"),
		m.theme.ShortcutKey.Render("^c") + m.theme.ShortcutDesc.Render(" quit"),
	}, "  ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(shortcuts) - 2
	if gap < 1 {
		return m.theme.StatusBar.Render(left)
	}
	return m.theme.StatusBar.Render(left + strings.Repeat(" ", gap) + shortcuts)
}

// refreshViewport rebuilds the transcript. followTail keeps the view
// pinned to the newest content, as during streaming.
func (m *Model) refreshViewport(followTail bool) {
	if !m.ready {
		return
	}

	var parts []string
	for _, msg := range m.snapshot.Conversation.Messages {
		parts = append(parts, m.renderMessage(msg))
	}
	if len(parts) == 0 {
		parts = append(parts, m.theme.ShortcutDesc.Render("\n  Ask a question to get started."))
	}

	m.viewport.SetContent(strings.Join(parts, "\n"))
	m.dirty = false
	if followTail {
		m.viewport.GotoBottom()
	}
}

// renderMessage renders one transcript entry. Assistant messages are split
// into a collapsible thinking section and the visible answer; final
// answers render as markdown.
func (m *Model) renderMessage(msg storage.Message) string {
	wrap := maxInt(20, m.width-4)

	if msg.Role == "user" {
		label := m.theme.UserLabel.Render("You")
		body := m.theme.UserBubble.Width(wrap).Render(msg.Content)
		return label + "\n" + body + "\n"
	}

	label := m.theme.AssistantLabel.Render("Assistant")

	split := thinking.Split(msg.Content, msg.IsStreaming)
	var b strings.Builder
	b.WriteString(label)
	b.WriteString("\n")

	if split.HasThinking || split.InThinking {
		if m.showThink {
			b.WriteString(m.theme.ThinkingHeader.Render("▾ Thinking"))
			b.WriteString("\n")
			if split.Thinking != "" {
				b.WriteString(m.theme.ThinkingBody.Width(wrap).Render(split.Thinking))
				b.WriteString("\n")
			}
		} else {
			suffix := ""
			if split.InThinking {
				suffix = " " + m.spin.View()
			}
			b.WriteString(m.theme.ThinkingHeader.Render("▸ Thinking..." + suffix))
			b.WriteString("\n")
		}
	}

	answer := split.Answer
	switch {
	case answer == "" && msg.IsStreaming:
		b.WriteString(m.spin.View())
	case isErrorContent(answer):
		b.WriteString(m.theme.ErrorBox.Width(wrap).Render(answer))
	case msg.IsStreaming:
		b.WriteString(m.theme.AssistantText.Width(wrap).Render(answer))
	default:
		b.WriteString(strings.TrimRight(m.renderMarkdown(answer), "\n"))
	}
	b.WriteString("\n")
	return b.String()
}

// isErrorContent recognizes the substituted error texts a failed turn
// leaves in place of the answer.
func isErrorContent(s string) bool {
	return strings.HasPrefix(s, "Error: ") || strings.HasPrefix(s, "⚠️")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
