// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/duahaudo/ai-sidebar-local/internal/chat"
)

// =============================================================================
// MESSAGES
// =============================================================================

// snapshotMsg carries an orchestrator state transition into the loop.
type snapshotMsg core.Snapshot

// turnDoneMsg reports a finished turn. A nil error means the answer
// completed; errors were already folded into the assistant message.
type turnDoneMsg struct {
	err error
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m *Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-m.snapshots)
	}
}

// runTurn executes one turn off the UI goroutine. For an edit, the
// conversation rewinds first.
func (m *Model) runTurn(text, editID string) tea.Cmd {
	orch := m.orch
	contextFn := m.contextFn
	return func() tea.Msg {
		ctx := context.Background()

		pageContext := ""
		if contextFn != nil {
			pageContext = contextFn(ctx)
		}

		var err error
		if editID != "" {
			err = orch.EditAndResend(ctx, editID, text, pageContext)
		} else {
			err = orch.SendTurn(ctx, text, pageContext)
		}
		return turnDoneMsg{err: err}
	}
}

func (m *Model) runQuickAction(action func(context.Context, string) error) tea.Cmd {
	contextFn := m.contextFn
	return func() tea.Msg {
		ctx := context.Background()
		pageContext := ""
		if contextFn != nil {
			pageContext = contextFn(ctx)
		}
		return turnDoneMsg{err: action(ctx, pageContext)}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.rebuildRenderer()

		vpHeight := msg.Height - chromeHeight
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.refreshViewport(true)

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case snapshotMsg:
		m.applySnapshot(core.Snapshot(msg))
		cmds = append(cmds, m.waitForSnapshot())

	case StreamTickMsg:
		if m.state == StateStreaming {
			if _, ok := m.buffer.Flush(); ok || m.dirty {
				m.refreshViewport(true)
			}
			cmds = append(cmds, streamTickCmd())
		}

	case turnDoneMsg:
		m.state = StateReady
		if _, ok := m.buffer.ForceFlush(); ok {
			m.refreshViewport(true)
		}
		m.snapshot = m.orch.Snapshot()
		m.refreshViewport(true)
		if msg.err != nil {
			m.statusText = msg.err.Error()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey routes panel shortcuts; returns handled=false for keys the
// focused widgets should see.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.Close()
		return tea.Quit, true

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" || m.state == StateStreaming {
			return nil, true
		}
		editID := m.editingID
		m.editingID = ""
		m.input.Reset()
		m.beginStream()
		return tea.Batch(m.runTurn(text, editID), streamTickCmd()), true

	case "ctrl+n":
		if m.state == StateStreaming {
			return nil, true
		}
		_ = m.orch.NewConversation(context.Background())
		m.statusText = "new conversation"
		return nil, true

	case "ctrl+t":
		m.showThink = !m.showThink
		m.refreshViewport(false)
		return nil, true

	case "ctrl+e":
		if m.state == StateStreaming {
			return nil, true
		}
		// Pull the last user message back into the input for editing.
		msgs := m.snapshot.Conversation.Messages
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == "user" {
				m.editingID = msgs[i].ID
				m.input.SetValue(msgs[i].Content)
				m.input.CursorEnd()
				break
			}
		}
		return nil, true

	case "ctrl+s":
		if m.state == StateStreaming || m.contextFn == nil {
			return nil, true
		}
		m.beginStream()
		return tea.Batch(m.runQuickAction(m.orch.SummarizePage), streamTickCmd()), true

	case "ctrl+k":
		if m.state == StateStreaming || m.contextFn == nil {
			return nil, true
		}
		m.beginStream()
		return tea.Batch(m.runQuickAction(m.orch.ExtractKeyPoints), streamTickCmd()), true
	}

	return nil, false
}

func (m *Model) beginStream() {
	m.state = StateStreaming
	m.statusText = ""
	m.buffer.Reset()
	m.prevLen = 0
}

// applySnapshot folds an orchestrator transition into the panel. While a
// turn streams, new assistant text is credited to the pacing buffer and
// rendered on the next granted frame.
func (m *Model) applySnapshot(snap core.Snapshot) {
	m.snapshot = snap

	if snap.Streaming {
		if n := len(snap.Conversation.Messages); n > 0 {
			last := snap.Conversation.Messages[n-1]
			if last.Role == "assistant" && len(last.Content) > m.prevLen {
				m.buffer.Write(last.Content[m.prevLen:])
				m.prevLen = len(last.Content)
			}
		}
		m.dirty = true
		return
	}

	m.refreshViewport(true)
}
