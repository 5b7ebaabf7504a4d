// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	core "github.com/duahaudo/ai-sidebar-local/internal/chat"
	"github.com/duahaudo/ai-sidebar-local/internal/ui/styles"
)

// =============================================================================
// PANEL STATE
// =============================================================================

// State is the panel's interaction state.
type State int

const (
	StateReady     State = iota // ready for input
	StateStreaming              // a turn is in flight
)

// ContextProvider fetches page context for a turn. The relay client's
// RequestPageContext satisfies this through a small adapter; a nil
// provider means no page is attached.
type ContextProvider func(ctx context.Context) string

// =============================================================================
// PANEL MODEL
// =============================================================================

// Model is the Bubble Tea model for the sidebar panel.
type Model struct {
	state State
	theme *styles.Theme

	width  int
	height int
	ready  bool

	orch        *core.Orchestrator
	contextFn   ContextProvider
	snapshot    core.Snapshot
	snapshots   chan core.Snapshot
	unsubscribe func()

	// Render pacing while streaming.
	buffer     *StreamingBuffer
	prevLen    int  // assistant content length already counted
	dirty      bool // viewport content is stale
	showThink  bool // thinking sections expanded
	editingID  string
	statusText string

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	renderer *glamour.TermRenderer
}

// New builds the panel around an orchestrator.
func New(orch *core.Orchestrator, theme *styles.Theme, contextFn ContextProvider) *Model {
	input := textinput.New()
	input.Placeholder = "Ask anything..."
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	m := &Model{
		theme:     theme,
		orch:      orch,
		contextFn: contextFn,
		snapshot:  orch.Snapshot(),
		snapshots: make(chan core.Snapshot, 64),
		buffer:    NewStreamingBuffer(),
		input:     input,
		spin:      sp,
	}

	m.unsubscribe = orch.Subscribe(func(snap core.Snapshot) {
		select {
		case m.snapshots <- snap:
		default:
			// The panel rebuilds from the orchestrator after every turn,
			// so dropping an intermediate snapshot only skips a frame.
		}
	})

	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, m.waitForSnapshot())
}

// Close releases the orchestrator subscription.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// rebuildRenderer sizes the markdown renderer to the current width.
func (m *Model) rebuildRenderer() {
	wrap := m.width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}

// renderMarkdown renders final answers; raw text is the fallback when the
// renderer is unavailable.
func (m *Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}
