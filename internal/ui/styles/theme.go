// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// palette holds the raw colors behind a theme variant.
type palette struct {
	accent    lipgloss.Color
	accentDim lipgloss.Color
	text      lipgloss.Color
	textDim   lipgloss.Color
	userBg    lipgloss.Color
	asstBg    lipgloss.Color
	border    lipgloss.Color
	errFg     lipgloss.Color
	okFg      lipgloss.Color
}

var darkPalette = palette{
	accent:    lipgloss.Color("#7C3AED"),
	accentDim: lipgloss.Color("#5B21B6"),
	text:      lipgloss.Color("#E5E7EB"),
	textDim:   lipgloss.Color("#9CA3AF"),
	userBg:    lipgloss.Color("#312E81"),
	asstBg:    lipgloss.Color("#1F2937"),
	border:    lipgloss.Color("#374151"),
	errFg:     lipgloss.Color("#F87171"),
	okFg:      lipgloss.Color("#34D399"),
}

var lightPalette = palette{
	accent:    lipgloss.Color("#6D28D9"),
	accentDim: lipgloss.Color("#8B5CF6"),
	text:      lipgloss.Color("#111827"),
	textDim:   lipgloss.Color("#6B7280"),
	userBg:    lipgloss.Color("#EDE9FE"),
	asstBg:    lipgloss.Color("#F3F4F6"),
	border:    lipgloss.Color("#D1D5DB"),
	errFg:     lipgloss.Color("#B91C1C"),
	okFg:      lipgloss.Color("#047857"),
}

// Theme holds the styled components for the panel. It detects terminal
// color capability and adjusts to the configured light/dark variant.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	// Message bubbles
	UserLabel      lipgloss.Style
	UserBubble     lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantText  lipgloss.Style

	// Thinking section
	ThinkingHeader lipgloss.Style
	ThinkingBody   lipgloss.Style

	// Input area
	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// Status bar
	StatusBar    lipgloss.Style
	StatusOK     lipgloss.Style
	StatusError  lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style

	// Misc
	Spinner  lipgloss.Style
	ErrorBox lipgloss.Style
}

// NewTheme builds a theme for the named variant ("light" or anything else
// meaning dark).
func NewTheme(variant string) *Theme {
	t := &Theme{
		IsDark:       variant != "light",
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	p := darkPalette
	if !t.IsDark {
		p = lightPalette
	}

	t.Header = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(p.border).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(p.accent)
	t.HeaderModel = lipgloss.NewStyle().Foreground(p.textDim)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(p.accent)
	t.UserBubble = lipgloss.NewStyle().
		Background(p.userBg).
		Foreground(p.text).
		Padding(0, 1)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(p.okFg)
	t.AssistantText = lipgloss.NewStyle().Foreground(p.text)

	t.ThinkingHeader = lipgloss.NewStyle().Foreground(p.accentDim).Italic(true)
	t.ThinkingBody = lipgloss.NewStyle().
		Foreground(p.textDim).
		Italic(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(p.border).
		PaddingLeft(1)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(p.border).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(p.accent)

	t.StatusBar = lipgloss.NewStyle().Foreground(p.textDim).Padding(0, 1)
	t.StatusOK = lipgloss.NewStyle().Foreground(p.okFg)
	t.StatusError = lipgloss.NewStyle().Foreground(p.errFg)
	t.ShortcutKey = lipgloss.NewStyle().Bold(true).Foreground(p.accent)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(p.textDim)

	t.Spinner = lipgloss.NewStyle().Foreground(p.accent)
	t.ErrorBox = lipgloss.NewStyle().
		Foreground(p.errFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.errFg).
		Padding(0, 1)
}

// SetSize records the current terminal dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GlamourStyle returns the markdown rendering style matching the variant.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
