// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the sidebar
// panel.
//
// Theme carries every lipgloss style the panel view uses, built from a
// light or dark palette. NewTheme selects the palette from the
// configured variant; SetSize rewraps the width-dependent styles on
// terminal resize. GlamourStyle names the matching glamour standard
// style for markdown rendering.
package styles
