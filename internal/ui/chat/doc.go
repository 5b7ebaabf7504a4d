// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the sidebar panel view for the TUI.
//
// Model is a Bubble Tea component wrapping a chat.Orchestrator. It
// subscribes to orchestrator snapshots, paces mid-stream repaints
// through a StreamingBuffer, and renders messages with collapsed
// thinking sections, glamour-formatted answers, and a status bar of
// keyboard shortcuts.
//
// # Key Bindings
//
//   - enter: send the composed message
//   - ctrl+n: start a new conversation
//   - ctrl+e: edit the last user message and resend
//   - ctrl+t: toggle thinking sections
//   - ctrl+s: summarize the current page
//   - ctrl+k: extract key points from the current page
//   - esc, ctrl+c: quit
package chat
