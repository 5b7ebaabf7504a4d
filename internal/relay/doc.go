// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay implements the local WebSocket channel between the
// sidebar panel and the page-side helper.
//
// Both endpoints connect to the same path and negotiate the
// "sidebar.relay.v1" subprotocol; a ?role=panel or ?role=page query
// parameter tells the server which side it is talking to. Every frame
// on the wire is an Envelope: a versioned JSON header around a typed
// payload.
//
// # Message Flow
//
// Chat streaming is server-terminated: the panel sends STREAM_REQUEST,
// the server talks to Ollama and emits STREAM_CHUNK frames, then
// exactly one STREAM_END or STREAM_ERROR. Page-context traffic is
// forwarded between roles without interpretation: GET_PAGE_CONTEXT and
// EXTRACT_CONTEXT go panel to page, PAGE_CONTEXT, CLOSE_SIDEBAR and
// RESIZE_SIDEBAR go page to panel. When no page is attached the server
// answers GET_PAGE_CONTEXT itself with an empty PAGE_CONTEXT so the
// panel never blocks.
//
// # Backpressure
//
// Each connection owns a single writer goroutine fed by a bounded send
// queue. Stream chunks, terminal events, and one-shot results block on
// the queue so none are ever dropped; a slow reader pushes back on the
// Ollama stream instead. Only forwarded page traffic is best-effort,
// dropped (and logged) when the queue is full. Inbound frames pass a
// per-connection rate limiter and a strict Envelope.Validate before
// dispatch.
//
// Client is the panel-side dialer used by the bundled TUI. Its Stream
// call returns ErrChannelClosed when the connection dies before a
// terminal frame arrives, which the chat layer surfaces as a
// user-facing error.
package relay
