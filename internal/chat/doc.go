// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns conversation state and drives a single turn from
// user input to a persisted assistant reply.
//
// Orchestrator is the core type. It appends the user message and a
// streaming placeholder, captures history as it stood before the turn,
// streams the reply through a Streamer implementation, and finalizes by
// saving the conversation whether the stream succeeded or failed. Only
// one turn may be in flight at a time; a second SendTurn returns
// ErrTurnInFlight.
//
// Streamer abstracts the transport: relay.Client when the daemon is
// running, DirectStreamer straight to Ollama when it is not. Callers
// observe progress through Subscribe, which delivers immutable
// Snapshot values.
package chat
