// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version embedded in every envelope.
const Version = "v1"

// Subprotocol is negotiated during the WebSocket handshake.
const Subprotocol = "sidebar.relay.v1"

// ChannelName identifies the long-lived streaming channel.
const ChannelName = "ollama-stream"

// SystemPrompt is prepended to every streamed conversation so the model
// wraps its reasoning in thinking markers.
const SystemPrompt = "You are a helpful AI assistant. When solving complex problems or " +
	"reasoning through answers, wrap your thinking process in <thinking></thinking> tags. " +
	"Only the final answer should appear outside these tags."

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// Wire-stable type constants.
const (
	// TypeStreamRequest starts a streamed chat turn (panel -> daemon).
	TypeStreamRequest = "STREAM_REQUEST"
	// TypeStreamChunk carries one text fragment (daemon -> panel).
	TypeStreamChunk = "STREAM_CHUNK"
	// TypeStreamEnd terminates a stream successfully (daemon -> panel).
	TypeStreamEnd = "STREAM_END"
	// TypeStreamError terminates a stream with an error (daemon -> panel).
	TypeStreamError = "STREAM_ERROR"

	// TypeFetchModels requests the installed model list (panel -> daemon).
	TypeFetchModels = "FETCH_MODELS"
	// TypeModelsResult answers a FETCH_MODELS request (daemon -> panel).
	TypeModelsResult = "MODELS_RESULT"

	// TypeTestConnection probes backend reachability (panel -> daemon).
	TypeTestConnection = "TEST_CONNECTION"
	// TypeConnectionResult answers a TEST_CONNECTION probe (daemon -> panel).
	TypeConnectionResult = "CONNECTION_RESULT"

	// TypeGetPageContext asks connected pages for their visible text
	// (panel -> daemon -> page).
	TypeGetPageContext = "GET_PAGE_CONTEXT"
	// TypePageContext returns extracted page text (page -> daemon -> panel).
	TypePageContext = "PAGE_CONTEXT"
	// TypeExtractContext tells a page to re-extract its content
	// (panel -> daemon -> page).
	TypeExtractContext = "EXTRACT_CONTEXT"

	// TypeCloseSidebar tells panels to dismiss themselves (page -> panel).
	TypeCloseSidebar = "CLOSE_SIDEBAR"
	// TypeResizeSidebar tells panels to adopt a new width (page -> panel).
	TypeResizeSidebar = "RESIZE_SIDEBAR"

	// TypeError is a generic protocol-level error (daemon -> peer).
	TypeError = "ERROR"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeStreamRequest,
		TypeStreamChunk,
		TypeStreamEnd,
		TypeStreamError,
		TypeFetchModels,
		TypeModelsResult,
		TypeTestConnection,
		TypeConnectionResult,
		TypeGetPageContext,
		TypePageContext,
		TypeExtractContext,
		TypeCloseSidebar,
		TypeResizeSidebar,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// =============================================================================
// PAYLOADS
// =============================================================================

// HistoryMessage is one prior turn carried inside a stream request.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamRequestPayload starts a streamed chat turn. Model and APIURL are
// optional; the daemon falls back to its configured defaults.
type StreamRequestPayload struct {
	Message             string           `json:"message"`
	ConversationHistory []HistoryMessage `json:"conversationHistory,omitempty"`
	Model               string           `json:"model,omitempty"`
	APIURL              string           `json:"apiUrl,omitempty"`
}

// StreamChunkPayload carries one parsed text fragment, in arrival order.
type StreamChunkPayload struct {
	Chunk string `json:"chunk"`
}

// StreamErrorPayload terminates a stream with a human-readable error.
type StreamErrorPayload struct {
	Error string `json:"error"`
}

// FetchModelsPayload optionally overrides the backend URL for a model listing.
type FetchModelsPayload struct {
	URL string `json:"url,omitempty"`
}

// ModelsResultPayload answers a model listing. Error is set instead of
// Models when the backend could not be reached.
type ModelsResultPayload struct {
	Models []string `json:"models"`
	Error  string   `json:"error,omitempty"`
}

// TestConnectionPayload optionally overrides the backend URL for a probe.
type TestConnectionPayload struct {
	URL string `json:"url,omitempty"`
}

// ConnectionResultPayload answers a connectivity probe.
type ConnectionResultPayload struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// PageContextPayload returns extracted page text to the panel.
type PageContextPayload struct {
	Context string `json:"context"`
	URL     string `json:"url,omitempty"`
}

// ResizeSidebarPayload carries the requested panel width in columns.
type ResizeSidebarPayload struct {
	Width int `json:"width"`
}

// ErrorPayload is a generic protocol-level error response.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEnvelope wraps a payload value into a stamped envelope. Marshal
// failures are impossible for the payload types above, so they panic.
func NewEnvelope(typ string, payload any) Envelope {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("relay: marshal %s payload: %v", typ, err))
		}
		raw = b
	}
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      newRandomHex(10),
		TS:      time.Now().UTC(),
		Payload: raw,
	}
}
