// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/duahaudo/ai-sidebar-local/internal/relay"
	"github.com/duahaudo/ai-sidebar-local/internal/storage"
)

// ErrTurnInFlight is returned when a turn is started while another is
// still streaming.
var ErrTurnInFlight = errors.New("a turn is already streaming")

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("empty message")

// corsNotice replaces the assistant content when the backend rejects the
// request for origin reasons. Wire-stable remediation text.
const corsNotice = "⚠️ CORS Error: Ollama needs special configuration for Chrome extensions.\n\n" +
	"Please restart Ollama with:\nOLLAMA_ORIGINS=\"chrome-extension://*\" ollama serve\n\n" +
	"See OLLAMA_SETUP.md for detailed instructions."

// Streamer is the transport a turn runs over: the relay channel client in
// the panel, or a direct backend client when no daemon is involved.
type Streamer interface {
	Stream(ctx context.Context, req relay.StreamRequestPayload, onChunk relay.ChunkFunc) error
}

// Snapshot is an immutable view of the orchestrator state handed to
// subscribers. Messages is a copy; renderers may hold it across frames.
type Snapshot struct {
	Conversation storage.Conversation
	Streaming    bool
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator coordinates turns between the UI, the streaming transport,
// and the conversation store.
type Orchestrator struct {
	mu sync.Mutex

	streamer Streamer
	store    *storage.Store

	model  string
	apiURL string

	conv      storage.Conversation
	streaming bool

	listeners  map[int]func(Snapshot)
	nextHandle int
}

// New builds an orchestrator and restores the most recently active
// conversation, when the store remembers one.
func New(streamer Streamer, store *storage.Store, model string) *Orchestrator {
	o := &Orchestrator{
		streamer:  streamer,
		store:     store,
		model:     model,
		listeners: make(map[int]func(Snapshot)),
	}
	if id := store.ActiveID(); id != "" {
		if conv, ok := store.Get(id); ok {
			o.conv = conv
		}
	}
	return o
}

// SetModel changes the model used for subsequent turns.
func (o *Orchestrator) SetModel(model string) {
	o.mu.Lock()
	o.model = model
	o.mu.Unlock()
}

// SetAPIURL overrides the backend URL placed in stream requests. Empty
// keeps the transport's default.
func (o *Orchestrator) SetAPIURL(url string) {
	o.mu.Lock()
	o.apiURL = url
	o.mu.Unlock()
}

// Subscribe registers a state listener and returns its cancel func. The
// listener fires after every state transition, outside the internal lock.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) func() {
	o.mu.Lock()
	handle := o.nextHandle
	o.nextHandle++
	o.listeners[handle] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, handle)
		o.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// IsStreaming reports whether a turn is in flight.
func (o *Orchestrator) IsStreaming() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streaming
}

// =============================================================================
// TURNS
// =============================================================================

// SendTurn runs one full streamed turn: optimistic user message, assistant
// placeholder, chunk appends, then finalize and save. The page context, if
// any, is framed around the outbound question; the stored user message
// keeps the raw text. Returns the transport error, if the turn failed;
// the conversation is saved either way.
func (o *Orchestrator) SendTurn(ctx context.Context, text, pageContext string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	if o.streaming {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	o.streaming = true

	// History is everything before this turn, oldest first.
	history := make([]relay.HistoryMessage, 0, len(o.conv.Messages))
	for _, m := range o.conv.Messages {
		history = append(history, relay.HistoryMessage{Role: m.Role, Content: m.Content})
	}

	userMsg := storage.NewMessage("user", text)
	placeholder := storage.NewMessage("assistant", "")
	placeholder.IsStreaming = true
	o.conv.Messages = append(o.conv.Messages, userMsg, placeholder)
	placeholderID := placeholder.ID

	req := relay.StreamRequestPayload{
		Message:             WrapWithContext(text, pageContext),
		ConversationHistory: history,
		Model:               o.model,
		APIURL:              o.apiURL,
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	streamErr := o.streamer.Stream(ctx, req, func(chunk string) {
		o.appendChunk(placeholderID, chunk)
	})

	o.finalize(ctx, placeholderID, streamErr)
	return streamErr
}

// EditAndResend rewinds the conversation to just before the edited user
// message, then runs a normal turn with the new text.
func (o *Orchestrator) EditAndResend(ctx context.Context, messageID, newText, pageContext string) error {
	if strings.TrimSpace(newText) == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	if o.streaming {
		o.mu.Unlock()
		return ErrTurnInFlight
	}

	idx := -1
	for i, m := range o.conv.Messages {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("message %s not found", messageID)
	}

	// The edited message and everything after it are discarded.
	o.conv.Messages = append([]storage.Message(nil), o.conv.Messages[:idx]...)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	return o.SendTurn(ctx, newText, pageContext)
}

// SummarizePage runs the summarize quick action over extracted page text.
func (o *Orchestrator) SummarizePage(ctx context.Context, pageContext string) error {
	if strings.TrimSpace(pageContext) == "" {
		return errors.New("no page context available")
	}
	return o.SendTurn(ctx, fmt.Sprintf(summarizePrompt, pageContext), "")
}

// ExtractKeyPoints runs the key-points quick action over extracted page text.
func (o *Orchestrator) ExtractKeyPoints(ctx context.Context, pageContext string) error {
	if strings.TrimSpace(pageContext) == "" {
		return errors.New("no page context available")
	}
	return o.SendTurn(ctx, fmt.Sprintf(keyPointsPrompt, pageContext), "")
}

// appendChunk grows the streaming placeholder, located by id so saves or
// renders racing the stream never misdirect a fragment.
func (o *Orchestrator) appendChunk(placeholderID, chunk string) {
	o.mu.Lock()
	for i := len(o.conv.Messages) - 1; i >= 0; i-- {
		if o.conv.Messages[i].ID == placeholderID {
			o.conv.Messages[i].Content += chunk
			break
		}
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
}

// finalize clears the streaming flag, substitutes user-facing error text
// when the turn failed, and persists the conversation either way.
func (o *Orchestrator) finalize(ctx context.Context, placeholderID string, streamErr error) {
	o.mu.Lock()
	for i := len(o.conv.Messages) - 1; i >= 0; i-- {
		if o.conv.Messages[i].ID == placeholderID {
			o.conv.Messages[i].IsStreaming = false
			if streamErr != nil {
				o.conv.Messages[i].Content = userFacingError(streamErr)
			}
			break
		}
	}

	o.conv = o.store.Save(ctx, o.conv)
	o.store.SetActive(ctx, o.conv.ID)
	o.streaming = false
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
}

// =============================================================================
// CONVERSATION MANAGEMENT
// =============================================================================

// NewConversation abandons the current conversation view and starts a
// fresh one. Already-saved history stays in the store.
func (o *Orchestrator) NewConversation(ctx context.Context) error {
	o.mu.Lock()
	if o.streaming {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	o.conv = storage.Conversation{}
	o.store.SetActive(ctx, "")
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
	return nil
}

// SwitchConversation makes a stored conversation the active one.
func (o *Orchestrator) SwitchConversation(ctx context.Context, id string) error {
	o.mu.Lock()
	if o.streaming {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	conv, ok := o.store.Get(id)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("conversation %s not found", id)
	}
	o.conv = conv
	o.store.SetActive(ctx, id)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
	return nil
}

// DeleteConversation removes a stored conversation. Deleting the active
// one starts a fresh conversation.
func (o *Orchestrator) DeleteConversation(ctx context.Context, id string) error {
	o.mu.Lock()
	if o.streaming {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	o.store.Delete(ctx, id)
	if id == o.conv.ID {
		o.conv = storage.Conversation{}
		o.store.SetActive(ctx, "")
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)
	return nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (o *Orchestrator) snapshotLocked() Snapshot {
	conv := o.conv
	conv.Messages = append([]storage.Message(nil), o.conv.Messages...)
	return Snapshot{Conversation: conv, Streaming: o.streaming}
}

func (o *Orchestrator) notify(snap Snapshot) {
	o.mu.Lock()
	fns := make([]func(Snapshot), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// userFacingError maps a turn failure to the text shown in place of the
// assistant answer. Origin rejections get the full remediation notice.
func userFacingError(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "CORS") {
		return corsNotice
	}
	if msg == "" {
		return "Error: Failed to connect to Ollama. Please check settings."
	}
	return "Error: " + msg
}
