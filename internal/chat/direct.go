// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	"github.com/duahaudo/ai-sidebar-local/internal/ollama"
	"github.com/duahaudo/ai-sidebar-local/internal/relay"
)

// DirectStreamer runs turns straight against the backend without a relay
// daemon in between. It applies the same system prompt the daemon would.
type DirectStreamer struct {
	client *ollama.Client
}

// NewDirectStreamer wraps a backend client; nil selects the default
// local backend.
func NewDirectStreamer(client *ollama.Client) *DirectStreamer {
	if client == nil {
		client = ollama.NewClient(ollama.DefaultBaseURL)
	}
	return &DirectStreamer{client: client}
}

// Stream implements Streamer.
func (d *DirectStreamer) Stream(ctx context.Context, req relay.StreamRequestPayload, onChunk relay.ChunkFunc) error {
	client := d.client
	if url := strings.TrimSuffix(strings.TrimSpace(req.APIURL), "/"); url != "" && url != client.BaseURL() {
		client = ollama.NewClient(url)
	}

	model := req.Model
	if model == "" {
		model = ollama.DefaultModel
	}

	messages := make([]ollama.Message, 0, len(req.ConversationHistory)+2)
	messages = append(messages, ollama.NewSystemMessage(relay.SystemPrompt))
	for _, h := range req.ConversationHistory {
		messages = append(messages, ollama.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, ollama.NewUserMessage(req.Message))

	return client.ChatStream(ctx, model, messages, func(chunk ollama.StreamChunk) {
		if chunk.Content == "" || onChunk == nil {
			return
		}
		onChunk(chunk.Content)
	})
}
