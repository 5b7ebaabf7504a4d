// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MESSAGE
// =============================================================================

// Message is one chat turn half. Content is mutable while IsStreaming is
// true (the in-flight assistant reply) and frozen afterwards. At most one
// message per conversation streams at a time.
type Message struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"` // "user", "assistant", "system"
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"isStreaming,omitempty"`
}

// NewMessage creates a message with a fresh ID and current timestamp.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation is the persisted unit of chat history, tied to the page it
// was opened on. Messages are kept in chronological turn order.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	URL       string    `json:"url"`
}

// FirstUserMessage returns the first user-role message, or nil.
func (c *Conversation) FirstUserMessage() *Message {
	for i := range c.Messages {
		if c.Messages[i].Role == "user" && c.Messages[i].Content != "" {
			return &c.Messages[i]
		}
	}
	return nil
}
