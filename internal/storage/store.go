// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/duahaudo/ai-sidebar-local/internal/util"
)

// Persisted state keys. The conversation list lives under one key, as a
// single ordered JSON array, with the active-conversation pointer beside it.
const (
	keyConversations = "conversations"
	keyLastConvID    = "lastConversationId"
)

// maxTitleRunes bounds derived conversation titles.
const maxTitleRunes = 50

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// Store keeps the ordered conversation list and the active-conversation
// pointer, persisting both through an injected KV medium.
//
// The in-memory list is authoritative for the running session: a failed
// persistence write is logged and swallowed, never surfaced to the chat
// flow, so a storage problem cannot lose the conversation on screen.
type Store struct {
	mu       sync.RWMutex
	kv       KV
	records  []Conversation // most recent first
	activeID string
}

// NewStore creates a store over the given medium and loads persisted
// state. A load failure starts the store empty rather than failing.
func NewStore(ctx context.Context, kv KV) *Store {
	s := &Store{kv: kv}
	s.load(ctx)
	return s
}

// load restores the conversation list and active pointer.
func (s *Store) load(ctx context.Context) {
	data, ok, err := s.kv.Get(ctx, keyConversations)
	if err != nil {
		log.Printf("STORE_LOAD_FAIL | key=%s err=%v", keyConversations, err)
	} else if ok {
		if err := json.Unmarshal(data, &s.records); err != nil {
			log.Printf("STORE_LOAD_FAIL | key=%s err=%v", keyConversations, err)
			s.records = nil
		}
	}

	if data, ok, err := s.kv.Get(ctx, keyLastConvID); err == nil && ok {
		s.activeID = string(data)
	}
}

// =============================================================================
// SAVE / DELETE
// =============================================================================

// Save upserts a conversation by ID: any existing record with the same
// id is removed and the updated record is prepended, so the list stays
// ordered by recency. CreatedAt is preserved from the existing record,
// UpdatedAt is always stamped, and the title is recomputed from the first
// user message so edits that change it regenerate the title.
func (s *Store) Save(ctx context.Context, conv Conversation) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" {
		conv.ID = GenerateConversationID()
	}

	now := time.Now()
	conv.UpdatedAt = now
	conv.CreatedAt = now
	conv.Title = deriveTitle(&conv)

	rest := s.records[:0:0]
	for _, existing := range s.records {
		if existing.ID == conv.ID {
			conv.CreatedAt = existing.CreatedAt
			continue
		}
		rest = append(rest, existing)
	}
	s.records = append([]Conversation{conv}, rest...)

	s.persistLocked(ctx)
	return conv
}

// Delete removes a conversation. Deleting the active conversation only
// clears the record; starting a fresh active conversation is the
// orchestrator's policy, not the store's.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rest := s.records[:0:0]
	for _, c := range s.records {
		if c.ID != id {
			rest = append(rest, c)
		}
	}
	s.records = rest

	s.persistLocked(ctx)
}

// persistLocked writes the full list. Errors are logged and swallowed:
// the in-memory state stays valid for the rest of the session.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := json.Marshal(s.records)
	if err != nil {
		log.Printf("STORE_SAVE_FAIL | err=%v", err)
		return
	}
	if err := s.kv.Set(ctx, keyConversations, data); err != nil {
		log.Printf("STORE_SAVE_FAIL | err=%v", err)
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// List returns all conversations, most recently updated first.
func (s *Store) List() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, len(s.records))
	copy(out, s.records)
	return out
}

// Get returns the conversation with the given id.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.records {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// =============================================================================
// ACTIVE CONVERSATION POINTER
// =============================================================================

// ActiveID returns the persisted active-conversation pointer, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SetActive records which conversation is current. Persisted so a
// restart restores the same conversation.
func (s *Store) SetActive(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = id
	if err := s.kv.Set(ctx, keyLastConvID, []byte(id)); err != nil {
		log.Printf("STORE_SAVE_FAIL | key=%s err=%v", keyLastConvID, err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// deriveTitle builds the list title from the first user message:
// whitespace collapsed, at most maxTitleRunes runes.
func deriveTitle(conv *Conversation) string {
	if msg := conv.FirstUserMessage(); msg != nil {
		return util.TruncateRunes(util.CollapseWhitespace(msg.Content), maxTitleRunes)
	}
	return "New Conversation"
}

// GenerateConversationID creates a unique conversation ID.
func GenerateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}
