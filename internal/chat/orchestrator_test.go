// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/duahaudo/ai-sidebar-local/internal/relay"
	"github.com/duahaudo/ai-sidebar-local/internal/storage"
)

// fakeStreamer replays canned chunks and records the request it saw.
type fakeStreamer struct {
	chunks []string
	err    error

	calls   int
	lastReq relay.StreamRequestPayload
}

func (f *fakeStreamer) Stream(ctx context.Context, req relay.StreamRequestPayload, onChunk relay.ChunkFunc) error {
	f.calls++
	f.lastReq = req
	for _, c := range f.chunks {
		if onChunk != nil {
			onChunk(c)
		}
	}
	return f.err
}

// blockingStreamer holds the turn open until released.
type blockingStreamer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingStreamer) Stream(ctx context.Context, req relay.StreamRequestPayload, onChunk relay.ChunkFunc) error {
	close(b.started)
	<-b.release
	return nil
}

func newTestOrchestrator(t *testing.T, s Streamer) (*Orchestrator, *storage.Store) {
	t.Helper()
	store := storage.NewStore(context.Background(), storage.NewMemoryKV())
	return New(s, store, "test-model"), store
}

func TestSendTurnStreamsIntoPlaceholder(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"The answer", " is", " 42."}}
	o, store := newTestOrchestrator(t, fs)

	if err := o.SendTurn(context.Background(), "what is the answer?", ""); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}

	snap := o.Snapshot()
	if got := len(snap.Conversation.Messages); got != 2 {
		t.Fatalf("len(Messages) = %d, want 2", got)
	}
	user, asst := snap.Conversation.Messages[0], snap.Conversation.Messages[1]
	if user.Role != "user" || user.Content != "what is the answer?" {
		t.Errorf("user message = %q %q", user.Role, user.Content)
	}
	if asst.Role != "assistant" || asst.Content != "The answer is 42." {
		t.Errorf("assistant message = %q %q", asst.Role, asst.Content)
	}
	if asst.IsStreaming {
		t.Error("assistant message still marked streaming after turn")
	}
	if snap.Streaming {
		t.Error("orchestrator still streaming after turn")
	}

	if store.Len() != 1 {
		t.Fatalf("store.Len() = %d, want 1", store.Len())
	}
	saved := store.List()[0]
	if saved.Title != "what is the answer?" {
		t.Errorf("Title = %q", saved.Title)
	}
	if store.ActiveID() != saved.ID {
		t.Errorf("ActiveID = %q, want %q", store.ActiveID(), saved.ID)
	}
}

func TestSendTurnEmptyMessage(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeStreamer{})

	if err := o.SendTurn(context.Background(), "   \n", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("SendTurn() error = %v, want ErrEmptyMessage", err)
	}
}

func TestSendTurnWrapsPageContext(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"ok"}}
	o, _ := newTestOrchestrator(t, fs)

	if err := o.SendTurn(context.Background(), "what is this about?", "PAGE BODY"); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}

	got := fs.lastReq.Message
	if !strings.Contains(got, "---CONTEXT---\nPAGE BODY\n---END CONTEXT---") {
		t.Errorf("outbound message missing context frame: %q", got)
	}
	if !strings.HasSuffix(got, "QUESTION: what is this about?") {
		t.Errorf("outbound message missing question: %q", got)
	}

	// The stored user message keeps the raw text.
	snap := o.Snapshot()
	if snap.Conversation.Messages[0].Content != "what is this about?" {
		t.Errorf("stored user content = %q", snap.Conversation.Messages[0].Content)
	}
}

func TestSendTurnHistoryExcludesCurrentTurn(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"first answer"}}
	o, _ := newTestOrchestrator(t, fs)
	ctx := context.Background()

	if err := o.SendTurn(ctx, "first question", ""); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if len(fs.lastReq.ConversationHistory) != 0 {
		t.Errorf("turn 1 history len = %d, want 0", len(fs.lastReq.ConversationHistory))
	}

	fs.chunks = []string{"second answer"}
	if err := o.SendTurn(ctx, "second question", ""); err != nil {
		t.Fatalf("turn 2: %v", err)
	}

	hist := fs.lastReq.ConversationHistory
	if len(hist) != 2 {
		t.Fatalf("turn 2 history len = %d, want 2", len(hist))
	}
	if hist[0].Role != "user" || hist[0].Content != "first question" {
		t.Errorf("hist[0] = %+v", hist[0])
	}
	if hist[1].Role != "assistant" || hist[1].Content != "first answer" {
		t.Errorf("hist[1] = %+v", hist[1])
	}
	if fs.lastReq.Model != "test-model" {
		t.Errorf("Model = %q", fs.lastReq.Model)
	}
}

func TestSendTurnErrorReplacesContentAndStillSaves(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"partial"}, err: errors.New("connection refused")}
	o, store := newTestOrchestrator(t, fs)

	err := o.SendTurn(context.Background(), "hello", "")
	if err == nil || err.Error() != "connection refused" {
		t.Fatalf("SendTurn() error = %v", err)
	}

	snap := o.Snapshot()
	asst := snap.Conversation.Messages[1]
	if asst.Content != "Error: connection refused" {
		t.Errorf("assistant content = %q", asst.Content)
	}
	if asst.IsStreaming {
		t.Error("assistant still marked streaming after failed turn")
	}
	if store.Len() != 1 {
		t.Errorf("store.Len() = %d, want 1 (failed turns are saved too)", store.Len())
	}
}

func TestSendTurnCORSNotice(t *testing.T) {
	fs := &fakeStreamer{err: errors.New(`CORS error: Ollama needs to be started with OLLAMA_ORIGINS="chrome-extension://*" - see OLLAMA_SETUP.md for instructions`)}
	o, _ := newTestOrchestrator(t, fs)

	_ = o.SendTurn(context.Background(), "hello", "")

	snap := o.Snapshot()
	if got := snap.Conversation.Messages[1].Content; got != corsNotice {
		t.Errorf("assistant content = %q, want the CORS notice", got)
	}
}

func TestSendTurnWhileStreaming(t *testing.T) {
	bs := &blockingStreamer{started: make(chan struct{}), release: make(chan struct{})}
	o, _ := newTestOrchestrator(t, bs)

	turnDone := make(chan error, 1)
	go func() { turnDone <- o.SendTurn(context.Background(), "slow question", "") }()
	<-bs.started

	if err := o.SendTurn(context.Background(), "impatient question", ""); !errors.Is(err, ErrTurnInFlight) {
		t.Errorf("concurrent SendTurn() error = %v, want ErrTurnInFlight", err)
	}
	if !o.IsStreaming() {
		t.Error("IsStreaming() = false during a blocked turn")
	}

	close(bs.release)
	if err := <-turnDone; err != nil {
		t.Fatalf("blocked turn error = %v", err)
	}
	if o.IsStreaming() {
		t.Error("IsStreaming() = true after turn completed")
	}
}

func TestEditAndResendRewindsConversation(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"old answer"}}
	o, _ := newTestOrchestrator(t, fs)
	ctx := context.Background()

	if err := o.SendTurn(ctx, "old question", ""); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	userID := o.Snapshot().Conversation.Messages[0].ID

	fs.chunks = []string{"new answer"}
	if err := o.EditAndResend(ctx, userID, "new question", ""); err != nil {
		t.Fatalf("EditAndResend() error = %v", err)
	}

	msgs := o.Snapshot().Conversation.Messages
	if len(msgs) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "new question" || msgs[1].Content != "new answer" {
		t.Errorf("messages = %q / %q", msgs[0].Content, msgs[1].Content)
	}
	// The resent turn starts from the rewound history.
	if len(fs.lastReq.ConversationHistory) != 0 {
		t.Errorf("history len = %d, want 0", len(fs.lastReq.ConversationHistory))
	}
}

func TestEditAndResendEmptyTextKeepsConversation(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"answer"}}
	o, _ := newTestOrchestrator(t, fs)
	ctx := context.Background()

	if err := o.SendTurn(ctx, "question", ""); err != nil {
		t.Fatalf("turn: %v", err)
	}
	userID := o.Snapshot().Conversation.Messages[0].ID

	if err := o.EditAndResend(ctx, userID, "   ", ""); err != ErrEmptyMessage {
		t.Fatalf("EditAndResend() error = %v, want ErrEmptyMessage", err)
	}

	// A rejected edit must not discard the tail of the conversation.
	msgs := o.Snapshot().Conversation.Messages
	if len(msgs) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "question" || msgs[1].Content != "answer" {
		t.Errorf("messages = %q / %q", msgs[0].Content, msgs[1].Content)
	}
	if fs.calls != 1 {
		t.Errorf("streamer calls = %d, want 1", fs.calls)
	}
}

func TestEditAndResendUnknownMessage(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeStreamer{})

	if err := o.EditAndResend(context.Background(), "nope", "text", ""); err == nil {
		t.Fatal("EditAndResend() with unknown id: want error")
	}
}

func TestQuickActions(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"done"}}
	o, _ := newTestOrchestrator(t, fs)
	ctx := context.Background()

	if err := o.SummarizePage(ctx, ""); err == nil {
		t.Error("SummarizePage() with empty context: want error")
	}

	if err := o.SummarizePage(ctx, "ARTICLE"); err != nil {
		t.Fatalf("SummarizePage() error = %v", err)
	}
	if !strings.HasPrefix(fs.lastReq.Message, "Please provide a concise summary") {
		t.Errorf("summarize message = %q", fs.lastReq.Message)
	}
	if !strings.HasSuffix(fs.lastReq.Message, "ARTICLE") {
		t.Errorf("summarize message missing context: %q", fs.lastReq.Message)
	}

	if err := o.ExtractKeyPoints(ctx, "ARTICLE"); err != nil {
		t.Fatalf("ExtractKeyPoints() error = %v", err)
	}
	if !strings.HasPrefix(fs.lastReq.Message, "Extract the key points") {
		t.Errorf("key points message = %q", fs.lastReq.Message)
	}
}

func TestConversationManagement(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"answer"}}
	o, store := newTestOrchestrator(t, fs)
	ctx := context.Background()

	if err := o.SendTurn(ctx, "question", ""); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	firstID := o.Snapshot().Conversation.ID

	if err := o.NewConversation(ctx); err != nil {
		t.Fatalf("NewConversation() error = %v", err)
	}
	if snap := o.Snapshot(); snap.Conversation.ID != "" || len(snap.Conversation.Messages) != 0 {
		t.Errorf("after NewConversation: %+v", snap.Conversation)
	}
	if store.ActiveID() != "" {
		t.Errorf("ActiveID = %q after NewConversation", store.ActiveID())
	}

	if err := o.SwitchConversation(ctx, firstID); err != nil {
		t.Fatalf("SwitchConversation() error = %v", err)
	}
	if snap := o.Snapshot(); snap.Conversation.ID != firstID {
		t.Errorf("active conversation = %q, want %q", snap.Conversation.ID, firstID)
	}

	if err := o.SwitchConversation(ctx, "missing"); err == nil {
		t.Error("SwitchConversation(missing): want error")
	}

	if err := o.DeleteConversation(ctx, firstID); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d after delete", store.Len())
	}
	if snap := o.Snapshot(); snap.Conversation.ID != "" {
		t.Errorf("deleting the active conversation should start fresh, got %q", snap.Conversation.ID)
	}
}

func TestRestoreLastConversation(t *testing.T) {
	store := storage.NewStore(context.Background(), storage.NewMemoryKV())
	conv := store.Save(context.Background(), storage.Conversation{
		Messages: []storage.Message{storage.NewMessage("user", "remembered?")},
	})
	store.SetActive(context.Background(), conv.ID)

	o := New(&fakeStreamer{}, store, "test-model")
	if snap := o.Snapshot(); snap.Conversation.ID != conv.ID {
		t.Errorf("restored conversation = %q, want %q", snap.Conversation.ID, conv.ID)
	}
}

func TestSubscribe(t *testing.T) {
	fs := &fakeStreamer{chunks: []string{"a", "b"}}
	o, _ := newTestOrchestrator(t, fs)

	var snaps []Snapshot
	cancel := o.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })

	if err := o.SendTurn(context.Background(), "q", ""); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}

	// Optimistic append, two chunks, finalize.
	if len(snaps) != 4 {
		t.Fatalf("notifications = %d, want 4", len(snaps))
	}
	if !snaps[0].Streaming {
		t.Error("first notification should be mid-stream")
	}
	last := snaps[len(snaps)-1]
	if last.Streaming {
		t.Error("final notification still streaming")
	}
	if last.Conversation.Messages[1].Content != "ab" {
		t.Errorf("final assistant content = %q", last.Conversation.Messages[1].Content)
	}

	cancel()
	n := len(snaps)
	if err := o.SendTurn(context.Background(), "q2", ""); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if len(snaps) != n {
		t.Error("listener fired after unsubscribe")
	}
}

func TestWrapWithContext(t *testing.T) {
	if got := WrapWithContext("q", ""); got != "q" {
		t.Errorf("WrapWithContext with empty context = %q", got)
	}
	got := WrapWithContext("why?", "because")
	want := "Based on the following context, answer my question.\n\n---CONTEXT---\nbecause\n---END CONTEXT---\n\nQUESTION: why?"
	if got != want {
		t.Errorf("WrapWithContext = %q, want %q", got, want)
	}
}
