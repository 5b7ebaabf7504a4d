// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/duahaudo/ai-sidebar-local/internal/ollama"
)

const (
	// RolePanel is the sidebar UI end of the channel.
	RolePanel = "panel"
	// RolePage is the page-side helper end of the channel.
	RolePage = "page"
)

const (
	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 5 * time.Minute

	// Inbound frames larger than this are a protocol violation.
	maxFrameBytes = 1 << 20

	defaultRateEvents = 60
	defaultRateWindow = time.Minute
)

// =============================================================================
// SERVER
// =============================================================================

// Options tune the relay gateway. Zero values select the defaults above.
type Options struct {
	// DefaultModel is used when a stream request names none.
	DefaultModel string

	// OriginRequired rejects handshakes with no Origin header.
	OriginRequired bool
	// AllowedOrigins is the handshake origin allowlist. Entries match the
	// full origin or its host; "*" disables the check.
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	// RateEvents inbound envelopes are allowed per RateWindow per connection.
	RateEvents int
	RateWindow time.Duration
}

// Server is the WebSocket gateway of the streaming daemon. It validates
// envelopes, drives backend streams for panel sessions, and forwards
// page-directed messages between roles.
type Server struct {
	log    *slog.Logger
	client *ollama.Client

	modelMu      sync.RWMutex
	defaultModel string

	originRequired bool
	allowedOrigins []string
	// Host patterns for websocket.Accept; derived from allowedOrigins so
	// both origin layers agree.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	rateLimit rate.Limit
	rateBurst int

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer constructs a gateway around the given backend client.
// A nil logger falls back to JSON on stdout; a nil client uses the
// default local backend.
func NewServer(log *slog.Logger, client *ollama.Client, opts Options) *Server {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if client == nil {
		client = ollama.NewClient(ollama.DefaultBaseURL)
	}

	s := &Server{
		log:            log,
		client:         client,
		defaultModel:   opts.DefaultModel,
		originRequired: opts.OriginRequired,
		allowedOrigins: opts.AllowedOrigins,
		sessions:       make(map[string]*session),
	}
	if s.defaultModel == "" {
		s.defaultModel = ollama.DefaultModel
	}
	s.originPatterns = originPatterns(s.allowedOrigins)

	s.writeTimeout = opts.WriteTimeout
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	s.readIdleTimeout = opts.ReadIdleTimeout
	if s.readIdleTimeout <= 0 {
		s.readIdleTimeout = defaultReadIdle
	}
	s.sendQueueSize = opts.SendQueueSize
	if s.sendQueueSize < minSendQueueSize {
		s.sendQueueSize = defaultSendQueueSize
	}

	events := opts.RateEvents
	if events <= 0 {
		events = defaultRateEvents
	}
	window := opts.RateWindow
	if window <= 0 {
		window = defaultRateWindow
	}
	s.rateLimit = rate.Every(window / time.Duration(events))
	s.rateBurst = events

	return s
}

// SetDefaultModel swaps the model used for requests that name none.
// Safe to call while sessions are active; in-flight streams keep the
// model they started with.
func (s *Server) SetDefaultModel(model string) {
	if model == "" {
		return
	}
	s.modelMu.Lock()
	s.defaultModel = model
	s.modelMu.Unlock()
}

func (s *Server) getDefaultModel() string {
	s.modelMu.RLock()
	defer s.modelMu.RUnlock()
	return s.defaultModel
}

// session is one accepted connection. Writes are serialized through send
// so chunk ordering matches parse order.
type session struct {
	id   string
	role string

	send chan Envelope
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	streaming bool
}

func (c *session) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *session) beginStream() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streaming {
		return false
	}
	c.streaming = true
	return true
}

func (c *session) endStream() {
	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()
}

func (c *session) isStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// ServeHTTP upgrades the request and runs the session loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.enforceOrigin(r); err != nil {
		s.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		s.log.Info("ws.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	role := r.URL.Query().Get("role")
	if role != RolePage {
		role = RolePanel
	}

	sess := &session{
		id:   newRandomHex(10),
		role: role,
		send: make(chan Envelope, s.sendQueueSize),
		done: make(chan struct{}),
	}
	s.register(sess)
	defer s.unregister(sess)

	s.log.Info("ws.session.open", "session_id", sess.id, "role", role, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	shutdown := func(code websocket.StatusCode, reason string) {
		sess.close()
		_ = conn.Close(code, reason)
		cancel()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sess.done:
				return
			case env := <-sess.send:
				if err := writeEnvelope(ctx, conn, env, s.writeTimeout); err != nil {
					s.log.Info("ws.write.fail", "session_id", sess.id, "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	limiter := rate.NewLimiter(s.rateLimit, s.rateBurst)

readLoop:
	for {
		// An expired read context tears the whole connection down, so the
		// idle deadline is decided per read. While a stream is in flight
		// the panel legitimately sends nothing; the deadline is suspended
		// so a slow generation is never reaped mid-answer, and re-arms on
		// the next inbound frame after the stream.
		readCtx := ctx
		readCancel := context.CancelFunc(func() {})
		if !sess.isStreaming() {
			readCtx, readCancel = context.WithTimeout(ctx, s.readIdleTimeout)
		}
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			case readErrBadJSON:
				s.trySendError(ctx, sess, "bad_json", "invalid JSON")
				continue readLoop
			default:
				s.log.Info("ws.read.fail", "session_id", sess.id, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !limiter.Allow() {
			s.trySendError(ctx, sess, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			s.trySendError(ctx, sess, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case TypeStreamRequest:
			s.onStreamRequest(ctx, sess, env)

		case TypeFetchModels:
			go s.onFetchModels(ctx, sess, env)

		case TypeTestConnection:
			go s.onTestConnection(ctx, sess, env)

		case TypeGetPageContext, TypeExtractContext:
			// Page-directed requests from the panel. With no page attached
			// the panel gets an empty context instead of hanging.
			if !s.forward(ctx, RolePage, env) && env.Type == TypeGetPageContext {
				s.send(ctx, sess, NewEnvelope(TypePageContext, PageContextPayload{}))
			}

		case TypePageContext, TypeCloseSidebar, TypeResizeSidebar:
			s.forward(ctx, RolePanel, env)

		default:
			s.trySendError(ctx, sess, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
}

// =============================================================================
// STREAMING
// =============================================================================

// onStreamRequest drives one backend stream for the session. Chunks and
// the single terminal event travel through the session send queue, so the
// panel observes them in parse order.
func (s *Server) onStreamRequest(ctx context.Context, sess *session, env Envelope) {
	var req StreamRequestPayload
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.send(ctx, sess, NewEnvelope(TypeStreamError, StreamErrorPayload{Error: "invalid payload"}))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.send(ctx, sess, NewEnvelope(TypeStreamError, StreamErrorPayload{Error: "empty message"}))
		return
	}
	if !sess.beginStream() {
		s.send(ctx, sess, NewEnvelope(TypeStreamError, StreamErrorPayload{Error: "stream already in progress"}))
		return
	}

	go func() {
		defer sess.endStream()

		model := req.Model
		if model == "" {
			model = s.getDefaultModel()
		}

		messages := make([]ollama.Message, 0, len(req.ConversationHistory)+2)
		messages = append(messages, ollama.NewSystemMessage(SystemPrompt))
		for _, h := range req.ConversationHistory {
			messages = append(messages, ollama.Message{Role: h.Role, Content: h.Content})
		}
		messages = append(messages, ollama.NewUserMessage(req.Message))

		// A failed chunk send means the session is gone; cancel the
		// backend stream instead of parsing into the void.
		streamCtx, stopStream := context.WithCancel(ctx)
		defer stopStream()

		start := time.Now()
		err := s.clientFor(req.APIURL).ChatStream(streamCtx, model, messages, func(chunk ollama.StreamChunk) {
			if chunk.Content == "" {
				return
			}
			if !s.send(streamCtx, sess, NewEnvelope(TypeStreamChunk, StreamChunkPayload{Chunk: chunk.Content})) {
				stopStream()
			}
		})

		if err != nil {
			s.log.Info("stream.fail", "session_id", sess.id, "model", model, "err", err)
			s.send(ctx, sess, NewEnvelope(TypeStreamError, StreamErrorPayload{Error: errorText(err)}))
			return
		}

		s.log.Info("stream.done", "session_id", sess.id, "model", model, "elapsed", time.Since(start))
		s.send(ctx, sess, NewEnvelope(TypeStreamEnd, nil))
	}()
}

// clientFor returns the default backend client, or a one-off client when
// the request names a different base URL.
func (s *Server) clientFor(apiURL string) *ollama.Client {
	apiURL = strings.TrimSuffix(strings.TrimSpace(apiURL), "/")
	if apiURL == "" || apiURL == s.client.BaseURL() {
		return s.client
	}
	return ollama.NewClient(apiURL)
}

// errorText maps a backend failure to the human-readable text shown in
// the panel. ClientError carries its own remediation strings, including
// the allowed-origins 403 instructions.
func errorText(err error) string {
	var ce *ollama.ClientError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

// =============================================================================
// ONE-SHOT HANDLERS
// =============================================================================

func (s *Server) onFetchModels(ctx context.Context, sess *session, env Envelope) {
	var req FetchModelsPayload
	if env.Payload != nil {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			s.send(ctx, sess, NewEnvelope(TypeModelsResult, ModelsResultPayload{Error: "invalid payload"}))
			return
		}
	}

	infos, err := s.clientFor(req.URL).ListModels(ctx)
	if err != nil {
		s.send(ctx, sess, NewEnvelope(TypeModelsResult, ModelsResultPayload{Error: errorText(err)}))
		return
	}

	names := make([]string, 0, len(infos))
	for _, m := range infos {
		names = append(names, m.Name)
	}
	s.send(ctx, sess, NewEnvelope(TypeModelsResult, ModelsResultPayload{Models: names}))
}

func (s *Server) onTestConnection(ctx context.Context, sess *session, env Envelope) {
	var req TestConnectionPayload
	if env.Payload != nil {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			s.send(ctx, sess, NewEnvelope(TypeConnectionResult, ConnectionResultPayload{Error: "invalid payload"}))
			return
		}
	}

	if err := s.clientFor(req.URL).CheckRunning(ctx); err != nil {
		s.send(ctx, sess, NewEnvelope(TypeConnectionResult, ConnectionResultPayload{Error: errorText(err)}))
		return
	}
	s.send(ctx, sess, NewEnvelope(TypeConnectionResult, ConnectionResultPayload{Connected: true}))
}

// =============================================================================
// SESSION REGISTRY
// =============================================================================

func (s *Server) register(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.log.Info("ws.session.close", "session_id", sess.id, "role", sess.role)
}

// forward fans an envelope out to every session of the given role.
// Reports whether at least one session received it.
func (s *Server) forward(ctx context.Context, role string, env Envelope) bool {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.role == role {
			targets = append(targets, sess)
		}
	}
	s.mu.Unlock()

	delivered := false
	for _, sess := range targets {
		if s.enqueue(ctx, sess, env) {
			delivered = true
		}
	}
	return delivered
}

func (s *Server) trySendError(ctx context.Context, sess *session, code, msg string) {
	_ = s.enqueue(ctx, sess, NewEnvelope(TypeError, ErrorPayload{Code: code, Message: msg}))
}

// send queues an envelope, blocking until there is room. Stream chunks,
// terminal events, and one-shot results must never be dropped: losing a
// chunk corrupts the reply and losing a terminal strands the panel in
// its loading state. Backpressure propagates to the producer instead.
func (s *Server) send(ctx context.Context, sess *session, env Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-sess.done:
		return false
	case sess.send <- env:
		return true
	}
}

// enqueue is non-blocking: a full send queue drops the envelope rather
// than stalling the read loop. Only forwarded page traffic may travel
// this way; everything with delivery guarantees goes through send.
func (s *Server) enqueue(ctx context.Context, sess *session, env Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-sess.done:
		return false
	case sess.send <- env:
		return true
	default:
		s.log.Info("ws.backpressure.drop", "session_id", sess.id, "type", env.Type)
		return false
	}
}

// =============================================================================
// ENVELOPE IO
// =============================================================================

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// json decode errors surface from readEnvelope, not conn.Read; match on
	// text as a fallback when they arrive wrapped.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// =============================================================================
// ORIGIN POLICY
// =============================================================================

func (s *Server) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if s.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(s.allowedOrigins) == 0 {
		// Local tools connect without an allowlist; same-host policy is
		// still enforced by websocket.Accept.
		return nil
	}

	originHost := originHostOnly(origin)

	for _, a := range s.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatterns derives websocket.Accept host patterns from the origin
// allowlist so the handshake layer agrees with enforceOrigin.
func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}
	if _, ok := seen["*"]; ok || len(seen) == 0 {
		if ok {
			return []string{"*"}
		}
		return nil
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
