// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// ErrChannelClosed reports a relay connection that dropped before the
// stream delivered its terminal event.
var ErrChannelClosed = errors.New("relay channel closed before stream completed")

// ChunkFunc receives one text fragment, in the order the daemon parsed it.
type ChunkFunc func(chunk string)

// Client is the panel end of the relay channel. One request runs at a
// time; calls serialize on an internal mutex.
//
// The daemon reaps connections that sit idle with no stream in flight,
// so the channel underneath a long-lived Client can die between turns.
// Every request therefore redials once when it finds the channel dead
// before anything was delivered; only a drop mid-delivery surfaces as
// ErrChannelClosed.
type Client struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial opens the channel against a ws:// or wss:// URL.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, err := dialConn(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Client{url: url, conn: conn}, nil
}

func dialConn(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("relay dial: %w", err)
	}
	if sp := conn.Subprotocol(); sp != Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol mismatch")
		return nil, fmt.Errorf("relay dial: server selected subprotocol %q, want %q", sp, Subprotocol)
	}
	conn.SetReadLimit(maxFrameBytes)
	return conn, nil
}

// redial replaces a dead connection. The caller holds c.mu.
func (c *Client) redial(ctx context.Context) error {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "redial")
		c.conn = nil
	}
	conn, err := dialConn(ctx, c.url)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Close tears the channel down. Does not take c.mu: it must be able to
// interrupt a Stream blocked in a read.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Stream sends one stream request and invokes onChunk per fragment until
// the terminal event. A STREAM_ERROR terminal becomes the returned error;
// so does a disconnect before any terminal arrives. A channel found dead
// before the first fragment is redialed and the request resent once.
func (c *Client) Stream(ctx context.Context, req StreamRequestPayload, onChunk ChunkFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delivered := false
	err := c.streamOnce(ctx, req, onChunk, &delivered)
	if errors.Is(err, ErrChannelClosed) && !delivered {
		if rerr := c.redial(ctx); rerr != nil {
			return err
		}
		err = c.streamOnce(ctx, req, onChunk, &delivered)
	}
	return err
}

func (c *Client) streamOnce(ctx context.Context, req StreamRequestPayload, onChunk ChunkFunc, delivered *bool) error {
	if err := c.write(ctx, NewEnvelope(TypeStreamRequest, req)); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}

	for {
		env, err := c.read(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrChannelClosed, err)
		}

		switch env.Type {
		case TypeStreamChunk:
			var p StreamChunkPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return fmt.Errorf("relay: malformed chunk payload: %w", err)
			}
			*delivered = true
			if onChunk != nil {
				onChunk(p.Chunk)
			}

		case TypeStreamEnd:
			return nil

		case TypeStreamError:
			var p StreamErrorPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return fmt.Errorf("relay: malformed error payload: %w", err)
			}
			return errors.New(p.Error)

		default:
			// Page-directed traffic may interleave with a stream; skip it.
		}
	}
}

// FetchModels asks the daemon for the installed model names. An empty url
// keeps the daemon's configured backend.
func (c *Client) FetchModels(ctx context.Context, url string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p ModelsResultPayload
	if err := c.roundTrip(ctx, NewEnvelope(TypeFetchModels, FetchModelsPayload{URL: url}), TypeModelsResult, &p); err != nil {
		return nil, err
	}
	if p.Error != "" {
		return nil, errors.New(p.Error)
	}
	return p.Models, nil
}

// TestConnection probes backend reachability through the daemon.
func (c *Client) TestConnection(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p ConnectionResultPayload
	if err := c.roundTrip(ctx, NewEnvelope(TypeTestConnection, TestConnectionPayload{URL: url}), TypeConnectionResult, &p); err != nil {
		return err
	}
	if !p.Connected {
		if p.Error != "" {
			return errors.New(p.Error)
		}
		return errors.New("not connected")
	}
	return nil
}

// RequestPageContext asks connected pages for their visible text. The
// daemon answers with an empty context when no page is attached.
func (c *Client) RequestPageContext(ctx context.Context) (PageContextPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var p PageContextPayload
	if err := c.roundTrip(ctx, NewEnvelope(TypeGetPageContext, nil), TypePageContext, &p); err != nil {
		return PageContextPayload{}, err
	}
	return p, nil
}

// roundTrip runs one request/response exchange, redialing and resending
// once when the channel turns out to be dead. The caller holds c.mu.
func (c *Client) roundTrip(ctx context.Context, env Envelope, want string, out any) error {
	err := c.exchange(ctx, env, want, out)
	if errors.Is(err, ErrChannelClosed) {
		if rerr := c.redial(ctx); rerr != nil {
			return err
		}
		err = c.exchange(ctx, env, want, out)
	}
	return err
}

func (c *Client) exchange(ctx context.Context, env Envelope, want string, out any) error {
	if err := c.write(ctx, env); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return c.await(ctx, want, out)
}

// await reads envelopes until one of the wanted type arrives, decoding
// its payload into out. Protocol-level ERROR envelopes abort the wait.
func (c *Client) await(ctx context.Context, want string, out any) error {
	for {
		env, err := c.read(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrChannelClosed, err)
		}

		switch env.Type {
		case want:
			if env.Payload == nil {
				return nil
			}
			return json.Unmarshal(env.Payload, out)
		case TypeError:
			var p ErrorPayload
			_ = json.Unmarshal(env.Payload, &p)
			return fmt.Errorf("relay: %s: %s", p.Code, p.Message)
		default:
			// Unrelated traffic; keep waiting.
		}
	}
}

func (c *Client) write(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *Client) read(ctx context.Context) (Envelope, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
