// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader incrementally parses the newline-delimited JSON stream
// produced by /api/chat. Transport chunk boundaries are arbitrary: a line
// may arrive split across reads, including mid multi-byte character, so
// the reader buffers until each '\n' before decoding.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	model       string
}

// NewStreamReader wraps a streaming response body.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads the stream and invokes callback for every parsed event,
// in arrival order. Returns nil when the server signals done=true or the
// body reaches EOF, whichever comes first.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			chunk, err := s.readLine()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}

			if chunk != nil {
				callback(*chunk)
				if chunk.Done {
					return nil
				}
			}
		}
	}
}

// readLine reads and decodes a single stream line. A nil chunk with nil
// error means the line was blank or malformed and should be skipped.
func (s *StreamReader) readLine() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		// A final line without trailing newline is still processed.
		if len(line) == 0 {
			return nil, err
		}
	}

	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}

	var event struct {
		Model     string    `json:"model"`
		CreatedAt time.Time `json:"created_at"`
		Message   struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Done bool `json:"done"`
	}
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		// One malformed line must not abort an otherwise healthy stream.
		log.Printf("STREAM_SKIP | malformed line: %v", err)
		return nil, nil
	}

	if event.Model != "" {
		s.model = event.Model
	}

	if event.Message.Content != "" {
		s.accumulator.WriteString(event.Message.Content)
	}

	return &StreamChunk{
		Content: event.Message.Content,
		Done:    event.Done,
		Model:   s.model,
	}, nil
}

// Accumulated returns the concatenation of every content fragment seen so
// far. After a clean stream this equals the full assistant reply.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// Model returns the model name reported by the stream.
func (s *StreamReader) Model() string {
	return s.model
}
