// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"io"
	"strings"
	"testing"
)

// chunkedReader delivers its payload in fixed-size fragments to exercise
// arbitrary transport chunk boundaries.
type chunkedReader struct {
	data []byte
	pos  int
	size int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

const wellFormedStream = `{"message":{"content":"Hi"},"done":false}
{"message":{"content":" there"},"done":false}
{"message":{"content":"!"},"done":true}
`

func collectStream(t *testing.T, r io.Reader) []string {
	t.Helper()
	reader := NewStreamReader(r)
	var got []string
	err := reader.Process(context.Background(), func(chunk StreamChunk) {
		if chunk.Content != "" {
			got = append(got, chunk.Content)
		}
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	return got
}

func TestStreamReader_WellFormed(t *testing.T) {
	got := collectStream(t, strings.NewReader(wellFormedStream))

	want := []string{"Hi", " there", "!"}
	if len(got) != len(want) {
		t.Fatalf("fragments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStreamReader_FragmentationInvariance(t *testing.T) {
	// Includes a multi-byte character so splits can land mid-rune.
	stream := `{"message":{"content":"héllo "},"done":false}` + "\n" +
		`{"message":{"content":"wörld"},"done":true}` + "\n"

	reference := strings.Join(collectStream(t, strings.NewReader(stream)), "")

	for size := 1; size <= len(stream); size++ {
		got := strings.Join(collectStream(t, &chunkedReader{data: []byte(stream), size: size}), "")
		if got != reference {
			t.Fatalf("chunk size %d: concatenation = %q, want %q", size, got, reference)
		}
	}
}

func TestStreamReader_MalformedLineSkipped(t *testing.T) {
	clean := `{"message":{"content":"a"},"done":false}` + "\n" +
		`{"message":{"content":"b"},"done":true}` + "\n"
	dirty := `{"message":{"content":"a"},"done":false}` + "\n" +
		`{not json at all` + "\n" +
		`{"message":{"content":"b"},"done":true}` + "\n"

	want := strings.Join(collectStream(t, strings.NewReader(clean)), "")
	got := strings.Join(collectStream(t, strings.NewReader(dirty)), "")

	if got != want {
		t.Errorf("stream with malformed line = %q, want %q", got, want)
	}
}

func TestStreamReader_StopsAtDone(t *testing.T) {
	// Events after done=true must not be delivered.
	stream := `{"message":{"content":"a"},"done":true}` + "\n" +
		`{"message":{"content":"IGNORED"},"done":false}` + "\n"

	got := strings.Join(collectStream(t, strings.NewReader(stream)), "")
	if got != "a" {
		t.Errorf("content = %q, want %q", got, "a")
	}
}

func TestStreamReader_EOFWithoutDone(t *testing.T) {
	// Transport end-of-stream terminates even without a done event.
	stream := `{"message":{"content":"partial"},"done":false}` + "\n"

	got := collectStream(t, strings.NewReader(stream))
	if len(got) != 1 || got[0] != "partial" {
		t.Errorf("fragments = %v", got)
	}
}

func TestStreamReader_FinalLineWithoutNewline(t *testing.T) {
	stream := `{"message":{"content":"a"},"done":false}` + "\n" +
		`{"message":{"content":"b"},"done":true}` // no trailing newline

	got := strings.Join(collectStream(t, strings.NewReader(stream)), "")
	if got != "ab" {
		t.Errorf("content = %q, want %q", got, "ab")
	}
}

func TestStreamReader_SkipsBlankLines(t *testing.T) {
	stream := "\n\n" + `{"message":{"content":"x"},"done":true}` + "\n"

	got := collectStream(t, strings.NewReader(stream))
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("fragments = %v", got)
	}
}

func TestStreamReader_Accumulated(t *testing.T) {
	reader := NewStreamReader(strings.NewReader(wellFormedStream))
	if err := reader.Process(context.Background(), func(StreamChunk) {}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reader.Accumulated() != "Hi there!" {
		t.Errorf("Accumulated = %q", reader.Accumulated())
	}
}

func TestStreamReader_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewStreamReader(strings.NewReader(wellFormedStream))
	err := reader.Process(ctx, func(StreamChunk) {})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
