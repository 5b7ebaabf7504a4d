// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package thinking splits streamed assistant replies into a reasoning
// segment and a final answer using the in-band <thinking> marker pair.
package thinking

import (
	"regexp"
	"strings"
)

// Marker pair the system prompt instructs the model to emit.
const (
	OpenMarker  = "<thinking>"
	CloseMarker = "</thinking>"
)

var completeSpan = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)

// Result is the classification of one accumulated reply text.
type Result struct {
	// Thinking is the trimmed reasoning text, or "" when HasThinking is
	// false.
	Thinking    string
	HasThinking bool

	// Answer is the reply text with the reasoning span removed.
	Answer string

	// InThinking is true while the stream is inside an unclosed marker.
	InThinking bool
}

// Split classifies accumulated reply text. It is re-derived from scratch
// on every chunk append: cost is linear in the accumulated length, which
// is bounded by one reply.
//
// Only the first complete span is honored; any later span stays embedded
// in Answer verbatim. An unmatched opening marker counts as reasoning
// only while streaming is still in progress — once the stream has ended
// the text is returned unchanged.
func Split(text string, streaming bool) Result {
	if m := completeSpan.FindStringSubmatchIndex(text); m != nil {
		inner := text[m[2]:m[3]]
		answer := text[:m[0]] + text[m[1]:]
		return Result{
			Thinking:    strings.TrimSpace(inner),
			HasThinking: true,
			Answer:      strings.TrimSpace(answer),
		}
	}

	if streaming {
		if idx := strings.Index(text, OpenMarker); idx >= 0 {
			return Result{
				Thinking:    strings.TrimSpace(text[idx+len(OpenMarker):]),
				HasThinking: true,
				Answer:      strings.TrimSpace(text[:idx]),
				InThinking:  true,
			}
		}
	}

	return Result{Answer: text}
}
