// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package thinking

import "testing"

func TestSplit_CompleteSpan(t *testing.T) {
	r := Split("<thinking>A</thinking>B", false)

	if !r.HasThinking || r.Thinking != "A" {
		t.Errorf("Thinking = %q (has=%v), want %q", r.Thinking, r.HasThinking, "A")
	}
	if r.Answer != "B" {
		t.Errorf("Answer = %q, want %q", r.Answer, "B")
	}
	if r.InThinking {
		t.Error("InThinking should be false for a complete span")
	}
}

func TestSplit_UnclosedWhileStreaming(t *testing.T) {
	r := Split("<thinking>A", true)

	if !r.HasThinking || r.Thinking != "A" {
		t.Errorf("Thinking = %q (has=%v)", r.Thinking, r.HasThinking)
	}
	if r.Answer != "" {
		t.Errorf("Answer = %q, want empty", r.Answer)
	}
	if !r.InThinking {
		t.Error("InThinking should be true mid-marker")
	}
}

func TestSplit_UnclosedAfterStreamEnd(t *testing.T) {
	// An unmatched opener after the stream finished is left as-is.
	r := Split("<thinking>A", false)

	if r.HasThinking {
		t.Errorf("Thinking = %q, want none", r.Thinking)
	}
	if r.Answer != "<thinking>A" {
		t.Errorf("Answer = %q", r.Answer)
	}
}

func TestSplit_PlainText(t *testing.T) {
	r := Split("plain text", false)

	if r.HasThinking {
		t.Error("unexpected thinking segment")
	}
	if r.Answer != "plain text" {
		t.Errorf("Answer = %q", r.Answer)
	}
	if r.InThinking {
		t.Error("InThinking should be false")
	}
}

func TestSplit_TextBeforeUnclosedMarker(t *testing.T) {
	r := Split("intro <thinking>reasoning", true)

	if r.Thinking != "reasoning" {
		t.Errorf("Thinking = %q", r.Thinking)
	}
	if r.Answer != "intro" {
		t.Errorf("Answer = %q", r.Answer)
	}
	if !r.InThinking {
		t.Error("InThinking should be true")
	}
}

func TestSplit_OnlyFirstSpanHonored(t *testing.T) {
	r := Split("<thinking>A</thinking>B<thinking>C</thinking>D", false)

	if r.Thinking != "A" {
		t.Errorf("Thinking = %q, want first span only", r.Thinking)
	}
	// The second span stays embedded in the answer verbatim.
	if r.Answer != "B<thinking>C</thinking>D" {
		t.Errorf("Answer = %q", r.Answer)
	}
}

func TestSplit_MultilineSpan(t *testing.T) {
	r := Split("<thinking>line1\nline2</thinking>\nanswer", false)

	if r.Thinking != "line1\nline2" {
		t.Errorf("Thinking = %q", r.Thinking)
	}
	if r.Answer != "answer" {
		t.Errorf("Answer = %q", r.Answer)
	}
}

func TestSplit_TrimsWhitespace(t *testing.T) {
	r := Split("<thinking>  padded  </thinking>  result  ", false)

	if r.Thinking != "padded" {
		t.Errorf("Thinking = %q", r.Thinking)
	}
	if r.Answer != "result" {
		t.Errorf("Answer = %q", r.Answer)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	r := Split("", true)
	if r.HasThinking || r.Answer != "" || r.InThinking {
		t.Errorf("unexpected result for empty input: %+v", r)
	}
}
