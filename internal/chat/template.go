// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "fmt"

// Prompt templates sent to the model. Wire-stable: conversations already
// persisted contain these strings.
const (
	summarizePrompt = "Please provide a concise summary of the following content:\n\n%s"
	keyPointsPrompt = "Extract the key points from the following content as a bulleted list:\n\n%s"
)

// WrapWithContext frames a question with extracted page text. An empty
// context returns the message unchanged.
func WrapWithContext(message, context string) string {
	if context == "" {
		return message
	}
	return fmt.Sprintf(
		"Based on the following context, answer my question.\n\n---CONTEXT---\n%s\n---END CONTEXT---\n\nQUESTION: %s",
		context, message,
	)
}
