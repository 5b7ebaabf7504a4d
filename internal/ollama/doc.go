// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the Ollama chat API.
//
// It covers the three endpoints the sidebar uses: the base-URL
// connectivity probe, /api/tags for model discovery, and /api/chat for
// both one-shot and streaming completions.
//
// Streaming responses are newline-delimited JSON. StreamReader buffers
// partial lines across transport reads, decodes each complete line, and
// skips malformed ones without aborting the stream:
//
//	client := ollama.NewClient("http://127.0.0.1:11434")
//	err := client.ChatStream(ctx, "llama3.2:latest", messages, func(chunk ollama.StreamChunk) {
//	    fmt.Print(chunk.Content)
//	})
//
// Errors are typed: a 403 maps to ErrForbidden, which carries the
// OLLAMA_ORIGINS remediation shown to the user verbatim.
package ollama
