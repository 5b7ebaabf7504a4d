// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func TestClient_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"message":{"content":"Hi"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"content":" there"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	var chunks []string
	err := client.ChatStream(context.Background(), "llama3.2:latest",
		[]Message{NewUserMessage("hello")},
		func(chunk StreamChunk) {
			if chunk.Content != "" {
				chunks = append(chunks, chunk.Content)
			}
		})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	if strings.Join(chunks, "") != "Hi there" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestClient_ChatStream_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.ChatStream(context.Background(), "", nil, func(StreamChunk) {
		t.Error("no chunks expected on 403")
	})

	if !IsForbidden(err) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if !strings.Contains(err.Error(), "OLLAMA_ORIGINS") {
		t.Errorf("error lacks remediation: %v", err)
	}
}

func TestClient_ChatStream_APIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.ChatStream(context.Background(), "", nil, func(StreamChunk) {})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("err = %v, want server error message", err)
	}
}

func TestClient_ChatStream_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately unreachable

	client := NewClient(srv.URL)
	err := client.ChatStream(context.Background(), "", nil, func(StreamChunk) {})
	if !IsNotRunning(err) {
		t.Errorf("err = %v, want not-running", err)
	}
}

func TestClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"llama3.2:latest","modified_at":"2025-01-02T10:00:00Z","size":2019393189}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0].Name != "llama3.2:latest" {
		t.Errorf("models = %+v", models)
	}
	if models[0].Size != 2019393189 {
		t.Errorf("size = %d", models[0].Size)
	}
}

func TestClient_CheckRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ollama is running"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning failed: %v", err)
	}
}

func TestClient_CheckRunning_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.CheckRunning(context.Background())
	if !IsForbidden(err) {
		t.Errorf("err = %v, want forbidden", err)
	}
}

func TestClient_DefaultModelApplied(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := jsonDecode(r, &req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		gotModel = req.Model
		w.Write([]byte(`{"message":{"content":"ok"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	if err := client.ChatStream(context.Background(), "", nil, func(StreamChunk) {}); err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if gotModel != DefaultModel {
		t.Errorf("model = %q, want %q", gotModel, DefaultModel)
	}
}

func TestClient_ChatStreamChan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"x"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	var content string
	for chunk := range client.ChatStreamChan(context.Background(), "m", nil) {
		if chunk.Error != nil {
			t.Fatalf("chunk error: %v", chunk.Error)
		}
		content += chunk.Content
	}
	if content != "x" {
		t.Errorf("content = %q", content)
	}
}
