// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/duahaudo/ai-sidebar-local/internal/config"
	"github.com/duahaudo/ai-sidebar-local/internal/ollama"
)

func TestParseArgsDefaults(t *testing.T) {
	cmd, args := ParseArgs(nil)
	if cmd != CmdTUI {
		t.Errorf("ParseArgs(nil) cmd = %v, want CmdTUI", cmd)
	}
	if args.Quiet || args.Model != "" {
		t.Errorf("args = %+v", args)
	}
}

func TestParseArgsCommands(t *testing.T) {
	cases := []struct {
		argv []string
		want Command
	}{
		{[]string{"serve"}, CmdServe},
		{[]string{"daemon"}, CmdServe},
		{[]string{"ask", "what", "is", "this"}, CmdAsk},
		{[]string{"models"}, CmdModels},
		{[]string{"test"}, CmdTest},
		{[]string{"sessions", "list"}, CmdSessions},
		{[]string{"config", "show"}, CmdConfig},
		{[]string{"version"}, CmdVersion},
		{[]string{"-v"}, CmdVersion},
		{[]string{"help"}, CmdHelp},
		{[]string{"frobnicate"}, CmdHelp},
	}

	for _, tc := range cases {
		if cmd, _ := ParseArgs(tc.argv); cmd != tc.want {
			t.Errorf("ParseArgs(%v) = %v, want %v", tc.argv, cmd, tc.want)
		}
	}
}

func TestParseArgsGlobalFlags(t *testing.T) {
	cmd, args := ParseArgs([]string{"--model", "qwen2.5:7b", "--api-url", "http://gpu:11434", "-q", "models"})
	if cmd != CmdModels {
		t.Errorf("cmd = %v", cmd)
	}
	if args.Model != "qwen2.5:7b" || args.APIURL != "http://gpu:11434" || !args.Quiet {
		t.Errorf("args = %+v", args)
	}
}

func TestParseArgsSessionsDelete(t *testing.T) {
	cmd, args := ParseArgs([]string{"sessions", "delete", "conv_ab12cd34"})
	if cmd != CmdSessions || args.Subcommand != "delete" {
		t.Fatalf("cmd = %v, sub = %q", cmd, args.Subcommand)
	}
	if len(args.Raw) != 1 || args.Raw[0] != "conv_ab12cd34" {
		t.Errorf("Raw = %v", args.Raw)
	}
}

func TestParseArgsConfigSet(t *testing.T) {
	cmd, args := ParseArgs([]string{"config", "set", "theme", "light"})
	if cmd != CmdConfig {
		t.Fatalf("cmd = %v", cmd)
	}
	if args.Subcommand != "set" || args.ConfigKey != "theme" || args.ConfigVal != "light" {
		t.Errorf("args = %+v", args)
	}
}

func TestSetConfigKey(t *testing.T) {
	cfg := config.Default()

	if err := setConfigKey(cfg, "model", "phi3:mini"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if cfg.Model != "phi3:mini" {
		t.Errorf("Model = %q", cfg.Model)
	}

	if err := setConfigKey(cfg, "sidebar_width", "480"); err != nil {
		t.Fatalf("set sidebar_width: %v", err)
	}
	if cfg.SidebarWidth != 480 {
		t.Errorf("SidebarWidth = %d", cfg.SidebarWidth)
	}

	if err := setConfigKey(cfg, "sidebar_width", "wide"); err == nil {
		t.Error("non-integer sidebar_width accepted")
	}
	if err := setConfigKey(cfg, "bogus", "x"); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestRunAsk(t *testing.T) {
	var captured ollama.ChatRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": "<thinking>weighing options</thinking>Paris.",
			},
			"done": true,
		})
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	cfg := config.Default()
	cfg.Model = "test-model"
	cfg.APISource = config.SourceRemote
	cfg.APIURL = backend.URL

	out := captureStdout(t, func() {
		if err := RunAsk(cfg, Args{Raw: []string{"capital", "of", "France?"}}); err != nil {
			t.Fatalf("RunAsk() error = %v", err)
		}
	})

	if got := strings.TrimSpace(out); got != "Paris." {
		t.Errorf("output = %q, want %q", got, "Paris.")
	}
	if captured.Stream {
		t.Error("ask must use the non-streaming chat endpoint")
	}
	if len(captured.Messages) != 2 || captured.Messages[1].Content != "capital of France?" {
		t.Errorf("messages = %+v", captured.Messages)
	}
}

func TestRunAskEmptyQuestion(t *testing.T) {
	if err := RunAsk(config.Default(), Args{}); err == nil {
		t.Fatal("RunAsk() with no question: want error")
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	_ = w.Close()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}
