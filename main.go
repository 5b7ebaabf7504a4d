// ai-sidebar - local AI chat sidebar with a streaming relay daemon.
//
// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	chatcore "github.com/duahaudo/ai-sidebar-local/internal/chat"
	"github.com/duahaudo/ai-sidebar-local/internal/cli"
	"github.com/duahaudo/ai-sidebar-local/internal/config"
	"github.com/duahaudo/ai-sidebar-local/internal/ollama"
	"github.com/duahaudo/ai-sidebar-local/internal/relay"
	"github.com/duahaudo/ai-sidebar-local/internal/storage"
	uichat "github.com/duahaudo/ai-sidebar-local/internal/ui/chat"
	"github.com/duahaudo/ai-sidebar-local/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if args.Model != "" {
		cfg.Model = args.Model
	}
	if args.APIURL != "" {
		cfg.APIURL = args.APIURL
		cfg.APISource = config.SourceRemote
	}

	switch cmd {
	case cli.CmdServe:
		err = cli.RunServe(cfg)
	case cli.CmdAsk:
		err = cli.RunAsk(cfg, args)
	case cli.CmdModels:
		err = cli.RunModels(cfg)
	case cli.CmdTest:
		err = cli.RunTest(cfg)
	case cli.CmdSessions:
		err = cli.RunSessions(cfg, args)
	case cli.CmdConfig:
		err = cli.RunConfig(cfg, args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		err = runPanel(cfg, args)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runPanel starts the TUI, streaming through the relay daemon when one is
// reachable and falling back to the backend directly otherwise.
func runPanel(cfg *config.Config, args cli.Args) error {
	kv, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer kv.Close()
	store := storage.NewStore(context.Background(), kv)

	streamer, contextFn, cleanup := buildStreamer(cfg, args)
	defer cleanup()

	orch := chatcore.New(streamer, store, cfg.Model)
	orch.SetAPIURL(cfg.EffectiveAPIURL())

	m := uichat.New(orch, styles.NewTheme(cfg.Theme), contextFn)
	defer m.Close()

	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// buildStreamer prefers the relay channel: an explicit --relay URL, then
// the configured daemon address, then a direct backend client.
func buildStreamer(cfg *config.Config, args cli.Args) (chatcore.Streamer, uichat.ContextProvider, func()) {
	url := args.Relay
	if url == "" {
		url = "ws://" + cfg.Relay.ListenAddr + cli.ChannelPath
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := relay.Dial(dialCtx, url)
	if err != nil {
		return chatcore.NewDirectStreamer(ollama.NewClient(cfg.EffectiveAPIURL())), nil, func() {}
	}

	contextFn := func(ctx context.Context) string {
		p, err := client.RequestPageContext(ctx)
		if err != nil {
			return ""
		}
		return p.Context
	}
	return client, contextFn, func() { _ = client.Close() }
}
