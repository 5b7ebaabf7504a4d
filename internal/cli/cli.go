// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - argument parsing and command dispatch for ai-sidebar.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdServe
	CmdAsk
	CmdModels
	CmdTest
	CmdSessions
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet  bool
	Model  string
	APIURL string
	Relay  string // ws:// channel URL for the TUI; empty means auto

	// Command-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args remaining after flag parsing
	Raw []string
}

const usageText = `ai-sidebar - local AI chat sidebar for your browser

The sidebar streams answers from a local Ollama instance. A relay daemon
carries the stream to the panel and to page-side helpers over WebSocket.

Usage:
  ai-sidebar                  Start the chat panel (default)
  ai-sidebar serve            Run the relay daemon
  ai-sidebar ask <question>   Ask a single question, print the answer
  ai-sidebar models           List installed models
  ai-sidebar test             Probe backend connectivity
  ai-sidebar sessions list    List saved conversations
  ai-sidebar sessions delete <id>  Delete a conversation
  ai-sidebar config show      Print the active configuration
  ai-sidebar config set <key> <value>  Update a setting
  ai-sidebar version          Print version information

Flags:
  --model <name>    Override the configured model
  --api-url <url>   Override the backend URL
  --relay <ws-url>  Connect the panel through an explicit relay daemon
  -q, --quiet       Suppress non-essential output

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("ai-sidebar version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs is Parse over an explicit argument slice.
func ParseArgs(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, args
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining

	switch cmd {
	case "serve", "daemon":
		return CmdServe, args

	case "ask":
		return CmdAsk, args

	case "models", "model":
		return CmdModels, args

	case "test":
		return CmdTest, args

	case "sessions", "session":
		if len(remaining) > 0 {
			args.Subcommand = strings.ToLower(remaining[0])
			args.Raw = remaining[1:]
		}
		return CmdSessions, args

	case "config":
		if len(remaining) > 0 {
			args.Subcommand = strings.ToLower(remaining[0])
			if args.Subcommand == "set" && len(remaining) >= 3 {
				args.ConfigKey = remaining[1]
				args.ConfigVal = remaining[2]
			}
		}
		return CmdConfig, args

	case "version", "-v", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		return CmdHelp, args
	}
}

func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	var remaining []string

	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "-q", "--quiet":
			args.Quiet = true
		case "--model":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		case "--api-url":
			if i+1 < len(argv) {
				i++
				args.APIURL = argv[i]
			}
		case "--relay":
			if i+1 < len(argv) {
				i++
				args.Relay = argv[i]
			}
		default:
			remaining = append(remaining, argv[i])
		}
	}

	return remaining, args
}
