// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/duahaudo/ai-sidebar-local/internal/config"
	"github.com/duahaudo/ai-sidebar-local/internal/ollama"
	"github.com/duahaudo/ai-sidebar-local/internal/relay"
	"github.com/duahaudo/ai-sidebar-local/internal/storage"
	"github.com/duahaudo/ai-sidebar-local/internal/thinking"
)

const commandTimeout = 30 * time.Second

// askTimeout bounds one full generation, not one network read.
const askTimeout = 5 * time.Minute

// RunAsk sends a single question to the backend and prints the answer.
// Reasoning spans are stripped; `ask` is for the final text only.
func RunAsk(cfg *config.Config, args Args) error {
	question := strings.TrimSpace(strings.Join(args.Raw, " "))
	if question == "" {
		return fmt.Errorf("usage: ai-sidebar ask <question>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()

	client := ollama.NewClient(cfg.EffectiveAPIURL())
	resp, err := client.Chat(ctx, cfg.Model, []ollama.Message{
		ollama.NewSystemMessage(relay.SystemPrompt),
		ollama.NewUserMessage(question),
	})
	if err != nil {
		return err
	}

	answer := thinking.Split(resp.Message.Content, false).Answer
	fmt.Println(strings.TrimSpace(answer))
	return nil
}

// RunModels lists the models installed on the backend.
func RunModels(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	client := ollama.NewClient(cfg.EffectiveAPIURL())
	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	if len(models) == 0 {
		fmt.Println("No models installed. Try: ollama pull llama3.2")
		return nil
	}

	for _, m := range models {
		marker := "  "
		if m.Name == cfg.Model {
			marker = "* "
		}
		fmt.Printf("%s%-40s %8.1f GB\n", marker, m.Name, float64(m.Size)/(1<<30))
	}
	return nil
}

// RunTest probes backend connectivity and reports the result.
func RunTest(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	client := ollama.NewClient(cfg.EffectiveAPIURL())
	if err := client.CheckRunning(ctx); err != nil {
		fmt.Printf("✗ %s unreachable\n", client.BaseURL())
		return err
	}
	fmt.Printf("✓ connected to %s\n", client.BaseURL())
	return nil
}

// RunSessions handles `sessions list` and `sessions delete <id>`.
func RunSessions(cfg *config.Config, args Args) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	kv, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer kv.Close()
	store := storage.NewStore(ctx, kv)

	switch args.Subcommand {
	case "", "list", "ls":
		convs := store.List()
		if len(convs) == 0 {
			fmt.Println("No saved conversations.")
			return nil
		}
		for _, c := range convs {
			active := " "
			if c.ID == store.ActiveID() {
				active = "*"
			}
			fmt.Printf("%s %-22s %-50s %3d msgs  %s\n",
				active, c.ID, c.Title, len(c.Messages), c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil

	case "delete", "rm":
		if len(args.Raw) == 0 {
			return fmt.Errorf("usage: ai-sidebar sessions delete <id>")
		}
		for _, id := range args.Raw {
			if _, ok := store.Get(id); !ok {
				return fmt.Errorf("conversation %s not found", id)
			}
			store.Delete(ctx, id)
			fmt.Printf("deleted %s\n", id)
		}
		return nil

	default:
		return fmt.Errorf("unknown sessions subcommand: %s", args.Subcommand)
	}
}

// RunConfig handles `config show` and `config set <key> <value>`.
func RunConfig(cfg *config.Config, args Args) error {
	switch args.Subcommand {
	case "", "show":
		return toml.NewEncoder(os.Stdout).Encode(cfg)

	case "set":
		if args.ConfigKey == "" {
			return fmt.Errorf("usage: ai-sidebar config set <key> <value>")
		}
		if err := setConfigKey(cfg, args.ConfigKey, args.ConfigVal); err != nil {
			return err
		}
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args.ConfigKey, args.ConfigVal)
		return nil

	default:
		return fmt.Errorf("unknown config subcommand: %s", args.Subcommand)
	}
}

func setConfigKey(cfg *config.Config, key, val string) error {
	switch key {
	case "model":
		cfg.Model = val
	case "api_url":
		cfg.APIURL = val
	case "api_source":
		cfg.APISource = val
	case "theme":
		cfg.Theme = val
	case "sidebar_width":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("sidebar_width must be an integer: %q", val)
		}
		cfg.SidebarWidth = n
	case "relay.listen_addr":
		cfg.Relay.ListenAddr = val
	case "storage.driver":
		cfg.Storage.Driver = val
	case "storage.dsn":
		cfg.Storage.DSN = val
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
