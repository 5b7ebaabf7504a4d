// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/duahaudo/ai-sidebar-local/internal/config"
	"github.com/duahaudo/ai-sidebar-local/internal/ollama"
	"github.com/duahaudo/ai-sidebar-local/internal/relay"
)

// ChannelPath is where the daemon mounts the WebSocket channel.
const ChannelPath = "/channel"

const shutdownGrace = 5 * time.Second

// RunServe runs the relay daemon until SIGINT/SIGTERM.
func RunServe(cfg *config.Config) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client := ollama.NewClient(cfg.EffectiveAPIURL())
	gateway := relay.NewServer(log, client, relay.Options{
		DefaultModel:   cfg.Model,
		OriginRequired: cfg.Relay.OriginRequired,
		AllowedOrigins: cfg.Relay.AllowedOrigins,
	})

	mux := http.NewServeMux()
	mux.Handle(ChannelPath, gateway)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              cfg.Relay.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Live reload: a config save swaps the default model without
	// restarting active sessions.
	if path, err := config.ConfigPath(); err == nil {
		if w, err := config.Watch(path, func(next *config.Config) {
			gateway.SetDefaultModel(next.Model)
		}); err == nil {
			defer w.Close()
		} else {
			log.Warn("config.watch.unavailable", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay.listen", "addr", cfg.Relay.ListenAddr, "backend", client.BaseURL())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("relay.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
