// Command zalusd serves the coding-agent HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zalusdev/zalus/audit"
	"github.com/zalusdev/zalus/config"
	"github.com/zalusdev/zalus/httpapi"
	"github.com/zalusdev/zalus/llm"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("ZALUS_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		slog.Error("invalid log level", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	secret := requireEnv(logger, "ZALUS_SESSION_SECRET")

	llmClient, err := llm.NewClientFromEnv(cfg.Model)
	if err != nil {
		logger.Error("llm client init failed", "err", err)
		os.Exit(1)
	}

	var srvOpts []httpapi.ServerOption
	databaseURL := envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	if databaseURL != "" {
		store, err := audit.Open(databaseURL)
		if err != nil {
			logger.Error("audit store init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
		srvOpts = append(srvOpts, httpapi.WithRecorder(store), httpapi.WithAuditReader(store))
		logger.Info("audit trail enabled")
	}

	server := httpapi.NewServer(
		envOrDefault("ZALUS_HTTP_LISTEN", cfg.ListenAddr),
		llmClient,
		[]byte(secret),
		httpapi.Options{
			Provider:         cfg.Provider,
			Model:            cfg.Model,
			MaxTokens:        cfg.MaxTokens,
			StreamIterations: cfg.StreamIterations,
			SyncIterations:   cfg.SyncIterations,
			RequestTimeout:   cfg.RequestTimeout(),
			VercelToken:      envOrDefault("VERCEL_TOKEN", cfg.VercelToken),
			VercelTeamID:     envOrDefault("VERCEL_TEAM_ID", cfg.VercelTeamID),
		},
		logger,
		srvOpts...,
	)

	logger.Info("effective config",
		"listen_addr", envOrDefault("ZALUS_HTTP_LISTEN", cfg.ListenAddr),
		"provider", cfg.Provider,
		"model", cfg.Model,
		"stream_iterations", cfg.StreamIterations,
		"sync_iterations", cfg.SyncIterations,
		"audit", databaseURL != "",
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	logger.Info("shutdown complete")
}

func requireEnv(logger *slog.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		logger.Error("required env var missing", "key", key)
		os.Exit(1)
	}
	return v
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
