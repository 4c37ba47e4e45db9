package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"

	"github.com/activity-lens/activity-lens/internal/config"
	"github.com/activity-lens/activity-lens/internal/embed"
	"github.com/activity-lens/activity-lens/internal/ollama"
	"github.com/activity-lens/activity-lens/internal/store"
)

// app bundles what every command needs: configuration, the final logger,
// and the opened record store.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store *store.Store
}

// newApp loads configuration and opens the store. Bootstrap logging goes to
// the system temp directory until the configured log directory is known.
func newApp() (*app, error) {
	bootstrapLog, err := logger.New(os.TempDir(), "activity-lens-bootstrap.log")
	if err != nil {
		return nil, fmt.Errorf("create bootstrap logger: %w", err)
	}

	cfg, err := config.Load(configPath, bootstrapLog)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Paths.LogDir, "activity-lens.log")
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	st, err := store.Open(cfg.StorePath(), log)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	return &app{
		cfg:   cfg,
		log:   log,
		store: st,
	}, nil
}

// signalContext returns a context canceled by SIGINT or SIGTERM, so an
// interrupted run stops between records with its progress saved.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ollamaClient builds the shared client for generation and embeddings.
func (a *app) ollamaClient() *ollama.Client {
	timeout := time.Duration(a.cfg.Ollama.TimeoutSeconds) * time.Second

	return ollama.NewClient(a.cfg.Ollama.BaseURL, timeout, a.log)
}

// embedder builds the embedding collaborator shared by build-centroids and
// the classify stage.
func (a *app) embedder() *embed.OllamaEmbedder {
	return embed.NewOllamaEmbedder(a.ollamaClient(), a.cfg.Ollama.EmbedModel)
}
