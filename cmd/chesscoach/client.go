package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/chesscoach/internal/coach"
	"github.com/kalambet/chesscoach/internal/config"
	"github.com/kalambet/chesscoach/internal/storage"
)

// loadConfig is replaced in tests.
var loadConfig = config.Load

// env bundles what most commands need: config, service client and history.
type env struct {
	cfg    config.Config
	client *coach.Client
	store  *storage.Store
}

func newEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.Log.Level)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	return &env{
		cfg:    cfg,
		client: coach.New(cfg.BaseURL(), cfg.APITimeout()),
		store:  store,
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

// latestRunID returns the most recently recorded run id.
func (e *env) latestRunID() (string, error) {
	r, err := e.store.LatestRun()
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("no runs recorded yet; start one with `chesscoach analyze`")
	}
	if err != nil {
		return "", fmt.Errorf("reading history: %w", err)
	}
	return r.RunID, nil
}
