package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/chesscoach/internal/coach"
	"github.com/kalambet/chesscoach/internal/storage"
)

// ErrExpired is returned by Wait when a run gives up before producing results.
var ErrExpired = errors.New("run expired before results were available")

// RunStore abstracts the pending-run queue.
type RunStore interface {
	ClaimDueRun(lease time.Duration) (*storage.Run, error)
	MarkRunReady(runID string) error
	DeferRun(runID string, next time.Time, errMsg string) error
	ExpireRun(runID string, errMsg string) error
}

// AnalysisFetcher loads an analysis document.
type AnalysisFetcher interface {
	Analysis(ctx context.Context, runID string) (coach.Document, error)
}

// Watcher polls pending runs until the service has results for them.
type Watcher struct {
	store       RunStore
	fetcher     AnalysisFetcher
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewWatcher creates a Watcher. If interval is <= 0 it defaults to 15s;
// if maxAttempts is <= 0 it defaults to 40.
func NewWatcher(store RunStore, fetcher AnalysisFetcher, interval time.Duration, maxAttempts int) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 40
	}
	return &Watcher{
		store:       store,
		fetcher:     fetcher,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      slog.Default(),
	}
}

// Run polls for due runs until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("watch iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// RunOnce claims and checks a single due run.
// Returns true if a run was checked (whatever the outcome).
func (w *Watcher) RunOnce(ctx context.Context) (bool, error) {
	run, err := w.store.ClaimDueRun(w.interval)
	if err != nil {
		return false, fmt.Errorf("claiming run: %w", err)
	}
	if run == nil {
		return false, nil
	}

	return true, w.check(ctx, run)
}

func (w *Watcher) check(ctx context.Context, run *storage.Run) error {
	ready, reason := w.fetchStatus(ctx, run.RunID)
	if !ready && ctx.Err() != nil {
		// Shutting down; the lease lapses and the run is retried next start.
		return nil
	}
	if ready {
		w.logger.Info("analysis ready", "run_id", run.RunID, "attempts", run.Attempts)
		if err := w.store.MarkRunReady(run.RunID); err != nil {
			return fmt.Errorf("marking run %s ready: %w", run.RunID, err)
		}
		return nil
	}

	if run.Attempts >= w.maxAttempts {
		w.logger.Warn("giving up on run", "run_id", run.RunID, "attempts", run.Attempts, "reason", reason)
		if err := w.store.ExpireRun(run.RunID, reason); err != nil {
			return fmt.Errorf("expiring run %s: %w", run.RunID, err)
		}
		return nil
	}

	if err := w.store.DeferRun(run.RunID, time.Now().Add(w.interval), reason); err != nil {
		return fmt.Errorf("deferring run %s: %w", run.RunID, err)
	}
	return nil
}

// fetchStatus fetches the document; reason explains why it is not ready yet.
func (w *Watcher) fetchStatus(ctx context.Context, runID string) (ready bool, reason string) {
	doc, err := w.fetcher.Analysis(ctx, runID)
	switch {
	case err != nil:
		return false, err.Error()
	case doc.Status >= 400:
		return false, fmt.Sprintf("service returned %d", doc.Status)
	case doc.Empty():
		return false, "no results yet"
	}
	return true, ""
}

// Wait polls a single run until it is ready, expires, or ctx ends. It
// returns the final document when ready.
func (w *Watcher) Wait(ctx context.Context, runID string) (coach.Document, error) {
	for attempt := 1; ; attempt++ {
		doc, err := w.fetcher.Analysis(ctx, runID)
		if err == nil && doc.Status < 400 && !doc.Empty() {
			if markErr := w.store.MarkRunReady(runID); markErr != nil && !errors.Is(markErr, storage.ErrNotFound) {
				w.logger.Warn("marking run ready failed", "run_id", runID, "error", markErr)
			}
			return doc, nil
		}
		if err != nil {
			w.logger.Debug("analysis not available", "run_id", runID, "attempt", attempt, "error", err)
		}

		if attempt >= w.maxAttempts {
			if expErr := w.store.ExpireRun(runID, "wait: too many attempts"); expErr != nil && !errors.Is(expErr, storage.ErrNotFound) {
				w.logger.Warn("expiring run failed", "run_id", runID, "error", expErr)
			}
			return coach.Document{}, ErrExpired
		}

		select {
		case <-ctx.Done():
			return coach.Document{}, ctx.Err()
		case <-time.After(w.interval):
		}
	}
}
