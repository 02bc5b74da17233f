package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scavenger-hunt/internal/config"
	"github.com/scavenger-hunt/internal/domain"
	"github.com/scavenger-hunt/internal/postgres"
	"github.com/scavenger-hunt/internal/store"
)

// indexRebuilder is implemented by stores that keep ordering indexes
// alongside their documents.
type indexRebuilder interface {
	RebuildIndexes(ctx context.Context) error
}

// SyncWorker periodically flushes the leaderboard from the store into
// PostgreSQL snapshots.
type SyncWorker struct {
	store    store.Store
	postgres *postgres.Repository
	config   *config.SyncConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	st store.Store,
	pg *postgres.Repository,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		store:    st,
		postgres: pg,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.syncAll(ctx)
		}
	}
}

// Recover repairs store-side ordering indexes after a restart, when the
// store keeps any.
func (w *SyncWorker) Recover(ctx context.Context) error {
	rb, ok := w.store.(indexRebuilder)
	if !ok {
		return nil
	}

	w.logger.Info("rebuilding store indexes")
	if err := rb.RebuildIndexes(ctx); err != nil {
		return err
	}
	w.logger.Info("store indexes rebuilt")
	return nil
}

// syncAll flushes the current leaderboard into PostgreSQL
func (w *SyncWorker) syncAll(ctx context.Context) {
	w.logger.Info("starting sync cycle")
	startTime := time.Now()

	docs, err := w.store.Query(ctx, store.LeaderboardPath, "completionTime")
	if err != nil {
		w.logger.Error("failed to read leaderboard for sync", "error", err)
		return
	}

	entries := make([]domain.LeaderboardEntry, 0, len(docs))
	for _, doc := range docs {
		var entry domain.LeaderboardEntry
		if err := store.Decode(doc, &entry); err != nil {
			w.logger.Warn("skipping malformed leaderboard entry", "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		w.logger.Debug("no entries to sync")
		return
	}

	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	// Flush batches concurrently; each batch is its own pgx batch.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]
		g.Go(func() error {
			return w.postgres.BatchUpsertSnapshots(gctx, chunk, startTime)
		})
	}
	if err := g.Wait(); err != nil {
		w.logger.Error("failed to flush leaderboard snapshot", "error", err)
		return
	}

	w.logger.Info("sync cycle completed",
		"duration", time.Since(startTime),
		"entries", len(entries),
	)
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single sync cycle (useful for manual triggers)
func (w *SyncWorker) RunOnce(ctx context.Context) {
	w.syncAll(ctx)
}
