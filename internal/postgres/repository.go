// Package postgres is the durable audit side of the pipeline: every
// collection, completion, and submission event lands here, and the worker
// flushes periodic leaderboard snapshots for offline analysis.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scavenger-hunt/internal/config"
	"github.com/scavenger-hunt/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS run_events (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			user_name VARCHAR(255),
			event_type VARCHAR(32) NOT NULL,
			item_id VARCHAR(64),
			completion_time DOUBLE PRECISION,
			event_time TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			user_name VARCHAR(255) NOT NULL,
			completion_time DOUBLE PRECISION NOT NULL,
			submitted_at TIMESTAMP NOT NULL,
			snapshot_at TIMESTAMP NOT NULL,
			UNIQUE(user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_events_user ON run_events(user_id, event_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_run_events_type ON run_events(event_type, event_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_time ON leaderboard_snapshots(completion_time ASC)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// RecordEvent appends one run event to the audit trail.
func (r *Repository) RecordEvent(ctx context.Context, event domain.RunEvent) error {
	query := `
		INSERT INTO run_events (user_id, user_name, event_type, item_id, completion_time, event_time)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		event.UserID,
		event.UserName,
		event.EventType,
		event.ItemID,
		event.CompletionTime,
		time.Unix(event.Timestamp, 0).UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// UpsertSnapshot writes one leaderboard entry into the snapshot table.
func (r *Repository) UpsertSnapshot(ctx context.Context, entry domain.LeaderboardEntry, at time.Time) error {
	query := `
		INSERT INTO leaderboard_snapshots (user_id, user_name, completion_time, submitted_at, snapshot_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET user_name = $2, completion_time = $3, submitted_at = $4, snapshot_at = $5
	`
	_, err := r.pool.Exec(ctx, query,
		entry.UserID,
		entry.UserName,
		entry.CompletionTime,
		time.Unix(entry.Timestamp, 0).UTC(),
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot: %w", err)
	}
	return nil
}

// BatchUpsertSnapshots flushes a full leaderboard snapshot in one batch.
func (r *Repository) BatchUpsertSnapshots(ctx context.Context, entries []domain.LeaderboardEntry, at time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO leaderboard_snapshots (user_id, user_name, completion_time, submitted_at, snapshot_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id)
		DO UPDATE SET user_name = $2, completion_time = $3, submitted_at = $4, snapshot_at = $5
	`
	for _, entry := range entries {
		batch.Queue(query,
			entry.UserID,
			entry.UserName,
			entry.CompletionTime,
			time.Unix(entry.Timestamp, 0).UTC(),
			at.UTC(),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch upserting snapshots: %w", err)
		}
	}
	return nil
}

// RecentEvents returns the latest audit events for a user.
func (r *Repository) RecentEvents(ctx context.Context, userID string, limit int) ([]domain.RunEvent, error) {
	query := `
		SELECT user_id, COALESCE(user_name, ''), event_type, COALESCE(item_id, ''), COALESCE(completion_time, 0), event_time
		FROM run_events
		WHERE user_id = $1
		ORDER BY event_time DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEvent
	for rows.Next() {
		var event domain.RunEvent
		var at time.Time
		if err := rows.Scan(
			&event.UserID,
			&event.UserName,
			&event.EventType,
			&event.ItemID,
			&event.CompletionTime,
			&at,
		); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		event.Timestamp = at.Unix()
		events = append(events, event)
	}
	return events, nil
}
