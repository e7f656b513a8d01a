package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
)

// PostgresWriter writes lookup events to PostgreSQL asynchronously. Each
// batch is inserted in one transaction.
type PostgresWriter struct {
	*asyncWriter
	db *sql.DB
}

// NewPostgresWriter opens a pgx-backed pool and starts the background flush loop.
func NewPostgresWriter(dsn string, logger *zap.Logger) (*PostgresWriter, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresWriter: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresWriter: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewPostgresWriter: create table: %w", err)
	}

	w := &PostgresWriter{db: db}
	w.asyncWriter = newAsyncWriter("postgres", w.insertBatch, logger)
	return w, nil
}

// Close drains buffered events and closes the pool.
func (w *PostgresWriter) Close() {
	w.asyncWriter.Close()
	if err := w.db.Close(); err != nil {
		w.logger.Warn("postgres close failed", zap.Error(err))
	}
}

func (w *PostgresWriter) insertBatch(ctx context.Context, events []*LookupEvent) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO list_lookups (
			request_id, timestamp, uri, rkey, outcome,
			creator_did, item_count, has_last_added, latency_ms, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (request_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.RequestID,
			e.Timestamp,
			e.URI,
			e.RecordKey,
			e.Outcome,
			e.CreatorDID,
			e.ItemCount,
			e.HasLastAdded,
			e.LatencyMs,
			e.UserAgent,
		); err != nil {
			return fmt.Errorf("insert %s: %w", e.RequestID, err)
		}
	}

	return tx.Commit()
}
