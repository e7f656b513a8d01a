package storage

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// ClickHouseWriter writes lookup events to ClickHouse asynchronously.
// Write() is non-blocking; events are batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	*asyncWriter
	conn driver.Conn
}

// NewClickHouseWriter connects to ClickHouse and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}
	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("NewClickHouseWriter: %w", err)
	}
	if err := conn.Exec(ctx, clickHouseSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("NewClickHouseWriter: create table: %w", err)
	}

	w := &ClickHouseWriter{conn: conn}
	w.asyncWriter = newAsyncWriter("clickhouse", w.insertBatch, logger)
	return w, nil
}

// Close drains buffered events and closes the connection.
func (w *ClickHouseWriter) Close() {
	w.asyncWriter.Close()
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) insertBatch(ctx context.Context, events []*LookupEvent) error {
	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO list_lookups (
			request_id, timestamp, uri, rkey, outcome,
			creator_did, item_count, has_last_added, latency_ms, user_agent
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		var hasLastAdded uint8
		if e.HasLastAdded {
			hasLastAdded = 1
		}
		if err := batch.Append(
			e.RequestID,
			e.Timestamp,
			e.URI,
			e.RecordKey,
			e.Outcome,
			e.CreatorDID,
			e.ItemCount,
			hasLastAdded,
			e.LatencyMs,
			e.UserAgent,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	return batch.Send()
}
