package storage

import "go.uber.org/zap"

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *LookupEvent) {
	w.logger.Info("list_lookup",
		zap.String("request_id", event.RequestID),
		zap.String("uri", event.URI),
		zap.String("rkey", event.RecordKey),
		zap.String("outcome", event.Outcome),
		zap.String("creator_did", event.CreatorDID),
		zap.Int64("item_count", event.ItemCount),
		zap.Bool("has_last_added", event.HasLastAdded),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
