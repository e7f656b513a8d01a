package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	insertTimeout = 5 * time.Second
)

// insertFunc persists one batch. It is only ever called from the flush loop.
type insertFunc func(ctx context.Context, events []*LookupEvent) error

// asyncWriter buffers events and hands them to insert in batches from a
// single background goroutine.
type asyncWriter struct {
	sink      string
	insert    insertFunc
	buffer    chan *LookupEvent
	done      chan struct{}
	flushed   chan struct{} // closed by flushLoop when it returns
	closeOnce sync.Once
	interval  time.Duration
	logger    *zap.Logger
}

func newAsyncWriter(sink string, insert insertFunc, logger *zap.Logger) *asyncWriter {
	return startAsyncWriter(sink, insert, bufferSize, flushInterval, logger)
}

func startAsyncWriter(sink string, insert insertFunc, size int, interval time.Duration, logger *zap.Logger) *asyncWriter {
	w := &asyncWriter{
		sink:     sink,
		insert:   insert,
		buffer:   make(chan *LookupEvent, size),
		done:     make(chan struct{}),
		flushed:  make(chan struct{}),
		interval: interval,
		logger:   logger,
	}
	go w.flushLoop()
	return w
}

// Write queues an event. Non-blocking: drops the event if the buffer is full.
func (w *asyncWriter) Write(event *LookupEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("event buffer full, dropping event",
			zap.String("sink", w.sink),
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events and waits for it to
// finish. Each drained batch is bounded by insertTimeout. Calling Close more
// than once is a no-op.
func (w *asyncWriter) Close() {
	w.closeOnce.Do(func() { close(w.done) })
	<-w.flushed
}

func (w *asyncWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]*LookupEvent, 0, flushBatch)

	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			// Drain what is already buffered, still in flushBatch chunks.
			for {
				select {
				case event := <-w.buffer:
					batch = append(batch, event)
					if len(batch) >= flushBatch {
						w.flush(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						w.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (w *asyncWriter) flush(events []*LookupEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := w.insert(ctx, events); err != nil {
		w.logger.Error("event batch insert failed",
			zap.String("sink", w.sink),
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}
