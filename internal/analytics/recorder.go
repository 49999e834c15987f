// Package analytics buffers verification events and batch-inserts them into
// ClickHouse. Recording is best-effort; a full buffer drops the oldest rows
// rather than blocking a verification request.
package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"verification-service/internal/event"
	"verification-service/internal/util"
)

const insertEventsQuery = `INSERT INTO verification_events (event_id, event_type, channel, identifier_hash, outcome, event_time)`

// Inserter is the batch-write capability; *client.ClickHouseClient
// implements it.
type Inserter interface {
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

type Recorder struct {
	inserter  Inserter
	logger    *zap.Logger
	batchSize int

	mu  sync.Mutex
	buf [][]interface{}

	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

func NewRecorder(inserter Inserter, logger *zap.Logger, batchSize int, flushInterval time.Duration) *Recorder {
	if batchSize < 1 {
		batchSize = 1
	}
	r := &Recorder{
		inserter:  inserter,
		logger:    logger,
		batchSize: batchSize,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.flushLoop(flushInterval)
	return r
}

// Record queues one event for insertion.
func (r *Recorder) Record(ev event.VerificationEvent) {
	r.mu.Lock()
	r.buf = append(r.buf, []interface{}{
		ev.ID, ev.Type, ev.Channel, ev.IdentifierHash, ev.Outcome, ev.OccurredAt,
	})
	if len(r.buf) > r.batchSize*2 {
		// Sink is falling behind; shed the oldest rows.
		over := len(r.buf) - r.batchSize*2
		r.buf = r.buf[over:]
		r.logger.Warn("Analytics buffer overflow", util.Int("dropped", over))
	}
	full := len(r.buf) >= r.batchSize
	r.mu.Unlock()

	if full {
		r.flush()
	}
}

func (r *Recorder) flushLoop(interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-r.stop:
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	r.mu.Lock()
	if len(r.buf) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := r.inserter.BatchInsert(ctx, insertEventsQuery, batch); err != nil {
		r.logger.Error("Failed to flush analytics batch",
			util.Int("rows", len(batch)),
			util.ErrorField(err))
		return
	}
	r.logger.Debug("Analytics batch flushed", util.Int("rows", len(batch)))
}

// Close drains the buffer and stops the flush loop.
func (r *Recorder) Close() {
	r.stopped.Do(func() {
		close(r.stop)
		<-r.done
	})
}
