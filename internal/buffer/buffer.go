// Package buffer holds assembled records between the collector and the
// publish scheduler. It is the only state shared between the two loops.
package buffer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/p1mqtt/p1mqtt/internal/p1"
)

var dropsTotal = metrics.NewCounter("p1mqtt_buffer_dropped_records_total")

// slot pairs a record with its enqueue time, so drop notices can say how
// stale the evicted record was.
type slot struct {
	rec      *p1.Record
	queuedAt time.Time
}

// Buffer is a fixed-capacity FIFO of records. When full, Push evicts the
// oldest entry rather than blocking: a stalled MQTT broker must never stall
// telegram ingestion, and for live telemetry the oldest reading is the least
// useful one. Contents are not persistent.
type Buffer struct {
	mu     sync.Mutex
	slots  []slot
	cap    int
	log    *slog.Logger
	notify chan struct{}
}

func New(capacity int, log *slog.Logger) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Buffer{
		cap:    capacity,
		log:    log,
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues rec, evicting the oldest record first if the buffer is at
// capacity. It reports whether an eviction happened and never blocks.
func (b *Buffer) Push(rec *p1.Record) bool {
	b.mu.Lock()
	dropped := false
	if len(b.slots) == b.cap {
		old := b.slots[0]
		b.slots = b.slots[1:]
		dropped = true
		dropsTotal.Inc()
		b.log.Info("buffer full, dropping oldest record",
			slog.Int("channel", old.rec.Channel),
			slog.Duration("queued_for", time.Since(old.queuedAt)))
	}
	b.slots = append(b.slots, slot{rec: rec, queuedAt: time.Now()})
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Pop removes and returns the oldest record.
func (b *Buffer) Pop() (*p1.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.slots) == 0 {
		return nil, false
	}
	rec := b.slots[0].rec
	b.slots = b.slots[1:]
	return rec, true
}

// Drain removes and returns all records currently enqueued, oldest first.
// Records pushed after Drain returns are not included.
func (b *Buffer) Drain() []*p1.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	recs := make([]*p1.Record, len(b.slots))
	for i, s := range b.slots {
		recs[i] = s.rec
	}
	b.slots = nil
	return recs
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

// Wait blocks until the buffer is non-empty or ctx is cancelled.
func (b *Buffer) Wait(ctx context.Context) error {
	for {
		if b.Len() > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.notify:
		}
	}
}
