// Package collector runs the producing half of the gateway: read bytes,
// frame telegrams, validate, decode, and enqueue records.
package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"

	"github.com/p1mqtt/p1mqtt/internal/buffer"
	"github.com/p1mqtt/p1mqtt/internal/event"
	"github.com/p1mqtt/p1mqtt/internal/p1"
)

var (
	telegramsTotal        = metrics.NewCounter("p1mqtt_telegrams_total")
	telegramsDroppedTotal = metrics.NewCounter("p1mqtt_telegrams_dropped_total")
	recordsTotal          = metrics.NewCounter("p1mqtt_records_total")
)

// Collector ties the framer and decoder to the record buffer. It owns the
// source and closes it when the context is cancelled, which unblocks the
// in-flight read.
type Collector struct {
	Source  io.ReadCloser
	Framer  *p1.Framer
	Decoder *p1.Decoder
	Buf     *buffer.Buffer
	Emitter *event.Emitter
	Log     *slog.Logger
}

// Run reads until the source fails or ctx is cancelled. Protocol-level
// malformation (bad framing, checksum mismatch) is logged, triggers a
// resync, and never stops the loop; only transport errors are fatal.
func (c *Collector) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.Source.Close()
	})
	defer stop()

	for {
		blk, err := c.Framer.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading from source: %w", err)
		}

		recs, err := c.Decoder.Decode(blk.Data, blk.ReadAt)
		if err != nil {
			telegramsDroppedTotal.Inc()
			c.Log.Info("dropping invalid telegram", slog.Any("error", err))
			c.Framer.Desync("telegram failed validation")
			continue
		}
		telegramsTotal.Inc()

		for _, rec := range recs {
			recordsTotal.Inc()
			c.Buf.Push(rec)
			if c.Emitter != nil {
				c.Emitter.Emit(rec)
			}
		}
	}
}
