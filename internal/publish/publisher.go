// Package publish drains the record buffer toward an MQTT-style sink.
package publish

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/p1mqtt/p1mqtt/internal/buffer"
	"github.com/p1mqtt/p1mqtt/internal/p1"
)

var (
	publishedTotal     = metrics.NewCounter("p1mqtt_published_records_total")
	publishErrorsTotal = metrics.NewCounter("p1mqtt_publish_errors_total")
)

// Sink is the external publish operation. Failures are non-fatal to the
// gateway; connection lifecycle is the implementation's problem.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// DrainPolicy selects what a rate-limited tick publishes.
type DrainPolicy int

const (
	// DrainAll flushes every record queued at tick time, in order.
	DrainAll DrainPolicy = iota
	// DrainLatest publishes only the newest queued record and discards the
	// rest, for sinks that want one message per interval.
	DrainLatest
)

// Scheduler moves records from the buffer to the sink, either as fast as
// they arrive (Rate zero) or on a fixed cadence. A record handed to the sink
// is consumed whether or not the publish succeeded; the buffer's drop-oldest
// policy, not a retry queue, governs what happens during sink outages.
type Scheduler struct {
	Buf    *buffer.Buffer
	Sink   Sink
	Topic  string
	Rate   time.Duration
	Policy DrainPolicy
	Opts   PayloadOptions
	Log    *slog.Logger
}

func (s *Scheduler) Run(ctx context.Context) error {
	if s.Rate <= 0 {
		return s.runImmediate(ctx)
	}
	return s.runTicked(ctx)
}

func (s *Scheduler) runImmediate(ctx context.Context) error {
	for {
		if err := s.Buf.Wait(ctx); err != nil {
			return err
		}
		if rec, ok := s.Buf.Pop(); ok {
			s.publish(rec)
		}
	}
}

func (s *Scheduler) runTicked(ctx context.Context) error {
	ticker := time.NewTicker(s.Rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		recs := s.Buf.Drain()
		if len(recs) == 0 {
			continue
		}
		if s.Policy == DrainLatest {
			recs = recs[len(recs)-1:]
		}
		for _, rec := range recs {
			s.publish(rec)
		}
	}
}

func (s *Scheduler) publish(rec *p1.Record) {
	payload, err := Payload(rec, s.Opts)
	if err != nil {
		publishErrorsTotal.Inc()
		s.Log.Info("could not serialize record", slog.Any("error", err))
		return
	}

	topic := Topic(s.Topic, rec)
	if err := s.Sink.Publish(topic, payload); err != nil {
		publishErrorsTotal.Inc()
		s.Log.Info("publish failed, record dropped",
			slog.String("topic", topic),
			slog.Any("error", err))
		return
	}
	publishedTotal.Inc()
}
