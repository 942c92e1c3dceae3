package p1

import (
	"bytes"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// Block is one candidate telegram as isolated from the byte stream, together
// with the collector-clock time at which it was completed.
type Block struct {
	Data   []byte
	ReadAt time.Time
}

// A telegram ends with "!", an optional 4-hex-digit checksum (absent on
// DSMR 2.2) and a line terminator.
var (
	telegramEnd  = regexp.MustCompile(`\r\n!(?:[0-9A-Fa-f]{4})?\r\n`)
	telegramTail = regexp.MustCompile(`\r\n!(?:[0-9A-Fa-f]{4})?\r\n$`)
)

// How much to request per read while hunting for telegram boundaries.
const resyncChunk = 256

var resyncsTotal = metrics.NewCounter("p1mqtt_resyncs_total")

// Framer reconstructs telegram boundaries from an un-delimited byte stream.
//
// Telegram length is near-static: most fields are fixed width and the
// variable ones change rarely. The framer therefore learns the length of the
// last telegram it isolated and, while in sync, requests exactly that many
// bytes per read. Only when the assumption breaks (startup, garbled data, a
// field group appearing or disappearing) does it fall back to scanning for
// the start and end markers byte-wise.
type Framer struct {
	src io.Reader
	log *slog.Logger

	buf      []byte
	expected int
	inSync   bool
	resyncs  uint64
}

// NewFramer returns a framer reading from src. It starts out of sync; the
// first telegram always takes the slow scanning path.
func NewFramer(src io.Reader, log *slog.Logger) *Framer {
	if log == nil {
		log = slog.Default()
	}
	return &Framer{src: src, log: log}
}

// Next blocks until one complete candidate telegram has been read. Transport
// errors are returned as-is and are fatal to the framer.
func (f *Framer) Next() (Block, error) {
	for {
		if f.inSync {
			if err := f.fill(f.expected); err != nil {
				return Block{}, err
			}
			if f.buf[0] == '/' && telegramTail.Match(f.buf[:f.expected]) {
				return f.take(f.expected), nil
			}
			f.Desync("telegram length changed")
		}

		if blk, ok := f.isolate(); ok {
			return blk, nil
		}
		if err := f.readChunk(); err != nil {
			return Block{}, err
		}
	}
}

// Desync drops the framer back to marker scanning. The validator forces this
// after rejecting a block so that framing is re-derived from live data.
func (f *Framer) Desync(reason string) {
	if !f.inSync {
		return
	}
	f.inSync = false
	f.resyncs++
	resyncsTotal.Inc()
	f.log.Info("sync lost, resynchronizing",
		slog.String("reason", reason),
		slog.Int("telegram_size", f.expected))
}

// Resyncs reports how many times sync was lost after having been
// established.
func (f *Framer) Resyncs() uint64 { return f.resyncs }

// isolate tries to slice one telegram out of the accumulation buffer.
func (f *Framer) isolate() (Block, bool) {
	start := bytes.IndexByte(f.buf, '/')
	if start < 0 {
		// Nothing resembling a telegram start; stale partial data.
		f.buf = f.buf[:0]
		return Block{}, false
	}
	if start > 0 {
		f.log.Info("discarding data ahead of telegram start", slog.Int("bytes", start))
		f.buf = append(f.buf[:0], f.buf[start:]...)
	}

	loc := telegramEnd.FindIndex(f.buf)
	if loc == nil {
		return Block{}, false
	}
	end := loc[1]

	cand := f.buf[:end]
	// A second start marker before the end marker means the first telegram
	// was cut short by a communication error. Keep only the last one.
	if i := bytes.LastIndexByte(cand, '/'); i > 0 {
		f.log.Info("incomplete telegram detected, discarding", slog.Int("bytes", i))
		cand = cand[i:]
	}

	blk := Block{Data: append([]byte(nil), cand...), ReadAt: time.Now()}
	f.buf = append(f.buf[:0], f.buf[end:]...)
	f.learn(len(blk.Data))
	return blk, true
}

// learn records the observed telegram length and re-enters the fast path.
func (f *Framer) learn(size int) {
	if f.expected != size {
		f.log.Info("sync established", slog.Int("telegram_size", size))
	}
	f.expected = size
	f.inSync = true
}

// fill reads from the source until the buffer holds at least n bytes.
func (f *Framer) fill(n int) error {
	for len(f.buf) < n {
		tmp := make([]byte, n-len(f.buf))
		m, err := io.ReadFull(f.src, tmp)
		f.buf = append(f.buf, tmp[:m]...)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *Framer) readChunk() error {
	tmp := make([]byte, resyncChunk)
	n, err := f.src.Read(tmp)
	f.buf = append(f.buf, tmp[:n]...)
	if n == 0 && err != nil {
		return err
	}
	return nil
}

// take hands out the first n buffered bytes as a completed block.
func (f *Framer) take(n int) Block {
	blk := Block{Data: append([]byte(nil), f.buf[:n]...), ReadAt: time.Now()}
	f.buf = append(f.buf[:0], f.buf[n:]...)
	return blk
}
