package collector

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p1mqtt/p1mqtt/internal/buffer"
	"github.com/p1mqtt/p1mqtt/internal/event"
	"github.com/p1mqtt/p1mqtt/internal/p1"
)

const sampleTelegram = `/Ene5\XS210 ESMR 5.0

1-3:0.2.8(50)
0-0:1.0.0(171105201324W)
0-0:96.1.1(4530303437303030303037363330383137)
1-0:1.8.1(000051.775*kWh)
1-0:1.8.2(000000.000*kWh)
1-0:2.8.1(000024.413*kWh)
1-0:2.8.2(000000.000*kWh)
0-0:96.14.0(0001)
1-0:1.7.0(00.335*kW)
1-0:2.7.0(00.000*kW)
0-0:96.7.21(00003)
0-0:96.7.9(00001)
1-0:99.97.0(0)(0-0:96.7.19)
1-0:32.32.0(00002)
1-0:32.36.0(00000)
0-0:96.13.0()
1-0:32.7.0(229.0*V)
1-0:31.7.0(001*A)
1-0:21.7.0(00.335*kW)
1-0:22.7.0(00.000*kW)
0-1:24.1.0(003)
0-1:96.1.0(4730303538353330303031313633323137)
0-1:24.2.1(171105201000W)(00016.713*m3)
!8F46
`

// blockingSource serves a fixed byte stream, then blocks until closed, the
// way an idle serial port would.
type blockingSource struct {
	data   *bytes.Reader
	closed chan struct{}
}

func newBlockingSource(data []byte) *blockingSource {
	return &blockingSource{data: bytes.NewReader(data), closed: make(chan struct{})}
}

func (s *blockingSource) Read(p []byte) (int, error) {
	if s.data.Len() > 0 {
		return s.data.Read(p)
	}
	<-s.closed
	return 0, io.ErrClosedPipe
}

func (s *blockingSource) Close() error {
	close(s.closed)
	return nil
}

func telegramBytes(n int) []byte {
	one := strings.ReplaceAll(sampleTelegram, "\n", "\r\n")
	return []byte(strings.Repeat(one, n))
}

func newCollector(src io.ReadCloser, buf *buffer.Buffer, em *event.Emitter) *Collector {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Collector{
		Source:  src,
		Framer:  p1.NewFramer(src, log),
		Decoder: p1.NewDecoder(true, log),
		Buf:     buf,
		Emitter: em,
		Log:     log,
	}
}

func TestCollectorProducesRecords(t *testing.T) {
	src := newBlockingSource(telegramBytes(2))
	buf := buffer.New(10, slog.New(slog.NewTextHandler(io.Discard, nil)))
	em := event.NewEmitter()
	sub := em.Subscribe()

	c := newCollector(src, buf, em)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Two telegrams, two records each.
	assert.Eventually(t, func() bool { return buf.Len() == 4 }, 5*time.Second, 5*time.Millisecond)

	rec, ok := buf.Pop()
	require.True(t, ok)
	assert.Equal(t, 0, rec.Channel)
	assert.Equal(t, "E0047000007630817", rec.DeviceID)
	assert.Equal(t, 51.775, rec.Fields["energy_consumed_tariff1"])

	rec, ok = buf.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, rec.Channel)
	assert.Equal(t, 16.713, rec.Fields["gas_consumed_volume"])

	// The emitter saw the same records.
	assert.Len(t, sub, 4)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestCollectorSkipsCorruptTelegram(t *testing.T) {
	data := telegramBytes(3)
	// Corrupt a data byte of the middle telegram so its checksum fails.
	mid := len(data) / 2
	data[mid] ^= 0x20

	src := newBlockingSource(data)
	buf := buffer.New(10, slog.New(slog.NewTextHandler(io.Discard, nil)))

	c := newCollector(src, buf, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// The corrupt telegram is dropped, the surrounding ones survive.
	assert.Eventually(t, func() bool { return buf.Len() == 4 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestCollectorReturnsSourceError(t *testing.T) {
	src := io.NopCloser(bytes.NewReader(telegramBytes(1)))
	buf := buffer.New(10, slog.New(slog.NewTextHandler(io.Discard, nil)))

	c := &Collector{
		Source:  src,
		Framer:  p1.NewFramer(src, slog.New(slog.NewTextHandler(io.Discard, nil))),
		Decoder: p1.NewDecoder(true, nil),
		Buf:     buf,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, buf.Len(), "records before the failure are kept")
}
