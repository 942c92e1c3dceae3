// Package source opens the raw P1 byte source: a serial port or a TCP
// stream, optionally teeing everything read to a dump file.
package source

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/jacobsa/go-serial/serial"

	"github.com/p1mqtt/p1mqtt/internal/config"
)

const dialTimeout = 30 * time.Second

// Serial parameters per DSMR generation. Older 2.2 meters talk 9600 7E1,
// 4.0 and newer talk 115200 8N1.
var dsmrParameters = map[string]serial.OpenOptions{
	config.DSMR22: {
		BaudRate:        9600,
		DataBits:        7,
		StopBits:        1,
		ParityMode:      serial.PARITY_EVEN,
		MinimumReadSize: 1,
	},
	config.DSMR40: {
		BaudRate:        115200,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	},
}

// Open connects to the configured source. A TCP host/port wins over a serial
// device when both are present. Closing the returned source unblocks any
// in-flight read.
func Open(cfg *config.Config, log *slog.Logger) (io.ReadCloser, error) {
	src, err := open(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.SourceDump != "" {
		dump, err := os.Create(cfg.SourceDump)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("could not open source dump file: %w", err)
		}
		log.Info("writing source data to dump file", slog.String("path", cfg.SourceDump))
		src = &dumpSource{ReadCloser: src, tee: io.TeeReader(src, dump), dump: dump}
	}
	return src, nil
}

func open(cfg *config.Config, log *slog.Logger) (io.ReadCloser, error) {
	if cfg.Host != "" && cfg.Port != 0 {
		addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
		log.Info("attempting TCP connection", slog.String("addr", addr))
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("could not connect to P1 source at %s: %w", addr, err)
		}
		return conn, nil
	}

	log.Info("opening serial port",
		slog.String("device", cfg.Device),
		slog.String("dsmr", cfg.DSMR))
	opts := dsmrParameters[cfg.DSMR]
	opts.PortName = cfg.Device
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// dumpSource reads through a TeeReader so every byte from the source also
// lands in the dump file.
type dumpSource struct {
	io.ReadCloser
	tee  io.Reader
	dump *os.File
}

func (d *dumpSource) Read(p []byte) (int, error) {
	return d.tee.Read(p)
}

func (d *dumpSource) Close() error {
	err := d.ReadCloser.Close()
	if cerr := d.dump.Close(); err == nil {
		err = cerr
	}
	return err
}
