package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p1mqtt/p1mqtt/internal/buffer"
	"github.com/p1mqtt/p1mqtt/internal/collector"
	"github.com/p1mqtt/p1mqtt/internal/config"
	"github.com/p1mqtt/p1mqtt/internal/event"
	"github.com/p1mqtt/p1mqtt/internal/p1"
	"github.com/p1mqtt/p1mqtt/internal/publish"
	"github.com/p1mqtt/p1mqtt/internal/source"
	"github.com/p1mqtt/p1mqtt/internal/store"
	"github.com/p1mqtt/p1mqtt/internal/web"
)

func main() {
	configPath := flag.String("config", "", "configuration file to load")
	device := flag.String("device", "", "serial device to use")
	host := flag.String("host", "", "TCP source host to use")
	port := flag.Int("port", 0, "TCP source port to use")
	dsmr22 := flag.Bool("dsmr-22", false, "use DSMR 2.2 serial parameters and skip checksum verification")
	sourceDump := flag.String("source-dump", "", "file to dump all raw source data to")
	mqttHost := flag.String("mqtt-host", "", "MQTT server to connect to")
	mqttPort := flag.Int("mqtt-port", 0, "MQTT port to connect to")
	mqttUsername := flag.String("mqtt-username", "", "MQTT user name")
	mqttPassword := flag.String("mqtt-password", "", "MQTT password")
	mqttClientID := flag.String("mqtt-client-id", "", "MQTT client ID, unique per broker")
	mqttTopic := flag.String("mqtt-topic", "", "MQTT topic to publish to; {channel} and {device_id} are substituted")
	mqttRate := flag.Int("mqtt-rate", -1, "seconds between messages sent to the broker, 0 for immediate")
	bufferSize := flag.Int("buffer-size", 0, "how many records to buffer while the broker is unavailable")
	preferLocal := flag.Bool("prefer-local-timestamp", false, "use collector time as authoritative instead of the telegram timestamp")
	timeMS := flag.Bool("time-ms", false, "send timestamps in milliseconds instead of seconds")
	httpAddr := flag.String("http-addr", "", "address for the status/metrics HTTP server")
	archivePath := flag.String("archive", "", "sqlite file to archive records to")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error("could not load configuration", slog.Any("error", err))
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags win over the config file.
	if *device != "" {
		cfg.Device = *device
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dsmr22 {
		cfg.DSMR = config.DSMR22
	}
	if *sourceDump != "" {
		cfg.SourceDump = *sourceDump
	}
	if *mqttHost != "" {
		cfg.MQTT.Host = *mqttHost
	}
	if *mqttPort != 0 {
		cfg.MQTT.Port = *mqttPort
	}
	if *mqttUsername != "" {
		cfg.MQTT.Username = *mqttUsername
	}
	if *mqttPassword != "" {
		cfg.MQTT.Password = *mqttPassword
	}
	if *mqttClientID != "" {
		cfg.MQTT.ClientID = *mqttClientID
	}
	if *mqttTopic != "" {
		cfg.MQTT.Topic = *mqttTopic
	}
	if *mqttRate >= 0 {
		cfg.MQTT.Rate = *mqttRate
	}
	if *bufferSize != 0 {
		cfg.BufferSize = *bufferSize
	}
	if *preferLocal {
		cfg.PreferLocalTimestamp = true
	}
	if *timeMS {
		cfg.TimeMS = true
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *archivePath != "" {
		cfg.ArchivePath = *archivePath
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := source.Open(cfg, log)
	if err != nil {
		return err
	}
	defer src.Close()

	sink, err := publish.NewMQTTSink(publish.MQTTConfig{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		ClientID: cfg.MQTT.ClientID,
	}, log)
	if err != nil {
		return err
	}
	defer sink.Close()

	buf := buffer.New(cfg.BufferSize, log)
	emitter := event.NewEmitter()
	defer emitter.Close()

	coll := &collector.Collector{
		Source:  src,
		Framer:  p1.NewFramer(src, log),
		Decoder: p1.NewDecoder(cfg.VerifyChecksum(), log),
		Buf:     buf,
		Emitter: emitter,
		Log:     log,
	}

	policy := publish.DrainAll
	if cfg.MQTT.Drain == "latest" {
		policy = publish.DrainLatest
	}
	sched := &publish.Scheduler{
		Buf:    buf,
		Sink:   sink,
		Topic:  cfg.MQTT.Topic,
		Rate:   time.Duration(cfg.MQTT.Rate) * time.Second,
		Policy: policy,
		Opts: publish.PayloadOptions{
			PreferLocalTime: cfg.PreferLocalTimestamp,
			Milliseconds:    cfg.TimeMS,
		},
		Log: log,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coll.Run(gCtx)
	})

	g.Go(func() error {
		return sched.Run(gCtx)
	})

	if cfg.HTTPAddr != "" {
		server := web.NewServer(cfg.HTTPAddr, log)
		g.Go(func() error {
			return server.Run(gCtx, emitter)
		})
	}

	if cfg.ArchivePath != "" {
		archive, err := store.Open(cfg.ArchivePath, log)
		if err != nil {
			return err
		}
		defer archive.Close()
		g.Go(func() error {
			return archive.Run(gCtx, emitter)
		})
	}

	log.Info("gateway started")
	return g.Wait()
}
