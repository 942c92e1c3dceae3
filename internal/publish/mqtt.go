package publish

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 30 * time.Second

// MQTTConfig carries what is needed to reach the broker.
type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// MQTTSink publishes records to an MQTT broker. Reconnection is left to the
// paho client; while the broker is unreachable, publishes fail and records
// are consumed per the no-retry policy.
type MQTTSink struct {
	client mqtt.Client
}

func NewMQTTSink(cfg MQTTConfig, log *slog.Logger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to MQTT", slog.String("host", cfg.Host), slog.Int("port", cfg.Port))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Info("disconnected from MQTT", slog.Any("error", err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, fmt.Errorf("timeout connecting to MQTT at %s:%d", cfg.Host, cfg.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("could not connect to MQTT at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &MQTTSink{client: client}, nil
}

func (s *MQTTSink) Publish(topic string, payload []byte) error {
	token := s.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	return token.Error()
}

func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
