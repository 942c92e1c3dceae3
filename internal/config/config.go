// Package config loads the gateway configuration: defaults, overlaid by an
// optional TOML file, overlaid by command-line flags.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// DSMR protocol generations we know how to talk to. The generation selects
// both the serial parameters and whether telegrams carry a checksum.
const (
	DSMR22 = "2.2"
	DSMR40 = "4.0"
)

type MQTT struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
	// Rate is the minimum number of seconds between publishes; 0 publishes
	// records as they arrive.
	Rate int `toml:"rate"`
	// Drain selects what a rate-limited tick sends: "all" queued records or
	// only the "latest".
	Drain string `toml:"drain"`
}

type Config struct {
	// Serial source.
	Device string `toml:"device"`
	DSMR   string `toml:"dsmr"`

	// TCP source, preferred over the serial device when both are set.
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// SourceDump names a file to copy all raw source bytes to, for
	// debugging.
	SourceDump string `toml:"source_dump"`

	MQTT MQTT `toml:"mqtt"`

	// BufferSize is how many records to hold while the broker is
	// unavailable. The buffer is not persistent across restarts.
	BufferSize int `toml:"buffer_size"`

	// PreferLocalTimestamp makes the collector clock authoritative in the
	// published data instead of the telegram timestamp.
	PreferLocalTimestamp bool `toml:"prefer_local_timestamp"`

	// TimeMS sends timestamps in milliseconds instead of seconds.
	TimeMS bool `toml:"time_ms"`

	// HTTPAddr enables the status/metrics server when non-empty.
	HTTPAddr string `toml:"http_addr"`

	// ArchivePath enables the sqlite measurement archive when non-empty.
	ArchivePath string `toml:"archive_path"`
}

func Default() *Config {
	return &Config{
		DSMR:       DSMR40,
		BufferSize: 100000,
		MQTT: MQTT{
			Port:     1883,
			ClientID: "p1-mqtt-gateway",
			Topic:    "p1-mqtt/tele/{channel}/{device_id}/SENSOR",
			Drain:    "all",
		},
	}
}

// Load reads a TOML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Device == "" && (c.Host == "" || c.Port == 0) {
		return fmt.Errorf("no serial device or host/port given as data source")
	}
	if c.MQTT.Host == "" {
		return fmt.Errorf("no MQTT host given")
	}
	if c.DSMR != DSMR22 && c.DSMR != DSMR40 {
		return fmt.Errorf("unknown DSMR version %q", c.DSMR)
	}
	if c.MQTT.Drain != "all" && c.MQTT.Drain != "latest" {
		return fmt.Errorf("mqtt drain must be \"all\" or \"latest\", not %q", c.MQTT.Drain)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("buffer_size must be positive")
	}
	return nil
}

// VerifyChecksum reports whether telegrams are expected to carry a CRC
// trailer. DSMR 2.2 never emits one.
func (c *Config) VerifyChecksum() bool {
	return c.DSMR != DSMR22
}
