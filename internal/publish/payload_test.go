package publish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p1mqtt/p1mqtt/internal/p1"
)

func decodePayload(t *testing.T, rec *p1.Record, opts PayloadOptions) map[string]any {
	t.Helper()
	raw, err := Payload(rec, opts)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestPayloadPrefixes(t *testing.T) {
	rec := &p1.Record{
		Channel:       1,
		DeviceID:      "G0058530001163217",
		TelegramTime:  time.Unix(1509909000, 0),
		CollectorTime: time.Unix(1509909010, 0),
		Fields: map[string]any{
			"gas_consumed_volume": 16.713,
			"device_type":         int64(3),
		},
	}

	out := decodePayload(t, rec, PayloadOptions{})
	assert.Equal(t, map[string]any{
		"p1_gas_consumed_volume":     16.713,
		"p1_device_type":             float64(3),
		"p1mqtt_channel":             float64(1),
		"p1mqtt_device_id":           "G0058530001163217",
		"p1mqtt_telegram_timestamp":  float64(1509909000),
		"p1mqtt_collector_timestamp": float64(1509909010),
		"p1mqtt_timestamp":           float64(1509909000),
	}, out)
}

func TestPayloadTimestampSelection(t *testing.T) {
	rec := &p1.Record{
		TelegramTime:  time.Unix(100, 0),
		CollectorTime: time.Unix(200, 0),
		Fields:        map[string]any{"voltage_l1": 229.0},
	}

	// The telegram's own clock is authoritative by default.
	out := decodePayload(t, rec, PayloadOptions{})
	assert.Equal(t, float64(100), out["p1mqtt_timestamp"])

	out = decodePayload(t, rec, PayloadOptions{PreferLocalTime: true})
	assert.Equal(t, float64(200), out["p1mqtt_timestamp"])
}

func TestPayloadNoTelegramTimestamp(t *testing.T) {
	rec := &p1.Record{
		CollectorTime: time.Unix(200, 0),
		Fields:        map[string]any{"voltage_l1": 229.0},
	}

	out := decodePayload(t, rec, PayloadOptions{})
	assert.Equal(t, float64(200), out["p1mqtt_timestamp"], "collector clock fills in")
	assert.NotContains(t, out, "p1mqtt_telegram_timestamp")
	assert.NotContains(t, out, "p1mqtt_device_id")
}

func TestPayloadMilliseconds(t *testing.T) {
	rec := &p1.Record{
		TelegramTime:  time.Unix(100, 0),
		CollectorTime: time.Unix(200, 500e6),
		Fields:        map[string]any{},
	}

	out := decodePayload(t, rec, PayloadOptions{Milliseconds: true})
	assert.Equal(t, float64(100000), out["p1mqtt_timestamp"])
	assert.Equal(t, float64(200500), out["p1mqtt_collector_timestamp"])
}

func TestTopicSubstitution(t *testing.T) {
	rec := &p1.Record{Channel: 2, DeviceID: "E0047"}

	assert.Equal(t, "p1-mqtt/tele/2/E0047/SENSOR",
		Topic("p1-mqtt/tele/{channel}/{device_id}/SENSOR", rec))
	assert.Equal(t, "plain/topic", Topic("plain/topic", rec))
	assert.Equal(t, "meters/E0047/E0047", Topic("meters/{device_id}/{device_id}", rec))
}
