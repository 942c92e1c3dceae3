package publish

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/p1mqtt/p1mqtt/internal/p1"
)

// Telemetry fields are prefixed "p1_", gateway metadata "p1mqtt_", so
// consumers can tell measured values from bookkeeping.
const (
	fieldPrefix = "p1_"
	metaPrefix  = "p1mqtt_"
)

// PayloadOptions control timestamp selection and resolution in the
// published JSON.
type PayloadOptions struct {
	// PreferLocalTime makes the collector clock authoritative for
	// "p1mqtt_timestamp" instead of the telegram-embedded timestamp.
	PreferLocalTime bool
	// Milliseconds switches the p1mqtt_* timestamps from seconds to
	// milliseconds.
	Milliseconds bool
}

// Payload renders one record as the JSON object sent to the sink.
func Payload(rec *p1.Record, opts PayloadOptions) ([]byte, error) {
	out := make(map[string]any, len(rec.Fields)+5)
	for name, value := range rec.Fields {
		out[fieldPrefix+name] = value
	}

	out[metaPrefix+"channel"] = rec.Channel
	if rec.DeviceID != "" {
		out[metaPrefix+"device_id"] = rec.DeviceID
	}

	collector := stamp(rec.CollectorTime, opts.Milliseconds)
	out[metaPrefix+"collector_timestamp"] = collector

	authoritative := collector
	if !rec.TelegramTime.IsZero() {
		telegram := stamp(rec.TelegramTime, opts.Milliseconds)
		out[metaPrefix+"telegram_timestamp"] = telegram
		if !opts.PreferLocalTime {
			authoritative = telegram
		}
	}
	out[metaPrefix+"timestamp"] = authoritative

	return json.Marshal(out)
}

func stamp(t time.Time, ms bool) int64 {
	if ms {
		return t.UnixMilli()
	}
	return t.Unix()
}

// Topic substitutes the {channel} and {device_id} placeholders of the
// configured topic template.
func Topic(template string, rec *p1.Record) string {
	s := strings.ReplaceAll(template, "{channel}", strconv.Itoa(rec.Channel))
	return strings.ReplaceAll(s, "{device_id}", rec.DeviceID)
}
