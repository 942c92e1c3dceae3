package p1

import (
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Record is one normalized measurement set for one physical device on the
// meter bus. Channel 0 is the primary electricity meter; further devices are
// numbered in the order they first appear within the telegram. Records are
// immutable once assembled.
type Record struct {
	Channel       int
	DeviceID      string
	TelegramTime  time.Time // zero when the telegram carries none for this device
	CollectorTime time.Time
	Fields        map[string]any
}

// Decoder turns raw telegram blocks into Records. It is pure with respect to
// its inputs and can be used standalone, e.g. to replay a captured telegram
// file.
type Decoder struct {
	verifyChecksum bool
	log            *slog.Logger
}

// NewDecoder returns a decoder. verifyChecksum should be off only for
// DSMR 2.2 meters, whose telegrams carry no checksum trailer.
func NewDecoder(verifyChecksum bool, log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	return &Decoder{verifyChecksum: verifyChecksum, log: log}
}

// deviceGroup accumulates everything addressed to one bus device while the
// telegram's lines are walked in order.
type deviceGroup struct {
	bus        int
	fields     map[string]any
	deviceIDs  []string
	timestamps []time.Time
}

// Decode validates a raw block and assembles one Record per device group
// that yields at least one decodable field. at is the collector-clock time
// the block was completed.
func (d *Decoder) Decode(data []byte, at time.Time) ([]*Record, error) {
	if err := Validate(data, d.verifyChecksum); err != nil {
		return nil, err
	}

	groups := make(map[int]*deviceGroup)
	var order []*deviceGroup

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		if line == "" || line[0] == '/' || line[0] == '!' {
			continue
		}

		ln, err := DecodeLine(line)
		if err != nil {
			d.log.Info("skipping undecodable line", slog.String("line", line), slog.Any("error", err))
			continue
		}

		g := groups[ln.Channel]
		if g == nil {
			g = &deviceGroup{bus: ln.Channel, fields: make(map[string]any)}
			groups[ln.Channel] = g
			order = append(order, g)
		}
		d.apply(g, ln, line)
	}

	var recs []*Record
	next := 1
	for _, g := range order {
		if len(g.fields) == 0 {
			// Metadata-only groups (e.g. the version slot) yield no record
			// and consume no channel number.
			continue
		}
		ch := 0
		if g.bus != 0 {
			ch = next
			next++
		}
		rec := &Record{
			Channel:       ch,
			CollectorTime: at,
			Fields:        g.fields,
		}
		// Identity and timestamp are only trusted when exactly one line
		// claims them; conflicting candidates leave them unset.
		if len(g.deviceIDs) == 1 {
			rec.DeviceID = g.deviceIDs[0]
		}
		if len(g.timestamps) == 1 {
			rec.TelegramTime = g.timestamps[0]
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (d *Decoder) apply(g *deviceGroup, ln Line, raw string) {
	spec, known := LookupField(ln.Ref)
	if !known {
		// Unknown references survive under a generic name so newer meter
		// firmware does not silently lose data.
		g.fields[fallbackName(ln.Ref)] = rawGroups(raw)
		return
	}

	drop := func(err error) {
		d.log.Info("dropping undecodable field",
			slog.String("field", spec.Name),
			slog.String("reference", ln.Ref),
			slog.Any("error", err))
	}

	if spec.coerce != coerceNone && len(ln.Groups) == 0 {
		drop(errMissingGroup)
		return
	}

	switch spec.coerce {
	case coerceNone:

	case coerceInt:
		v, err := strconv.ParseInt(ln.Groups[0], 10, 64)
		if err != nil {
			drop(err)
			return
		}
		g.fields[spec.Name] = v

	case coerceUnitFloat:
		v, _, err := parseUnitFloat(ln.Groups[0])
		if err != nil {
			drop(err)
			return
		}
		g.fields[spec.Name] = v

	case coerceTimestamp:
		t, err := ParseTimestamp(ln.Groups[0])
		if err != nil {
			drop(err)
			return
		}
		g.fields[spec.Name] = t.Unix()
		g.timestamps = append(g.timestamps, t)

	case coerceDeviceID:
		id, err := hex.DecodeString(ln.Groups[0])
		if err != nil {
			// Not hex-encoded after all; keep the raw identifier.
			g.deviceIDs = append(g.deviceIDs, ln.Groups[0])
			return
		}
		g.deviceIDs = append(g.deviceIDs, string(id))

	case coerceMBusReading:
		if len(ln.Groups) < 2 {
			drop(errMissingGroup)
			return
		}
		if t, err := ParseTimestamp(ln.Groups[0]); err != nil {
			drop(err)
		} else {
			g.fields[spec.Name+"_timestamp"] = t.Unix()
			g.timestamps = append(g.timestamps, t)
		}
		if v, _, err := parseUnitFloat(ln.Groups[1]); err != nil {
			drop(err)
		} else {
			g.fields[spec.Name+"_volume"] = v
		}

	case coerceFailureLog:
		// The log is (count)(obis-code)(end-timestamp)(duration)... pairs.
		// Nothing downstream consumes it; decode just enough to diagnose
		// corrupted telegrams.
		if _, err := strconv.ParseInt(ln.Groups[0], 10, 64); err != nil {
			drop(err)
			return
		}
		for i := 2; i+1 < len(ln.Groups); i += 2 {
			if _, err := ParseTimestamp(ln.Groups[i]); err != nil {
				drop(err)
				return
			}
			if _, _, err := parseUnitFloat(ln.Groups[i+1]); err != nil {
				drop(err)
				return
			}
		}
	}
}
