package p1

import (
	"fmt"
	"time"
)

// The DSMR companion standard marks timestamps with a DST letter instead of
// a zone: S is Dutch summer time (UTC+2), W is winter time (UTC+1).
var (
	zoneSummer = time.FixedZone("CEST", 2*60*60)
	zoneWinter = time.FixedZone("CET", 1*60*60)
)

const tstLayout = "060102150405"

// ParseTimestamp decodes a compact P1 timestamp like "171105201324W" into an
// absolute instant, resolving the DST flag to the proper UTC offset.
func ParseTimestamp(group string) (time.Time, error) {
	if len(group) != len(tstLayout)+1 {
		return time.Time{}, fmt.Errorf("%q is not a valid P1 timestamp", group)
	}

	var zone *time.Location
	switch group[len(group)-1] {
	case 'S':
		zone = zoneSummer
	case 'W':
		zone = zoneWinter
	default:
		return time.Time{}, fmt.Errorf("%q has no DST flag", group)
	}

	t, err := time.ParseInLocation(tstLayout, group[:len(group)-1], zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", group, err)
	}
	return t, nil
}
