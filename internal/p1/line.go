package p1

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var errMissingGroup = errors.New("missing value group")

// Line is one decoded data line of a telegram: its OBIS reference, the bus
// channel encoded in the reference, and the raw parenthesized value groups.
type Line struct {
	Ref     string
	Channel int
	Groups  []string
}

var (
	refPattern   = regexp.MustCompile(`^\d+-(\d+):\d+(?:\.\d+)+$`)
	groupPattern = regexp.MustCompile(`\((.*?)\)`)
)

// DecodeLine splits a telegram line into its reference and value groups. It
// makes no assumption about the number of groups: single-value lines,
// failure-log lines with paired groups and M-Bus readings all pass through.
func DecodeLine(line string) (Line, error) {
	open := strings.IndexByte(line, '(')
	if open < 0 {
		return Line{}, fmt.Errorf("no value group in line %q", line)
	}

	ref := line[:open]
	m := refPattern.FindStringSubmatch(ref)
	if m == nil {
		return Line{}, fmt.Errorf("malformed reference %q", ref)
	}
	channel, err := strconv.Atoi(m[1])
	if err != nil {
		return Line{}, fmt.Errorf("bad channel in reference %q: %w", ref, err)
	}

	matches := groupPattern.FindAllStringSubmatch(line[open:], -1)
	groups := make([]string, 0, len(matches))
	for _, g := range matches {
		groups = append(groups, g[1])
	}

	return Line{Ref: ref, Channel: channel, Groups: groups}, nil
}

// rawGroups returns the value-group portion of a line verbatim, used for
// unknown references where no coercion applies.
func rawGroups(line string) string {
	if open := strings.IndexByte(line, '('); open >= 0 {
		return line[open:]
	}
	return ""
}

// parseUnitFloat decodes a "<mantissa>*<unit>" group into its numeric value
// and unit string, e.g. "000051.775*kWh".
func parseUnitFloat(group string) (float64, string, error) {
	mantissa, unit, found := strings.Cut(group, "*")
	if !found {
		return 0, "", fmt.Errorf("no unit separator in %q", group)
	}
	v, err := strconv.ParseFloat(mantissa, 64)
	if err != nil {
		return 0, "", fmt.Errorf("bad mantissa in %q: %w", group, err)
	}
	return v, unit, nil
}
