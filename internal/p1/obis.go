package p1

import "strings"

// Category describes the kind of quantity an OBIS reference carries.
type Category int

const (
	CategoryRaw Category = iota
	CategoryEnergy
	CategoryPower
	CategoryVoltage
	CategoryCurrent
	CategoryVolume
	CategoryCount
	CategoryTimestamp
	CategoryIdentifier
)

// coercion selects how the value groups of a line are decoded.
type coercion int

const (
	// coerceNone: the line is metadata (version, tariff, text message).
	// It is decoded for validity but contributes no record field.
	coerceNone coercion = iota
	// coerceInt: single integer group.
	coerceInt
	// coerceUnitFloat: single "<mantissa>*<unit>" group.
	coerceUnitFloat
	// coerceTimestamp: single compact TST group, telegram-timestamp candidate.
	coerceTimestamp
	// coerceDeviceID: single hex octet-string group naming the device.
	coerceDeviceID
	// coerceMBusReading: TST group followed by a unit-float group, as
	// reported by M-Bus slaves (gas meters). Timestamp candidate.
	coerceMBusReading
	// coerceFailureLog: count group, an OBIS group, then (timestamp,
	// duration) pairs. Decoded tolerantly, contributes no fields.
	coerceFailureLog
)

// FieldSpec is one entry of the OBIS field table.
type FieldSpec struct {
	Name     string
	Category Category
	coerce   coercion
}

// fieldTable maps channel-normalized OBIS references (see obisKey) to their
// semantics. Codes not present here are still decoded, under a generic name
// derived from the reference, so newer meter firmware does not lose data.
var fieldTable = map[string]FieldSpec{
	"1:0.2.8":   {Name: "version", Category: CategoryIdentifier, coerce: coerceNone},
	"0:1.0.0":   {Name: "timestamp", Category: CategoryTimestamp, coerce: coerceTimestamp},
	"0:96.1.1":  {Name: "equipment_identifier", Category: CategoryIdentifier, coerce: coerceDeviceID},
	"0:96.1.0":  {Name: "equipment_identifier", Category: CategoryIdentifier, coerce: coerceDeviceID},
	"0:96.14.0": {Name: "tariff", Category: CategoryIdentifier, coerce: coerceNone},
	"0:96.13.0": {Name: "message_text", Category: CategoryRaw, coerce: coerceNone},
	"0:96.13.1": {Name: "message_numeric", Category: CategoryRaw, coerce: coerceNone},

	"1:1.8.1": {Name: "energy_consumed_tariff1", Category: CategoryEnergy, coerce: coerceUnitFloat},
	"1:1.8.2": {Name: "energy_consumed_tariff2", Category: CategoryEnergy, coerce: coerceUnitFloat},
	"1:2.8.1": {Name: "energy_produced_tariff1", Category: CategoryEnergy, coerce: coerceUnitFloat},
	"1:2.8.2": {Name: "energy_produced_tariff2", Category: CategoryEnergy, coerce: coerceUnitFloat},

	"1:1.7.0":  {Name: "actual_power_consuming", Category: CategoryPower, coerce: coerceUnitFloat},
	"1:2.7.0":  {Name: "actual_power_producing", Category: CategoryPower, coerce: coerceUnitFloat},
	"1:21.7.0": {Name: "actual_power_consuming_l1", Category: CategoryPower, coerce: coerceUnitFloat},
	"1:41.7.0": {Name: "actual_power_consuming_l2", Category: CategoryPower, coerce: coerceUnitFloat},
	"1:61.7.0": {Name: "actual_power_consuming_l3", Category: CategoryPower, coerce: coerceUnitFloat},
	"1:22.7.0": {Name: "actual_power_producing_l1", Category: CategoryPower, coerce: coerceUnitFloat},
	"1:42.7.0": {Name: "actual_power_producing_l2", Category: CategoryPower, coerce: coerceUnitFloat},
	"1:62.7.0": {Name: "actual_power_producing_l3", Category: CategoryPower, coerce: coerceUnitFloat},

	"1:31.7.0": {Name: "current_l1", Category: CategoryCurrent, coerce: coerceUnitFloat},
	"1:51.7.0": {Name: "current_l2", Category: CategoryCurrent, coerce: coerceUnitFloat},
	"1:71.7.0": {Name: "current_l3", Category: CategoryCurrent, coerce: coerceUnitFloat},
	"1:32.7.0": {Name: "voltage_l1", Category: CategoryVoltage, coerce: coerceUnitFloat},
	"1:52.7.0": {Name: "voltage_l2", Category: CategoryVoltage, coerce: coerceUnitFloat},
	"1:72.7.0": {Name: "voltage_l3", Category: CategoryVoltage, coerce: coerceUnitFloat},

	"0:96.7.21": {Name: "power_failure_count", Category: CategoryCount, coerce: coerceInt},
	"0:96.7.9":  {Name: "long_power_failure_count", Category: CategoryCount, coerce: coerceInt},
	"1:99.97.0": {Name: "long_failure_log", Category: CategoryRaw, coerce: coerceFailureLog},

	"1:32.32.0": {Name: "voltage_sag_l1_count", Category: CategoryCount, coerce: coerceInt},
	"1:52.32.0": {Name: "voltage_sag_l2_count", Category: CategoryCount, coerce: coerceInt},
	"1:72.32.0": {Name: "voltage_sag_l3_count", Category: CategoryCount, coerce: coerceInt},
	"1:32.36.0": {Name: "voltage_swell_l1_count", Category: CategoryCount, coerce: coerceInt},
	"1:52.36.0": {Name: "voltage_swell_l2_count", Category: CategoryCount, coerce: coerceInt},
	"1:72.36.0": {Name: "voltage_swell_l3_count", Category: CategoryCount, coerce: coerceInt},

	"0:24.1.0": {Name: "device_type", Category: CategoryCount, coerce: coerceInt},
	"0:24.2.1": {Name: "gas_consumed", Category: CategoryVolume, coerce: coerceMBusReading},
}

// obisKey normalizes a reference like "0-1:24.2.1" to "0:24.2.1": the
// device-group index identifies a bus channel, not a quantity, so the table
// is keyed on medium and code only.
func obisKey(ref string) string {
	dash := strings.IndexByte(ref, '-')
	colon := strings.IndexByte(ref, ':')
	if dash < 0 || colon < dash {
		return ref
	}
	return ref[:dash] + ref[colon:]
}

// LookupField returns the table entry for an OBIS reference.
func LookupField(ref string) (FieldSpec, bool) {
	spec, ok := fieldTable[obisKey(ref)]
	return spec, ok
}

var fallbackReplacer = strings.NewReplacer("-", "_", ":", "_", ".", "_")

// fallbackName derives a generic field name for references missing from the
// table, e.g. "1-0:3.8.0" -> "obis_1_0_3_8_0".
func fallbackName(ref string) string {
	return "obis_" + fallbackReplacer.Replace(ref)
}
