// Package domain contains the core entities of the VSD monitor.
package domain

// DecodeReadings converts one block of raw holding-register values
// into calibrated Readings. Decoding is total: every raw value yields
// exactly one Reading, either the scaled value (when it falls inside
// the inclusive [Min, Max] range) or the invalid marker. Out-of-range
// values are never clamped and never an error.
//
// The block is validated at startup, so raw and defs have matching
// lengths on every real call; a defensive mismatch degrades the whole
// block to invalid markers rather than panicking.
func DecodeReadings(raw []uint16, defs []RegisterDef) []Reading {
	out := make([]Reading, len(defs))
	if len(raw) != len(defs) {
		return out
	}
	for i, r := range raw {
		scaled := float64(r) / defs[i].Divisor
		if scaled < defs[i].Min || scaled > defs[i].Max {
			continue
		}
		out[i] = ValidReading(scaled)
	}
	return out
}

// DecodeStatus classifies a discrete-input bit vector into the
// run/fault/alarm triple using the configured bit offsets.
// An absent or short vector yields the all-invalid triple.
func DecodeStatus(bits []bool, spec StatusSpec) Status {
	if len(bits) < StatusBitCount {
		return InvalidStatus()
	}
	return Status{
		Run:   statusLabel(bits[spec.RunBit], LabelRun, LabelStop),
		Fault: statusLabel(bits[spec.FaultBit], LabelFault, LabelNormal),
		Alarm: statusLabel(bits[spec.AlarmBit], LabelAlarm, LabelNormal),
	}
}

func statusLabel(set bool, onLabel, offLabel string) StatusValue {
	if set {
		return StatusValue{Label: onLabel, Valid: true}
	}
	return StatusValue{Label: offLabel, Valid: true}
}
