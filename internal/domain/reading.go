// Package domain contains the core entities of the VSD monitor.
package domain

// Reading is one decoded measurement. Valid is false when the raw
// value could not be obtained (read failure) or scaled outside the
// configured range; in either case Value is meaningless. A valid
// Reading always lies inside the register's [Min, Max] range.
type Reading struct {
	Value float64
	Valid bool
}

// Invalid is the invalid-marker Reading.
func Invalid() Reading {
	return Reading{}
}

// ValidReading wraps a measured value.
func ValidReading(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// Status label pairs. Each status axis carries exactly one of two
// fixed labels, matching what the drives report on their discrete
// inputs.
const (
	LabelRun    = "RUN"
	LabelStop   = "STOP"
	LabelFault  = "FAULT"
	LabelAlarm  = "ALARM"
	LabelNormal = "NORMAL"
)

// StatusValue is one categorical status label, or the invalid marker
// when the status block could not be read.
type StatusValue struct {
	Label string
	Valid bool
}

// Status is the decoded run/fault/alarm triple for one unit.
type Status struct {
	Run   StatusValue
	Fault StatusValue
	Alarm StatusValue
}

// InvalidStatus is the all-invalid triple produced when the status
// block read fails.
func InvalidStatus() Status {
	return Status{}
}

// Cycle is the completed result of one polling pass: a shared
// timestamp plus, for every metric and status axis, one value per unit
// in registry order. A failed unit contributes invalid markers, never
// a missing position. Cycles are immutable once produced.
type Cycle struct {
	// Date and Time are captured once when the cycle starts and are
	// shared by every row the cycle persists.
	Date string
	Time string

	// Units holds the unit names in registry order; each slice below
	// is positionally aligned with it.
	Units []string

	// Readings maps metric name to per-unit readings.
	Readings map[string][]Reading

	// Statuses maps status table name to per-unit labels.
	Statuses map[string][]StatusValue
}
