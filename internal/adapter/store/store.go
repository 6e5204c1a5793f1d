// Package store persists cycle results into fixed-schema, append-only
// time-series tables: one table per metric, one column per unit in
// registry order. Rows are only ever appended; the schema is the
// durable contract the dashboard reads.
package store

import (
	"context"

	"github.com/utilitysc/vsd-monitor/internal/domain"
)

// ColumnKind selects the SQL type of the per-unit columns in a table.
type ColumnKind string

const (
	// ColumnNumeric holds scaled measurements (REAL / double precision).
	ColumnNumeric ColumnKind = "numeric"
	// ColumnLabel holds categorical status labels (TEXT).
	ColumnLabel ColumnKind = "label"
)

// Value is one persisted cell. The zero value is the invalid marker
// and is written as SQL NULL, which keeps "sensor invalid this cycle"
// distinguishable from any real measurement, zero included.
type Value struct {
	Number *float64
	Label  *string
}

// NumberValue wraps a numeric measurement.
func NumberValue(v float64) Value {
	return Value{Number: &v}
}

// LabelValue wraps a status label.
func LabelValue(s string) Value {
	return Value{Label: &s}
}

// NullValue is the persisted invalid marker.
func NullValue() Value {
	return Value{}
}

// arg returns the driver argument for this cell.
func (v Value) arg() interface{} {
	switch {
	case v.Number != nil:
		return *v.Number
	case v.Label != nil:
		return *v.Label
	default:
		return nil
	}
}

// FromReading converts a decoded Reading to its persisted form.
func FromReading(r domain.Reading) Value {
	if !r.Valid {
		return NullValue()
	}
	return NumberValue(r.Value)
}

// FromStatus converts a decoded status label to its persisted form.
func FromStatus(s domain.StatusValue) Value {
	if !s.Valid {
		return NullValue()
	}
	return LabelValue(s.Label)
}

// Row is one historical row as read back for the dashboard
// collaborator: the shared cycle timestamp plus one cell per unit in
// registry order.
type Row struct {
	ID     int64
	Date   string
	Time   string
	Values []Value
}

// Store is the narrow persistence contract the cycle runner depends
// on. Implementations are append-only; nothing here updates or deletes.
type Store interface {
	// CreateSchema creates the table if absent. Idempotent: invoking
	// it again with the same shape has no effect and no error.
	CreateSchema(ctx context.Context, table string, unitNames []string, kind ColumnKind) error

	// AppendRow writes exactly one new row. len(values) must equal the
	// unit count the schema was created with.
	AppendRow(ctx context.Context, table, date, timeOfDay string, values []Value) error

	// RecentRows returns up to limit most recent rows of a table,
	// newest first. This is the read path the dashboard uses.
	RecentRows(ctx context.Context, table string, limit int) ([]Row, error)

	// HealthCheck pings the underlying database.
	HealthCheck(ctx context.Context) error

	Close() error
}
