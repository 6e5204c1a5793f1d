// Package service provides the cycle runner that orchestrates reading
// the drive fleet and persisting the results.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/utilitysc/vsd-monitor/internal/domain"
	"github.com/utilitysc/vsd-monitor/internal/metrics"
)

// Conn is the narrow field-bus contract the reader depends on.
type Conn interface {
	ReadHoldingRegisters(ctx context.Context, unitID uint8, start, count uint16) ([]uint16, error)
	ReadDiscreteInputs(ctx context.Context, unitID uint8, start, count uint16) ([]bool, error)
}

// UnitResult is everything one unit contributed to a cycle. A failed
// block shows up as invalid markers, never as a missing entry, so the
// result shape is identical for healthy and unreachable drives.
type UnitResult struct {
	Unit   domain.Unit
	Blocks map[string][]domain.Reading
	Status domain.Status
}

// UnitReader polls one drive: the status discrete inputs first, then
// every configured register block. It never returns an error; a drive
// that cannot be reached degrades to invalid markers and the cycle
// moves on to the next unit.
type UnitReader struct {
	conn    Conn
	layout  *domain.Layout
	logger  zerolog.Logger
	metrics *metrics.Registry
}

// NewUnitReader creates a reader over the shared field-bus session.
func NewUnitReader(conn Conn, layout *domain.Layout, logger zerolog.Logger, m *metrics.Registry) *UnitReader {
	return &UnitReader{
		conn:    conn,
		layout:  layout,
		logger:  logger.With().Str("component", "reader").Logger(),
		metrics: m,
	}
}

// Read polls every block of one unit.
func (r *UnitReader) Read(ctx context.Context, unit domain.Unit) UnitResult {
	result := UnitResult{
		Unit:   unit,
		Blocks: make(map[string][]domain.Reading, len(r.layout.Blocks)),
	}

	result.Status = r.readStatus(ctx, unit)

	for i := range r.layout.Blocks {
		b := &r.layout.Blocks[i]
		result.Blocks[b.Name] = r.readBlock(ctx, unit, b)
	}

	return result
}

func (r *UnitReader) readStatus(ctx context.Context, unit domain.Unit) domain.Status {
	started := time.Now()
	bits, err := r.conn.ReadDiscreteInputs(ctx, unit.ID, r.layout.Status.WireAddress(), domain.StatusBitCount)
	if r.metrics != nil {
		r.metrics.ReadLatency.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		r.logger.Warn().
			Err(err).
			Uint8("unit_id", unit.ID).
			Str("unit_name", unit.Name).
			Msg("Status block read failed")
		if r.metrics != nil {
			r.metrics.ReadErrors.WithLabelValues(unit.Name, "status").Inc()
		}
		return domain.InvalidStatus()
	}
	return domain.DecodeStatus(bits, r.layout.Status)
}

func (r *UnitReader) readBlock(ctx context.Context, unit domain.Unit, b *domain.RegisterBlock) []domain.Reading {
	started := time.Now()
	raw, err := r.conn.ReadHoldingRegisters(ctx, unit.ID, b.WireAddress(), b.Count)
	if r.metrics != nil {
		r.metrics.ReadLatency.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		r.logger.Warn().
			Err(err).
			Uint8("unit_id", unit.ID).
			Str("unit_name", unit.Name).
			Str("block", b.Name).
			Msg("Register block read failed")
		if r.metrics != nil {
			r.metrics.ReadErrors.WithLabelValues(unit.Name, "registers").Inc()
		}
		return make([]domain.Reading, b.Count)
	}
	return domain.DecodeReadings(raw, b.Registers)
}
