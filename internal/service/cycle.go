package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/utilitysc/vsd-monitor/internal/adapter/store"
	"github.com/utilitysc/vsd-monitor/internal/domain"
	"github.com/utilitysc/vsd-monitor/internal/metrics"
)

// Timestamp formats shared by every row a cycle persists. The date and
// wall-clock minute are captured once per cycle, so all tables carry
// the same timestamp for the same pass.
const (
	dateFormat = "2006-01-02"
	timeFormat = "15:04"
)

// Fieldbus is the connection contract the runner depends on: the read
// operations plus session lifecycle.
type Fieldbus interface {
	Conn
	EnsureConnected(ctx context.Context) error
}

// RunnerConfig holds cycle runner configuration.
type RunnerConfig struct {
	// Interval is the pause between the end of one cycle and the start
	// of the next. Cycle duration is not compensated; the effective
	// period is interval plus however long the fleet took to poll.
	Interval time.Duration

	// ShutdownTimeout bounds the wait for an in-flight cycle on Stop.
	ShutdownTimeout time.Duration
}

// RunnerStats tracks cycle counters.
type RunnerStats struct {
	Cycles        atomic.Uint64
	RowsPersisted atomic.Uint64
	PersistErrors atomic.Uint64
}

// Runner drives the monitoring loop: poll every unit in registry
// order, persist one row per metric table, sleep, repeat. A single
// runner owns the field-bus session; cycles never overlap.
type Runner struct {
	config   RunnerConfig
	fieldbus Fieldbus
	reader   *UnitReader
	store    store.Store
	registry *domain.Registry
	layout   *domain.Layout
	logger   zerolog.Logger
	metrics  *metrics.Registry

	started atomic.Bool
	up      bool
	everUp  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stats   *RunnerStats

	mu        sync.RWMutex
	lastCycle *domain.Cycle
}

// NewRunner creates a cycle runner.
func NewRunner(
	config RunnerConfig,
	fieldbus Fieldbus,
	st store.Store,
	registry *domain.Registry,
	layout *domain.Layout,
	logger zerolog.Logger,
	m *metrics.Registry,
) *Runner {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	return &Runner{
		config:   config,
		fieldbus: fieldbus,
		reader:   NewUnitReader(fieldbus, layout, logger, m),
		store:    st,
		registry: registry,
		layout:   layout,
		logger:   logger.With().Str("component", "runner").Logger(),
		metrics:  m,
		stats:    &RunnerStats{},
	}
}

// Start launches the monitoring loop in the background.
func (r *Runner) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("runner already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.loop(runCtx)

	r.logger.Info().
		Dur("interval", r.config.Interval).
		Int("units", r.registry.Len()).
		Msg("Cycle runner started")
	return nil
}

// Stop halts the loop, waiting up to ShutdownTimeout for an in-flight
// cycle to finish. Shutdown lands on a cycle boundary; a half-written
// cycle is never produced by Stop, only by process death.
func (r *Runner) Stop(ctx context.Context) error {
	if !r.started.CompareAndSwap(true, false) {
		return nil
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info().Msg("Cycle runner stopped")
		return nil
	case <-time.After(r.config.ShutdownTimeout):
		return fmt.Errorf("runner shutdown timed out after %s", r.config.ShutdownTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		if _, err := r.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error().Err(err).Msg("Cycle failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.config.Interval):
		}
	}
}

// RunCycle performs exactly one polling pass over the whole fleet and
// persists its rows. Connection trouble degrades the cycle to invalid
// markers; only persistence trouble or cancellation is an error.
func (r *Runner) RunCycle(ctx context.Context) (*domain.Cycle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	cycle := r.newCycle(started)

	r.ensureConnected(ctx)

	for _, unit := range r.registry.Units() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.accumulate(cycle, r.reader.Read(ctx, unit))
	}

	if err := r.persist(ctx, cycle); err != nil {
		return nil, err
	}

	r.stats.Cycles.Add(1)
	if r.metrics != nil {
		r.metrics.CyclesTotal.Inc()
		r.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}

	r.mu.Lock()
	r.lastCycle = cycle
	r.mu.Unlock()

	r.logger.Debug().
		Str("date", cycle.Date).
		Str("time", cycle.Time).
		Dur("took", time.Since(started)).
		Msg("Cycle complete")
	return cycle, nil
}

// LastCycle returns the most recently completed cycle, or nil.
func (r *Runner) LastCycle() *domain.Cycle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCycle
}

// Stats returns the cycle counters.
func (r *Runner) Stats() *RunnerStats {
	return r.stats
}

func (r *Runner) newCycle(now time.Time) *domain.Cycle {
	cycle := &domain.Cycle{
		Date:     now.Format(dateFormat),
		Time:     now.Format(timeFormat),
		Units:    r.registry.Names(),
		Readings: make(map[string][]domain.Reading, len(r.layout.Metrics)),
		Statuses: make(map[string][]domain.StatusValue, 3),
	}
	for _, m := range r.layout.Metrics {
		cycle.Readings[m.Name] = make([]domain.Reading, 0, r.registry.Len())
	}
	for _, table := range r.statusTables() {
		cycle.Statuses[table] = make([]domain.StatusValue, 0, r.registry.Len())
	}
	return cycle
}

// ensureConnected brings the session up before the pass. A failure is
// logged and the cycle proceeds; every read will fail fast and the
// cycle records invalid markers, keeping the row cadence intact
// through an outage.
func (r *Runner) ensureConnected(ctx context.Context) {
	err := r.fieldbus.EnsureConnected(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Field bus unavailable, cycle will record invalid markers")
	}

	wasUp := r.up
	r.up = err == nil
	if r.metrics != nil {
		if r.up {
			r.metrics.ConnectionUp.Set(1)
			// The first successful connect is not a reconnect.
			if !wasUp && r.everUp {
				r.metrics.ReconnectsTotal.Inc()
			}
		} else {
			r.metrics.ConnectionUp.Set(0)
		}
	}
	if r.up {
		r.everUp = true
	}
}

// accumulate appends one unit's result to the cycle, in registry
// order.
func (r *Runner) accumulate(cycle *domain.Cycle, result UnitResult) {
	for _, m := range r.layout.Metrics {
		reading := domain.Invalid()
		if block, ok := result.Blocks[m.Block]; ok && m.Offset < len(block) {
			reading = block[m.Offset]
		}
		cycle.Readings[m.Name] = append(cycle.Readings[m.Name], reading)
	}

	cycle.Statuses[r.layout.Status.RunTable] = append(cycle.Statuses[r.layout.Status.RunTable], result.Status.Run)
	cycle.Statuses[r.layout.Status.FaultTable] = append(cycle.Statuses[r.layout.Status.FaultTable], result.Status.Fault)
	cycle.Statuses[r.layout.Status.AlarmTable] = append(cycle.Statuses[r.layout.Status.AlarmTable], result.Status.Alarm)
}

// persist appends one row per table. Tables are independent: a failed
// append is logged and counted, then the remaining tables still get
// their rows. Only total cancellation aborts the pass.
func (r *Runner) persist(ctx context.Context, cycle *domain.Cycle) error {
	for _, m := range r.layout.Metrics {
		readings := cycle.Readings[m.Name]
		values := make([]store.Value, len(readings))
		invalid := 0
		for i, reading := range readings {
			values[i] = store.FromReading(reading)
			if !reading.Valid {
				invalid++
			}
		}
		if invalid > 0 && r.metrics != nil {
			r.metrics.ReadingsInvalid.WithLabelValues(m.Name).Add(float64(invalid))
		}
		r.appendRow(ctx, m.Table, cycle, values)
	}

	for _, table := range r.statusTables() {
		statuses := cycle.Statuses[table]
		values := make([]store.Value, len(statuses))
		for i, s := range statuses {
			values[i] = store.FromStatus(s)
		}
		r.appendRow(ctx, table, cycle, values)
	}

	return ctx.Err()
}

func (r *Runner) appendRow(ctx context.Context, table string, cycle *domain.Cycle, values []store.Value) {
	if err := r.store.AppendRow(ctx, table, cycle.Date, cycle.Time, values); err != nil {
		r.stats.PersistErrors.Add(1)
		if r.metrics != nil {
			r.metrics.PersistErrors.WithLabelValues(table).Inc()
		}
		r.logger.Error().Err(err).Str("table", table).Msg("Row append failed")
		return
	}
	r.stats.RowsPersisted.Add(1)
	if r.metrics != nil {
		r.metrics.RowsPersisted.WithLabelValues(table).Inc()
	}
}

func (r *Runner) statusTables() []string {
	return []string{r.layout.Status.RunTable, r.layout.Status.FaultTable, r.layout.Status.AlarmTable}
}
