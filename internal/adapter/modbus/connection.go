// Package modbus owns the single field-bus session shared by the whole
// fleet. All units are reached through one Modbus TCP endpoint, so the
// connection serializes every request and exposes its lifecycle as an
// explicit state machine.
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/utilitysc/vsd-monitor/internal/domain"
)

// State is the connection lifecycle state.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
)

// Config holds configuration for the field-bus connection.
type Config struct {
	// Address is the host:port of the shared Modbus TCP endpoint.
	Address string

	// Timeout bounds each read round-trip. A single stalled unit must
	// never consume more than this out of a cycle.
	Timeout time.Duration

	// IdleTimeout is how long the underlying handler keeps an idle
	// session open.
	IdleTimeout time.Duration

	// Redial circuit breaker settings.
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32
}

// ConnectionStats tracks connection counters.
type ConnectionStats struct {
	ReadCount  atomic.Uint64
	ErrorCount atomic.Uint64
	Reconnects atomic.Uint64
}

// Connection is the one live session to the field-bus endpoint for the
// process lifetime. It never retries a failed read; retry policy, such
// as it is, belongs to the caller. Concurrent calls are serialized
// because the underlying client handles one outstanding request at a
// time.
type Connection struct {
	config  Config
	logger  zerolog.Logger
	breaker *gobreaker.CircuitBreaker
	stats   *ConnectionStats

	opMu sync.Mutex // serializes requests and slave-ID switching

	mu            sync.RWMutex
	state         State
	everConnected bool
	handler       *modbus.TCPClientHandler
	client        modbus.Client
}

// NewConnection creates an unconnected Connection.
func NewConnection(config Config, logger zerolog.Logger) (*Connection, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("fieldbus address is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 1 * time.Minute
	}
	if config.CBInterval <= 0 {
		config.CBInterval = 30 * time.Second
	}
	if config.CBTimeout <= 0 {
		config.CBTimeout = 30 * time.Second
	}
	if config.CBFailureThreshold == 0 {
		config.CBFailureThreshold = 3
	}

	c := &Connection{
		config: config,
		logger: logger.With().Str("component", "fieldbus").Str("address", config.Address).Logger(),
		state:  StateDisconnected,
		stats:  &ConnectionStats{},
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fieldbus-dial",
		MaxRequests: 1,
		Interval:    config.CBInterval,
		Timeout:     config.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.CBFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Dial circuit breaker state changed")
		},
	})

	return c, nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Stats returns the connection counters.
func (c *Connection) Stats() *ConnectionStats {
	return c.stats
}

// EnsureConnected brings the session up if it is down. Redials are
// guarded by a circuit breaker so a dead endpoint is probed, not
// hammered, once per breaker timeout.
func (c *Connection) EnsureConnected(ctx context.Context) error {
	if c.State() == StateConnected {
		return nil
	}

	c.setState(StateReconnecting)
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.dial(ctx)
	})
	if err != nil {
		c.setState(StateDisconnected)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", domain.ErrReconnectPending, err)
		}
		return err
	}

	c.mu.Lock()
	if c.everConnected {
		c.stats.Reconnects.Add(1)
	}
	c.everConnected = true
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info().Msg("Connected to field-bus endpoint")
	return nil
}

// dial establishes the TCP session, honoring ctx for the connect wait.
// A stale handler from a failed session is closed first so redials
// never leak the previous socket.
func (c *Connection) dial(ctx context.Context) error {
	c.mu.Lock()
	if c.handler != nil {
		if err := c.handler.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Error closing stale field-bus session")
		}
		c.handler = nil
		c.client = nil
	}
	c.mu.Unlock()

	handler := modbus.NewTCPClientHandler(c.config.Address)
	handler.Timeout = c.config.Timeout
	handler.IdleTimeout = c.config.IdleTimeout

	connectDone := make(chan error, 1)
	go func() {
		connectDone <- handler.Connect()
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrConnectionTimeout, ctx.Err())
	}

	c.mu.Lock()
	c.handler = handler
	c.client = modbus.NewClient(handler)
	c.mu.Unlock()
	return nil
}

// Close tears the session down.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler != nil {
		if err := c.handler.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Error closing field-bus session")
		}
		c.handler = nil
		c.client = nil
	}
	c.state = StateDisconnected
	return nil
}

// HealthCheck reports whether the session is up.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c.State() != StateConnected {
		return domain.ErrConnectionClosed
	}
	return nil
}

// ReadHoldingRegisters performs one read round-trip for count 16-bit
// registers of the given unit. The call blocks for at most the
// configured timeout and is never retried internally.
func (c *Connection) ReadHoldingRegisters(ctx context.Context, unitID uint8, start, count uint16) ([]uint16, error) {
	data, err := c.request(ctx, unitID, func(client modbus.Client) ([]byte, error) {
		return client.ReadHoldingRegisters(start, count)
	})
	if err != nil {
		return nil, err
	}
	if len(data) < int(count)*2 {
		c.stats.ErrorCount.Add(1)
		return nil, fmt.Errorf("%w: short register payload (%d bytes for %d registers)",
			domain.ErrReadFailed, len(data), count)
	}
	return unpackRegisters(data[:int(count)*2]), nil
}

// ReadDiscreteInputs performs one read round-trip for count discrete
// inputs of the given unit.
func (c *Connection) ReadDiscreteInputs(ctx context.Context, unitID uint8, start, count uint16) ([]bool, error) {
	data, err := c.request(ctx, unitID, func(client modbus.Client) ([]byte, error) {
		return client.ReadDiscreteInputs(start, count)
	})
	if err != nil {
		return nil, err
	}
	return unpackBits(data, int(count)), nil
}

// request runs one serialized round-trip against the shared session.
func (c *Connection) request(ctx context.Context, unitID uint8, do func(modbus.Client) ([]byte, error)) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	handler, client, state := c.handler, c.client, c.state
	c.mu.RUnlock()

	if state != StateConnected || client == nil {
		return nil, domain.ErrConnectionClosed
	}

	// The handler carries the slave ID; switch it under opMu since all
	// units share one session.
	handler.SlaveId = unitID

	data, err := do(client)
	if err != nil {
		c.stats.ErrorCount.Add(1)
		return nil, c.translateError(err)
	}

	c.stats.ReadCount.Add(1)
	return data, nil
}

// translateError maps a library error to the domain taxonomy. A Modbus
// exception is a protocol failure and leaves the session usable; any
// other failure is a transport failure and drops the session, to be
// redialed on the next cycle boundary.
func (c *Connection) translateError(err error) error {
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return fmt.Errorf("%w: %v", domain.ModbusExceptionToError(me.ExceptionCode), err)
	}

	c.setState(StateDisconnected)
	return fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// unpackRegisters converts a big-endian register payload to words.
func unpackRegisters(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

// unpackBits expands a packed bit payload to count booleans.
func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		if i/8 >= len(data) {
			break
		}
		out[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return out
}
