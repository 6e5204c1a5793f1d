// Package domain contains the core entities of the VSD monitor.
package domain

import "fmt"

// Modbus data-model numbering offsets. Fleet files use the
// conventional 4xxxx / 1xxxx addresses; the wire uses zero-based ones.
const (
	holdingRegisterBase = 40001
	discreteInputBase   = 10001

	// maxBlockCount is the Modbus protocol limit for a single
	// read-holding-registers request.
	maxBlockCount = 125

	// StatusBitCount is the fixed width of the status discrete-input
	// block.
	StatusBitCount = 8
)

// RegisterDef is the calibration for one register offset within a
// block: the scaling divisor and the inclusive valid range of the
// scaled value.
type RegisterDef struct {
	Divisor float64 `yaml:"divisor"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

// Validate checks one register definition.
func (d RegisterDef) Validate() error {
	if d.Divisor <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDivisor, d.Divisor)
	}
	if d.Min > d.Max {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, d.Min, d.Max)
	}
	return nil
}

// RegisterBlock is one contiguous holding-register batch read per unit
// per cycle. Several metrics may extract different offsets from the
// same block.
type RegisterBlock struct {
	Name string `yaml:"name"`

	// Start is the data-model address (4xxxx numbering). WireAddress
	// holds the zero-based equivalent after Normalize.
	Start uint16 `yaml:"start"`

	Count     uint16        `yaml:"count"`
	Registers []RegisterDef `yaml:"registers"`

	wireAddress uint16
}

// WireAddress returns the zero-based register address for the request.
func (b *RegisterBlock) WireAddress() uint16 {
	return b.wireAddress
}

// Validate checks the block layout. A mismatch between Count and the
// register definition list is a configuration error reported here, at
// startup, never at read time.
func (b *RegisterBlock) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("register block: name is required")
	}
	if b.Count == 0 || b.Count > maxBlockCount {
		return fmt.Errorf("%w: block %q count %d", ErrInvalidBlockCount, b.Name, b.Count)
	}
	if len(b.Registers) != int(b.Count) {
		return fmt.Errorf("%w: block %q has %d definitions for count %d",
			ErrBlockLenMismatch, b.Name, len(b.Registers), b.Count)
	}
	for i, d := range b.Registers {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("block %q register %d: %w", b.Name, i, err)
		}
	}
	return nil
}

// Metric binds one offset of a register block to a persisted table.
type Metric struct {
	Name   string `yaml:"name"`
	Table  string `yaml:"table"`
	Block  string `yaml:"block"`
	Offset int    `yaml:"offset"`
}

// StatusSpec describes the discrete-input status block and which bit
// offsets carry the run, fault, and alarm flags. The 2/3/7 assignment
// is the documented hardware convention; both the start address and
// the bit offsets are configurable because drive firmware revisions
// have been observed to differ.
type StatusSpec struct {
	// Start is the data-model address (1xxxx numbering).
	Start uint16 `yaml:"start"`

	RunBit   int `yaml:"run_bit"`
	FaultBit int `yaml:"fault_bit"`
	AlarmBit int `yaml:"alarm_bit"`

	RunTable   string `yaml:"run_table"`
	FaultTable string `yaml:"fault_table"`
	AlarmTable string `yaml:"alarm_table"`

	wireAddress uint16
}

// WireAddress returns the zero-based discrete-input address.
func (s *StatusSpec) WireAddress() uint16 {
	return s.wireAddress
}

// Validate checks the status block configuration.
func (s *StatusSpec) Validate() error {
	for _, bit := range []int{s.RunBit, s.FaultBit, s.AlarmBit} {
		if bit < 0 || bit >= StatusBitCount {
			return fmt.Errorf("%w: %d", ErrInvalidStatusBit, bit)
		}
	}
	for _, table := range []string{s.RunTable, s.FaultTable, s.AlarmTable} {
		if !isIdentifier(table) {
			return fmt.Errorf("%w: %q", ErrInvalidTableName, table)
		}
	}
	return nil
}

// Layout is the full immutable register layout of the fleet: blocks,
// the metrics extracted from them, and the status block. Constructed
// and validated once at startup.
type Layout struct {
	Blocks  []RegisterBlock `yaml:"blocks"`
	Metrics []Metric        `yaml:"metrics"`
	Status  StatusSpec      `yaml:"status"`
}

// Validate checks the whole layout for internal consistency.
func (l *Layout) Validate() error {
	if len(l.Blocks) == 0 {
		return ErrNoBlocksDefined
	}
	if len(l.Metrics) == 0 {
		return ErrNoMetricsDefined
	}

	blockByName := make(map[string]*RegisterBlock, len(l.Blocks))
	for i := range l.Blocks {
		b := &l.Blocks[i]
		if err := b.Validate(); err != nil {
			return err
		}
		if _, dup := blockByName[b.Name]; dup {
			return fmt.Errorf("duplicate register block %q", b.Name)
		}
		blockByName[b.Name] = b
	}

	seenTables := make(map[string]struct{})
	claimTable := func(name string) error {
		if !isIdentifier(name) {
			return fmt.Errorf("%w: %q", ErrInvalidTableName, name)
		}
		if _, dup := seenTables[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateTable, name)
		}
		seenTables[name] = struct{}{}
		return nil
	}

	for _, m := range l.Metrics {
		if m.Name == "" {
			return fmt.Errorf("metric: name is required")
		}
		b, ok := blockByName[m.Block]
		if !ok {
			return fmt.Errorf("%w: metric %q block %q", ErrUnknownBlock, m.Name, m.Block)
		}
		if m.Offset < 0 || m.Offset >= int(b.Count) {
			return fmt.Errorf("%w: metric %q offset %d in block %q of count %d",
				ErrOffsetOutOfBlock, m.Name, m.Offset, m.Block, b.Count)
		}
		if err := claimTable(m.Table); err != nil {
			return fmt.Errorf("metric %q: %w", m.Name, err)
		}
	}

	if err := l.Status.Validate(); err != nil {
		return err
	}
	for _, table := range []string{l.Status.RunTable, l.Status.FaultTable, l.Status.AlarmTable} {
		if err := claimTable(table); err != nil {
			return fmt.Errorf("status: %w", err)
		}
	}

	return nil
}

// Normalize converts data-model addresses (4xxxx, 1xxxx) to zero-based
// wire addresses. Addresses below the numbering base are taken as
// already zero-based. Must be called after Validate.
func (l *Layout) Normalize() {
	for i := range l.Blocks {
		b := &l.Blocks[i]
		b.wireAddress = b.Start
		if b.Start >= holdingRegisterBase {
			b.wireAddress = b.Start - holdingRegisterBase
		}
	}
	l.Status.wireAddress = l.Status.Start
	if l.Status.Start >= discreteInputBase {
		l.Status.wireAddress = l.Status.Start - discreteInputBase
	}
}

// Block returns the named block, or nil.
func (l *Layout) Block(name string) *RegisterBlock {
	for i := range l.Blocks {
		if l.Blocks[i].Name == name {
			return &l.Blocks[i]
		}
	}
	return nil
}

// Tables returns every persisted table in layout order: one per metric
// followed by the three status tables. This is the schema contract the
// dashboard collaborator depends on.
func (l *Layout) Tables() []string {
	out := make([]string, 0, len(l.Metrics)+3)
	for _, m := range l.Metrics {
		out = append(out, m.Table)
	}
	out = append(out, l.Status.RunTable, l.Status.FaultTable, l.Status.AlarmTable)
	return out
}
