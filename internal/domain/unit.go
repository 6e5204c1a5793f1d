// Package domain contains the core entities of the VSD monitor.
package domain

import "fmt"

// Unit is one variable-speed drive on the shared Modbus TCP gateway.
// The ID is the Modbus slave address; the Name doubles as the SQL
// column name in every metric table.
type Unit struct {
	ID   uint8  `yaml:"id"`
	Name string `yaml:"name"`
}

// Validate checks one unit definition.
func (u Unit) Validate() error {
	if u.ID < 1 || u.ID > 247 {
		return fmt.Errorf("%w: %d", ErrInvalidUnitID, u.ID)
	}
	if u.Name == "" {
		return ErrUnitNameRequired
	}
	if !isIdentifier(u.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidUnitName, u.Name)
	}
	return nil
}

// Registry is the validated, ordered fleet of units. The order is the
// column order of every persisted table and never changes after
// startup.
type Registry struct {
	units []Unit
	byID  map[uint8]int
}

// NewRegistry validates the unit list and builds the registry.
// Duplicate IDs and duplicate names are both rejected: an ID collision
// would poll the same drive twice, a name collision would collapse two
// columns into one.
func NewRegistry(units []Unit) (*Registry, error) {
	if len(units) == 0 {
		return nil, ErrNoUnitsDefined
	}

	byID := make(map[uint8]int, len(units))
	byName := make(map[string]struct{}, len(units))
	for i, u := range units {
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		if _, dup := byID[u.ID]; dup {
			return nil, fmt.Errorf("%w: ID %d", ErrDuplicateUnit, u.ID)
		}
		if _, dup := byName[u.Name]; dup {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicateUnit, u.Name)
		}
		byID[u.ID] = i
		byName[u.Name] = struct{}{}
	}

	return &Registry{
		units: append([]Unit(nil), units...),
		byID:  byID,
	}, nil
}

// Units returns the units in registry order.
func (r *Registry) Units() []Unit {
	return r.units
}

// Names returns the unit names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.units))
	for i, u := range r.units {
		names[i] = u.Name
	}
	return names
}

// Len returns the fleet size.
func (r *Registry) Len() int {
	return len(r.units)
}

// Index returns the registry position of a unit ID, or -1.
func (r *Registry) Index(id uint8) int {
	if i, ok := r.byID[id]; ok {
		return i
	}
	return -1
}

// NameOf returns the name for a unit ID, or the empty string.
func (r *Registry) NameOf(id uint8) string {
	if i, ok := r.byID[id]; ok {
		return r.units[i].Name
	}
	return ""
}

// isIdentifier reports whether s is safe to embed as a SQL table or
// column name: letters, digits, underscore, not starting with a digit.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
