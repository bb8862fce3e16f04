package models

import (
	"fmt"
	"strings"
)

// TableStatus is the live operational status of a table.
// The set is closed: every value the backend sends must map to one of these.
type TableStatus int

const (
	StatusAvailable TableStatus = iota
	StatusOccupied
	StatusReserved
	StatusBlocked
	StatusMaintenance

	// NumTableStatuses is the size of the status set. Keep it last.
	NumTableStatuses
)

var tableStatusNames = [NumTableStatuses]string{
	StatusAvailable:   "disponivel",
	StatusOccupied:    "ocupada",
	StatusReserved:    "reservada",
	StatusBlocked:     "bloqueada",
	StatusMaintenance: "manutencao",
}

// AllTableStatuses returns every status in declaration order.
func AllTableStatuses() []TableStatus {
	out := make([]TableStatus, 0, NumTableStatuses)
	for s := TableStatus(0); s < NumTableStatuses; s++ {
		out = append(out, s)
	}
	return out
}

// Valid reports whether s is one of the declared statuses.
func (s TableStatus) Valid() bool {
	return s >= 0 && s < NumTableStatuses
}

// String returns the wire name of the status.
func (s TableStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("TableStatus(%d)", int(s))
	}
	return tableStatusNames[s]
}

// ParseTableStatus converts a wire name into a TableStatus.
func ParseTableStatus(raw string) (TableStatus, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for s, n := range tableStatusNames {
		if n == name {
			return TableStatus(s), nil
		}
	}
	return 0, fmt.Errorf("unknown table status %q", raw)
}

// MarshalText implements encoding.TextMarshaler.
func (s TableStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid table status %d", int(s))
	}
	return []byte(tableStatusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TableStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTableStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Shape is the geometric form of a table.
type Shape int

const (
	ShapeRectangular Shape = iota
	ShapeCircular
)

// String returns the wire name of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeRectangular:
		return "rectangular"
	case ShapeCircular:
		return "circular"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape converts a wire name into a Shape.
// "retangular" is accepted as an alias used by older layout exports.
func ParseShape(raw string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "rectangular", "retangular":
		return ShapeRectangular, nil
	case "circular":
		return ShapeCircular, nil
	default:
		return 0, fmt.Errorf("unknown table shape %q", raw)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	switch s {
	case ShapeRectangular, ShapeCircular:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid table shape %d", int(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(text []byte) error {
	parsed, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
