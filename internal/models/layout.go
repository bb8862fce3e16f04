package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingStatus is returned when a table payload carries no status.
var ErrMissingStatus = errors.New("table has no status")

// Point is a 2D coordinate. Whether it is in world or screen space depends on
// where it came from; the geometry package converts between the two.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Layout is the floor plan of one event. It is replaced wholesale on every
// refresh, never patched.
type Layout struct {
	EventID string         `json:"eventId"`
	Width   float64        `json:"width"`
	Height  float64        `json:"height"`
	Scale   float64        `json:"scale"`
	Config  map[string]any `json:"config,omitempty"`
	Areas   []Area         `json:"areas"`
}

// Area is a named zone of the venue. Its tables are positioned in the same
// world coordinate system as the area itself, not relative to it.
type Area struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"` // "bar", "vip", "pista", ...
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	W            float64  `json:"w"`
	H            float64  `json:"h"`
	Color        string   `json:"color"`
	Active       bool     `json:"active"`
	Capacity     int      `json:"capacity"`
	Restrictions []string `json:"restrictions,omitempty"`
	Tables       []Table  `json:"tables"`
}

// Table is the leaf entity of the map: a bookable unit with a live status.
// Status and ActiveOrder are correlated but either may be present without
// the other (a reserved table has no order yet).
type Table struct {
	ID           string       `json:"id"`
	Label        string       `json:"label"`
	Shape        Shape        `json:"shape"`
	X            float64      `json:"x"`
	Y            float64      `json:"y"`
	W            float64      `json:"w"`
	H            float64      `json:"h"`
	Capacity     int          `json:"capacity"`
	Status       TableStatus  `json:"status"`
	MinimumSpend float64      `json:"minimumSpend"`
	ServiceFee   float64      `json:"serviceFee"`
	Notes        string       `json:"notes,omitempty"`
	ActiveOrder  *ActiveOrder `json:"activeOrder,omitempty"`
}

// UnmarshalJSON decodes a table and requires its status. The zero
// TableStatus is a real status, so a missing key would otherwise paint the
// table as available.
func (t *Table) UnmarshalJSON(data []byte) error {
	type plain Table
	aux := struct {
		*plain
		Status *TableStatus `json:"status"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Status == nil {
		return fmt.Errorf("table %q: %w", t.ID, ErrMissingStatus)
	}
	t.Status = *aux.Status
	return nil
}

// ActiveOrder summarises the open tab of an occupied table.
type ActiveOrder struct {
	ID           string  `json:"id"`
	Total        float64 `json:"total"`
	Participants int     `json:"participants"`
}

// LayoutFilter holds the structured criteria shared by the visual filters
// and the backend's server-side pre-filter. Zero values match everything.
type LayoutFilter struct {
	AreaType   string       `json:"areaType,omitempty"`
	Status     *TableStatus `json:"status,omitempty"`
	ActiveOnly bool         `json:"activeOnly,omitempty"`
}

// IsZero reports whether the filter restricts nothing.
func (f LayoutFilter) IsZero() bool {
	return f.AreaType == "" && f.Status == nil && !f.ActiveOnly
}

// TableCount returns the number of tables across all areas.
func (l *Layout) TableCount() int {
	if l == nil {
		return 0
	}
	n := 0
	for i := range l.Areas {
		n += len(l.Areas[i].Tables)
	}
	return n
}
