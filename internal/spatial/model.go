// Package spatial holds the in-memory spatial model of one layout and the
// read-only views the renderer and hit-tester iterate.
package spatial

import (
	"time"

	"github.com/venue-console/opmap/internal/models"
)

// Predicate restricts a view. A nil member matches everything.
type Predicate struct {
	Area  func(area *models.Area) bool
	Table func(area *models.Area, table *models.Table) bool
}

// View is an ordered, read-only sequence of areas and their tables. The
// renderer and the hit-tester iterate the same view in the same order, so
// visual stacking and click priority always agree.
//
// Callers must not modify the areas or tables reached through a View.
type View struct {
	areas []models.Area
}

// NewView wraps areas without copying them.
func NewView(areas []models.Area) View {
	return View{areas: areas}
}

// Areas returns the areas in iteration order.
func (v View) Areas() []models.Area {
	return v.areas
}

// Len returns the number of areas in the view.
func (v View) Len() int {
	return len(v.areas)
}

// TableCount returns the number of tables across all areas of the view.
func (v View) TableCount() int {
	n := 0
	for i := range v.areas {
		n += len(v.areas[i].Tables)
	}
	return n
}

// FindArea returns the area with the given ID.
func (v View) FindArea(id string) (*models.Area, bool) {
	for i := range v.areas {
		if v.areas[i].ID == id {
			return &v.areas[i], true
		}
	}
	return nil, false
}

// FindTable returns the table with the given ID and the area owning it.
func (v View) FindTable(id string) (*models.Table, *models.Area, bool) {
	for i := range v.areas {
		area := &v.areas[i]
		for j := range area.Tables {
			if area.Tables[j].ID == id {
				return &area.Tables[j], area, true
			}
		}
	}
	return nil, nil, false
}

// Filter returns a new view restricted by p. The receiver is never mutated:
// areas are copied and get their own table slices.
func (v View) Filter(p Predicate) View {
	out := make([]models.Area, 0, len(v.areas))
	for i := range v.areas {
		area := &v.areas[i]
		if p.Area != nil && !p.Area(area) {
			continue
		}

		copied := *area
		copied.Tables = make([]models.Table, 0, len(area.Tables))
		for j := range area.Tables {
			if p.Table != nil && !p.Table(area, &area.Tables[j]) {
				continue
			}
			copied.Tables = append(copied.Tables, area.Tables[j])
		}
		out = append(out, copied)
	}
	return View{areas: out}
}

// Model owns the current layout. Status changes only arrive through Replace.
type Model struct {
	layout   *models.Layout
	version  uint64
	loadedAt time.Time
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// Replace swaps in a new layout atomically with respect to the model's
// owner. The previous layout is dropped, never patched.
func (m *Model) Replace(layout *models.Layout) {
	m.layout = layout
	m.version++
	m.loadedAt = time.Now()
}

// Layout returns the current layout or nil before the first load.
func (m *Model) Layout() *models.Layout {
	return m.layout
}

// Loaded reports whether a layout has been installed.
func (m *Model) Loaded() bool {
	return m.layout != nil
}

// Version increases by one on every Replace.
func (m *Model) Version() uint64 {
	return m.version
}

// LoadedAt is the time of the last Replace.
func (m *Model) LoadedAt() time.Time {
	return m.loadedAt
}

// View returns the unfiltered view of the current layout.
func (m *Model) View() View {
	if m.layout == nil {
		return View{}
	}
	return View{areas: m.layout.Areas}
}

// Filter returns a restricted view without touching the model.
func (m *Model) Filter(p Predicate) View {
	return m.View().Filter(p)
}
