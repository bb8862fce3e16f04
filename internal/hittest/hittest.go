// Package hittest resolves a pointer position to the entity under it.
package hittest

import (
	"github.com/venue-console/opmap/internal/geometry"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/spatial"
)

// Kind identifies what a hit resolved to.
type Kind int

const (
	None Kind = iota
	AreaHit
	TableHit
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case AreaHit:
		return "area"
	case TableHit:
		return "table"
	default:
		return "none"
	}
}

// Hit is the result of a hit-test: a table (with its owning area), an area,
// or nothing. Pointers reference the view that was tested.
type Hit struct {
	Kind  Kind
	Area  *models.Area
	Table *models.Table
	World models.Point
}

// Found reports whether the hit resolved to an entity.
func (h Hit) Found() bool {
	return h.Kind != None
}

// ID returns the ID of the hit entity, or "" for a miss.
func (h Hit) ID() string {
	switch h.Kind {
	case TableHit:
		return h.Table.ID
	case AreaHit:
		return h.Area.ID
	default:
		return ""
	}
}

// Test converts a screen point to world space and resolves it against view.
func Test(screen models.Point, view spatial.View, vp geometry.Viewport) Hit {
	return TestWorld(geometry.ToWorld(screen, vp), view)
}

// TestWorld resolves a world point. The first area (in view order) whose
// bounds contain p is searched for the first table whose shape contains p;
// if none does, the area itself is returned. Overlapping entities resolve to
// the earliest declared one.
func TestWorld(p models.Point, view spatial.View) Hit {
	areas := view.Areas()
	for i := range areas {
		area := &areas[i]
		if !geometry.AreaRect(area).Contains(p) {
			continue
		}
		for j := range area.Tables {
			table := &area.Tables[j]
			if geometry.TableContains(table, p) {
				return Hit{Kind: TableHit, Area: area, Table: table, World: p}
			}
		}
		return Hit{Kind: AreaHit, Area: area, World: p}
	}
	return Hit{Kind: None, World: p}
}
