// Package filter bridges structured filters and free-text search onto the
// spatial model.
package filter

import (
	"strings"

	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/spatial"
)

// Predicate turns structured criteria into a spatial predicate. Criteria
// combine with AND; an unset criterion matches everything. ActiveOnly and
// AreaType act on areas, so a rejected area disappears with all its tables.
// Status acts on tables only: an area whose tables are all filtered out is
// still drawn.
func Predicate(f models.LayoutFilter) spatial.Predicate {
	var p spatial.Predicate

	areaType := strings.TrimSpace(f.AreaType)
	if f.ActiveOnly || areaType != "" {
		activeOnly := f.ActiveOnly
		p.Area = func(a *models.Area) bool {
			if activeOnly && !a.Active {
				return false
			}
			if areaType != "" && !strings.EqualFold(a.Type, areaType) {
				return false
			}
			return true
		}
	}

	if f.Status != nil {
		status := *f.Status
		p.Table = func(_ *models.Area, t *models.Table) bool {
			return t.Status == status
		}
	}
	return p
}

// Apply restricts view by f. The zero filter returns view unchanged.
func Apply(view spatial.View, f models.LayoutFilter) spatial.View {
	if f.IsZero() {
		return view
	}
	return view.Filter(Predicate(f))
}

// Normalize trims the area type so equivalent filters compare equal.
func Normalize(f models.LayoutFilter) models.LayoutFilter {
	f.AreaType = strings.ToLower(strings.TrimSpace(f.AreaType))
	return f
}

// Equal reports whether two filters select the same entities.
func Equal(a, b models.LayoutFilter) bool {
	a, b = Normalize(a), Normalize(b)
	if a.AreaType != b.AreaType || a.ActiveOnly != b.ActiveOnly {
		return false
	}
	if (a.Status == nil) != (b.Status == nil) {
		return false
	}
	return a.Status == nil || *a.Status == *b.Status
}
