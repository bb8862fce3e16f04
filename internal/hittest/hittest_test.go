package hittest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venue-console/opmap/internal/geometry"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/spatial"
)

// barLayout is the reference scenario: one area "Bar" holding a rectangular
// table B1 and a circular table B2 centred at (150,150) with radius 20.
func barLayout() spatial.View {
	return spatial.NewView([]models.Area{
		{
			ID: "bar", Name: "Bar", X: 0, Y: 0, W: 200, H: 200, Active: true,
			Tables: []models.Table{
				{ID: "B1", Label: "B1", Shape: models.ShapeRectangular, X: 20, Y: 20, W: 40, H: 40, Status: models.StatusAvailable},
				{ID: "B2", Label: "B2", Shape: models.ShapeCircular, X: 130, Y: 130, W: 40, H: 40, Status: models.StatusOccupied},
			},
		},
	})
}

func TestWorldScenario(t *testing.T) {
	view := barLayout()

	tests := []struct {
		name   string
		point  models.Point
		wantID string
		kind   Kind
	}{
		{"rectangular table", models.Point{X: 30, Y: 30}, "B1", TableHit},
		{"circular table centre", models.Point{X: 150, Y: 150}, "B2", TableHit},
		{"area background", models.Point{X: 199, Y: 199}, "bar", AreaHit},
		{"outside every area", models.Point{X: 250, Y: 250}, "", None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit := TestWorld(tt.point, view)
			assert.Equal(t, tt.kind, hit.Kind)
			assert.Equal(t, tt.wantID, hit.ID())
		})
	}
}

func TestTableHitCarriesOwningArea(t *testing.T) {
	hit := TestWorld(models.Point{X: 30, Y: 30}, barLayout())
	if assert.Equal(t, TableHit, hit.Kind) {
		assert.Equal(t, "bar", hit.Area.ID)
	}
}

func TestScreenSpaceUsesInverseTransform(t *testing.T) {
	view := barLayout()
	vp := geometry.Viewport{Zoom: 2, Pan: models.Point{X: 100, Y: 50}}

	// world (30,30) -> screen (160,110)
	screen := geometry.ToScreen(models.Point{X: 30, Y: 30}, vp)
	hit := Test(screen, view, vp)
	assert.Equal(t, "B1", hit.ID())

	// screen (30,30) is world (-35,-10): nothing there
	assert.False(t, Test(models.Point{X: 30, Y: 30}, view, vp).Found())
}

func TestOverlapResolvesToFirstDeclared(t *testing.T) {
	view := spatial.NewView([]models.Area{
		{
			ID: "a1", W: 100, H: 100,
			Tables: []models.Table{
				{ID: "first", Shape: models.ShapeRectangular, X: 10, Y: 10, W: 30, H: 30},
				{ID: "second", Shape: models.ShapeRectangular, X: 20, Y: 20, W: 30, H: 30},
			},
		},
		{ID: "a2", W: 100, H: 100},
	})

	assert.Equal(t, "first", TestWorld(models.Point{X: 25, Y: 25}, view).ID())
	assert.Equal(t, "a1", TestWorld(models.Point{X: 90, Y: 90}, view).ID())
}

func TestTableOutsideAreaBoundsIsUnreachable(t *testing.T) {
	view := spatial.NewView([]models.Area{
		{
			ID: "a1", W: 50, H: 50,
			Tables: []models.Table{
				{ID: "spill", Shape: models.ShapeRectangular, X: 40, Y: 40, W: 30, H: 30},
			},
		},
	})

	assert.Equal(t, "spill", TestWorld(models.Point{X: 45, Y: 45}, view).ID())
	assert.False(t, TestWorld(models.Point{X: 60, Y: 60}, view).Found())
}
