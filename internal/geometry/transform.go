// Package geometry maps between world space (layout units) and screen space
// (pixels) and provides the shape containment tests used by hit-testing.
package geometry

import "github.com/venue-console/opmap/internal/models"

const (
	MinZoom = 0.3
	MaxZoom = 3.0
)

// Viewport is the zoom factor and pan offset of the world->screen transform.
// Zoom is kept inside [MinZoom, MaxZoom] by the interaction controller, so it
// is never zero.
type Viewport struct {
	Zoom float64      `json:"zoom" msgpack:"zoom"`
	Pan  models.Point `json:"pan" msgpack:"pan"`
}

// Identity returns the viewport with zoom 1 and no pan.
func Identity() Viewport {
	return Viewport{Zoom: 1}
}

// ToScreen applies screen = world*zoom + pan.
func ToScreen(p models.Point, vp Viewport) models.Point {
	return models.Point{
		X: p.X*vp.Zoom + vp.Pan.X,
		Y: p.Y*vp.Zoom + vp.Pan.Y,
	}
}

// ToWorld applies world = (screen - pan) / zoom, the exact inverse of ToScreen.
func ToWorld(p models.Point, vp Viewport) models.Point {
	return models.Point{
		X: (p.X - vp.Pan.X) / vp.Zoom,
		Y: (p.Y - vp.Pan.Y) / vp.Zoom,
	}
}

// ClampZoom bounds z to [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
