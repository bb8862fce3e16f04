package geometry

import (
	"math"

	"github.com/venue-console/opmap/internal/models"
)

// Rect is an axis-aligned rectangle in world space.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether p lies in [X, X+W] x [Y, Y+H], edges included.
func (r Rect) Contains(p models.Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() models.Point {
	return models.Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Circle is a disc in world space.
type Circle struct {
	Center models.Point
	Radius float64
}

// InscribedCircle returns the circle drawn for a circular entity occupying r:
// centred in r with radius min(W, H)/2.
func InscribedCircle(r Rect) Circle {
	return Circle{Center: r.Center(), Radius: math.Min(r.W, r.H) / 2}
}

// Contains compares squared distances so no square root is taken.
func (c Circle) Contains(p models.Point) bool {
	dx := p.X - c.Center.X
	dy := p.Y - c.Center.Y
	return dx*dx+dy*dy <= c.Radius*c.Radius
}

// AreaRect returns the bounds of an area.
func AreaRect(a *models.Area) Rect {
	return Rect{X: a.X, Y: a.Y, W: a.W, H: a.H}
}

// TableRect returns the bounding box of a table, whatever its shape.
func TableRect(t *models.Table) Rect {
	return Rect{X: t.X, Y: t.Y, W: t.W, H: t.H}
}

// TableContains runs the shape-specific containment test of a table.
func TableContains(t *models.Table, p models.Point) bool {
	r := TableRect(t)
	switch t.Shape {
	case models.ShapeCircular:
		return InscribedCircle(r).Contains(p)
	default:
		return r.Contains(p)
	}
}
