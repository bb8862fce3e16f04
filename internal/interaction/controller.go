// Package interaction implements the pointer/wheel state machine that owns
// the viewport and the current selection.
package interaction

import (
	"github.com/venue-console/opmap/internal/geometry"
	"github.com/venue-console/opmap/internal/hittest"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/spatial"
)

// Zoom factors. A positive wheel deltaY (wheel rolled towards the user, the
// browser convention for scrolling down) zooms out.
const (
	WheelOutFactor = 0.9
	WheelInFactor  = 1.1
	StepInFactor   = 1.2
	StepOutFactor  = 0.8
)

// State is the controller state.
type State int

const (
	Idle State = iota
	Panning
)

func (s State) String() string {
	if s == Panning {
		return "panning"
	}
	return "idle"
}

// OutcomeKind says what an input event did.
type OutcomeKind int

const (
	NoChange OutcomeKind = iota
	Selected
	PanStarted
	Panned
	PanEnded
	Zoomed
)

func (k OutcomeKind) String() string {
	switch k {
	case Selected:
		return "selected"
	case PanStarted:
		return "pan-started"
	case Panned:
		return "panned"
	case PanEnded:
		return "pan-ended"
	case Zoomed:
		return "zoomed"
	default:
		return "none"
	}
}

// Outcome is the result of feeding one event to the controller.
type Outcome struct {
	Kind     OutcomeKind
	Hit      hittest.Hit
	PanDelta models.Point
}

// Changed reports whether the event changed anything a renderer draws.
func (o Outcome) Changed() bool {
	return o.Kind == Selected || o.Kind == Panned || o.Kind == Zoomed
}

// Selection identifies the single selected entity. AreaID is the owning area
// for tables and equals ID for areas.
type Selection struct {
	Kind   hittest.Kind `json:"-"`
	ID     string       `json:"id"`
	AreaID string       `json:"areaId"`
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return s.Kind == hittest.None
}

// Controller is not safe for concurrent use; its owner serialises access.
//
// Clicking empty space starts a pan and leaves the selection untouched.
// Only ClearSelection removes it.
type Controller struct {
	state     State
	vp        geometry.Viewport
	last      models.Point
	selection Selection
}

// New returns an idle controller with the identity viewport.
func New() *Controller {
	return &Controller{vp: geometry.Identity()}
}

// State returns whether the controller is idle or panning.
func (c *Controller) State() State { return c.state }

// Viewport returns the current zoom and pan.
func (c *Controller) Viewport() geometry.Viewport { return c.vp }

// Selection returns the selected entity, empty when nothing is selected.
func (c *Controller) Selection() Selection { return c.selection }

// PointerDown hit-tests p against view. A hit selects the entity and keeps
// the controller idle; a miss starts a pan.
func (c *Controller) PointerDown(p models.Point, view spatial.View) Outcome {
	hit := hittest.Test(p, view, c.vp)
	if hit.Found() {
		c.state = Idle
		c.selection = selectionOf(hit)
		return Outcome{Kind: Selected, Hit: hit}
	}

	c.state = Panning
	c.last = p
	return Outcome{Kind: PanStarted, Hit: hit}
}

// PointerMove pans by the pointer delta while panning and is ignored otherwise.
func (c *Controller) PointerMove(p models.Point) Outcome {
	if c.state != Panning {
		return Outcome{}
	}
	delta := models.Point{X: p.X - c.last.X, Y: p.Y - c.last.Y}
	c.vp.Pan.X += delta.X
	c.vp.Pan.Y += delta.Y
	c.last = p
	return Outcome{Kind: Panned, PanDelta: delta}
}

// PointerUp ends a pan wherever the pointer is.
func (c *Controller) PointerUp(models.Point) Outcome {
	if c.state != Panning {
		return Outcome{}
	}
	c.state = Idle
	return Outcome{Kind: PanEnded}
}

// Wheel zooms out for deltaY > 0 and in for deltaY < 0.
func (c *Controller) Wheel(deltaY float64) Outcome {
	switch {
	case deltaY > 0:
		return c.zoomBy(WheelOutFactor)
	case deltaY < 0:
		return c.zoomBy(WheelInFactor)
	default:
		return Outcome{}
	}
}

// ZoomIn multiplies the zoom by StepInFactor, clamped to the zoom range.
func (c *Controller) ZoomIn() Outcome { return c.zoomBy(StepInFactor) }

// ZoomOut multiplies the zoom by StepOutFactor, clamped to the zoom range.
func (c *Controller) ZoomOut() Outcome { return c.zoomBy(StepOutFactor) }

// ResetView restores zoom 1 and pan (0,0). The selection is kept.
func (c *Controller) ResetView() Outcome {
	c.vp = geometry.Identity()
	c.state = Idle
	return Outcome{Kind: Zoomed}
}

func (c *Controller) zoomBy(factor float64) Outcome {
	next := geometry.ClampZoom(c.vp.Zoom * factor)
	if next == c.vp.Zoom {
		return Outcome{}
	}
	c.vp.Zoom = next
	return Outcome{Kind: Zoomed}
}

// Select replaces the selection with the entity hit describes.
func (c *Controller) Select(hit hittest.Hit) {
	c.selection = selectionOf(hit)
}

// ClearSelection removes the selection and reports whether there was one.
func (c *Controller) ClearSelection() bool {
	had := !c.selection.Empty()
	c.selection = Selection{}
	return had
}

// Revalidate re-resolves the selection against view after a reload or a
// filter change. It drops the selection when the entity is no longer in the
// view and reports whether that happened.
func (c *Controller) Revalidate(view spatial.View) bool {
	switch c.selection.Kind {
	case hittest.TableHit:
		if _, area, ok := view.FindTable(c.selection.ID); ok {
			c.selection.AreaID = area.ID
			return false
		}
	case hittest.AreaHit:
		if _, ok := view.FindArea(c.selection.ID); ok {
			return false
		}
	default:
		return false
	}
	c.selection = Selection{}
	return true
}

func selectionOf(hit hittest.Hit) Selection {
	switch hit.Kind {
	case hittest.TableHit:
		return Selection{Kind: hittest.TableHit, ID: hit.Table.ID, AreaID: hit.Area.ID}
	case hittest.AreaHit:
		return Selection{Kind: hittest.AreaHit, ID: hit.Area.ID, AreaID: hit.Area.ID}
	default:
		return Selection{}
	}
}
