package render

import (
	"strconv"

	"github.com/venue-console/opmap/internal/geometry"
	"github.com/venue-console/opmap/internal/hittest"
	"github.com/venue-console/opmap/internal/interaction"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/spatial"
)

const (
	// SelectionWidth is the on-screen width of the selection outline in pixels.
	SelectionWidth = 3.0
	// HighlightWidth is the on-screen width of a search-hit outline in pixels.
	HighlightWidth = 2.0

	areaBorderWidth  = 2.0
	tableBorderWidth = 1.0
	areaLabelSize    = 14.0
	tableLabelSize   = 12.0
	badgeRadius      = 9.0
	badgeLabelSize   = 10.0
	outlinePadding   = 4.0

	tableBorderColor = "#1f2937"
	labelColor       = "#111827"
	badgeColor       = "#ffffff"
)

// Options carries everything the renderer reads besides the view.
type Options struct {
	Palette       Palette
	Selection     interaction.Selection
	Highlights    map[string]bool
	CanvasWidth   float64
	CanvasHeight  float64
	LayoutVersion uint64
}

// Render produces one draw pass for view under vp. It is pure: the same
// inputs always give the same frame. Entities are emitted in reverse view
// order so the one the hit-tester resolves first is drawn last, on top.
// Search-hit and selection outlines follow every entity.
func Render(view spatial.View, vp geometry.Viewport, opts Options) Frame {
	b := builder{
		zoom:    vp.Zoom,
		palette: opts.Palette,
	}
	if b.zoom <= 0 {
		b.zoom = 1
	}

	b.add(Command{Op: OpTransform, X: vp.Pan.X, Y: vp.Pan.Y, Scale: b.zoom})

	areas := view.Areas()
	for i := len(areas) - 1; i >= 0; i-- {
		a := &areas[i]
		b.area(a)
		for j := len(a.Tables) - 1; j >= 0; j-- {
			b.table(&a.Tables[j])
		}
	}

	for i := len(areas) - 1; i >= 0; i-- {
		for j := len(areas[i].Tables) - 1; j >= 0; j-- {
			t := &areas[i].Tables[j]
			if opts.Highlights[t.ID] {
				b.outline(t, RoleSearchHit, b.palette.SearchHit, HighlightWidth, []float64{6 / b.zoom, 4 / b.zoom})
			}
		}
	}
	b.selection(areas, opts.Selection)

	return Frame{
		Width:         opts.CanvasWidth,
		Height:        opts.CanvasHeight,
		Viewport:      vp,
		Selection:     opts.Selection.ID,
		LayoutVersion: opts.LayoutVersion,
		Commands:      b.cmds,
	}
}

type builder struct {
	zoom    float64
	palette Palette
	cmds    []Command
}

func (b *builder) add(c Command) {
	b.cmds = append(b.cmds, c)
}

func (b *builder) area(a *models.Area) {
	b.add(Command{
		Op: OpFillRect, Role: RoleArea, Entity: a.ID,
		X: a.X, Y: a.Y, W: a.W, H: a.H,
		Fill: a.Color, Alpha: b.palette.AreaAlpha,
	})
	b.add(Command{
		Op: OpStrokeRect, Entity: a.ID,
		X: a.X, Y: a.Y, W: a.W, H: a.H,
		Stroke: a.Color, LineWidth: areaBorderWidth,
	})
	b.add(Command{
		Op: OpText, Role: RoleAreaLabel, Entity: a.ID,
		X: a.X + 8, Y: a.Y + areaLabelSize + 4,
		Text: a.Name, Fill: labelColor, FontSize: areaLabelSize,
	})
}

// selection outlines the selected entity. Areas and tables have separate ID
// spaces, so the kind decides which list is searched.
func (b *builder) selection(areas []models.Area, sel interaction.Selection) {
	for i := range areas {
		a := &areas[i]
		switch sel.Kind {
		case hittest.AreaHit:
			if a.ID != sel.ID {
				continue
			}
			pad := outlinePadding / b.zoom
			b.add(Command{
				Op: OpStrokeRect, Role: RoleSelection, Entity: a.ID,
				X: a.X - pad, Y: a.Y - pad, W: a.W + 2*pad, H: a.H + 2*pad,
				Stroke: b.palette.Selection, LineWidth: SelectionWidth / b.zoom,
			})
			return
		case hittest.TableHit:
			if sel.AreaID != "" && a.ID != sel.AreaID {
				continue
			}
			for j := range a.Tables {
				if a.Tables[j].ID == sel.ID {
					b.outline(&a.Tables[j], RoleSelection, b.palette.Selection, SelectionWidth, nil)
					return
				}
			}
		default:
			return
		}
	}
}

func (b *builder) table(t *models.Table) {
	rect := geometry.TableRect(t)
	fill := b.palette.Color(t.Status)

	switch t.Shape {
	case models.ShapeCircular:
		c := geometry.InscribedCircle(rect)
		b.add(Command{
			Op: OpFillCircle, Role: RoleTable, Entity: t.ID,
			X: c.Center.X, Y: c.Center.Y, R: c.Radius, Fill: fill, Alpha: 1,
		})
		b.add(Command{
			Op: OpStrokeCircle, Entity: t.ID,
			X: c.Center.X, Y: c.Center.Y, R: c.Radius,
			Stroke: tableBorderColor, LineWidth: tableBorderWidth,
		})
	default:
		b.add(Command{
			Op: OpFillRect, Role: RoleTable, Entity: t.ID,
			X: rect.X, Y: rect.Y, W: rect.W, H: rect.H, Fill: fill, Alpha: 1,
		})
		b.add(Command{
			Op: OpStrokeRect, Entity: t.ID,
			X: rect.X, Y: rect.Y, W: rect.W, H: rect.H,
			Stroke: tableBorderColor, LineWidth: tableBorderWidth,
		})
	}

	center := rect.Center()
	b.add(Command{
		Op: OpText, Role: RoleTableLabel, Entity: t.ID,
		X: center.X, Y: center.Y, Text: t.Label, Fill: labelColor, FontSize: tableLabelSize,
	})

	if t.ActiveOrder != nil {
		// badge sits on the top-right corner of the bounding box
		bx, by := rect.X+rect.W, rect.Y
		b.add(Command{
			Op: OpFillCircle, Role: RoleOrderBadge, Entity: t.ID,
			X: bx, Y: by, R: badgeRadius, Fill: tableBorderColor, Alpha: 1,
		})
		b.add(Command{
			Op: OpText, Entity: t.ID, X: bx, Y: by,
			Text: strconv.Itoa(t.ActiveOrder.Participants), Fill: badgeColor, FontSize: badgeLabelSize,
		})
	}
}

// outline strokes around a table. Width is divided by zoom so the stroke
// keeps the same pixel width after the transform scales it back up.
func (b *builder) outline(t *models.Table, role Role, color string, width float64, dash []float64) {
	pad := outlinePadding / b.zoom
	rect := geometry.TableRect(t)

	if t.Shape == models.ShapeCircular {
		c := geometry.InscribedCircle(rect)
		b.add(Command{
			Op: OpStrokeCircle, Role: role, Entity: t.ID,
			X: c.Center.X, Y: c.Center.Y, R: c.Radius + pad,
			Stroke: color, LineWidth: width / b.zoom, Dash: dash,
		})
		return
	}
	b.add(Command{
		Op: OpStrokeRect, Role: role, Entity: t.ID,
		X: rect.X - pad, Y: rect.Y - pad, W: rect.W + 2*pad, H: rect.H + 2*pad,
		Stroke: color, LineWidth: width / b.zoom, Dash: dash,
	})
}
