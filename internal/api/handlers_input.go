// handlers_input.go - Pointer, wheel, zoom and selection handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/venue-console/opmap/internal/geometry"
	"github.com/venue-console/opmap/internal/interaction"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/session"
)

// InputHandlerImpl implements the InputHandler interface
type InputHandlerImpl struct {
	sessionMgr SessionManager
}

// NewInputHandler creates a new input handler instance
func NewInputHandler(sessionMgr SessionManager) InputHandler {
	return &InputHandlerImpl{sessionMgr: sessionMgr}
}

type pointerRequest struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type wheelRequest struct {
	DeltaY float64 `json:"deltaY"`
}

type zoomRequest struct {
	Action string `json:"action"`
}

type resizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// InputResponse reports what an input event did
type InputResponse struct {
	Outcome  string            `json:"outcome"`
	Changed  bool              `json:"changed"`
	HitKind  string            `json:"hitKind,omitempty"`
	HitID    string            `json:"hitId,omitempty"`
	Viewport geometry.Viewport `json:"viewport"`
}

func newInputResponse(sess *session.MapSession, out interaction.Outcome) InputResponse {
	resp := InputResponse{
		Outcome:  out.Kind.String(),
		Changed:  out.Changed(),
		Viewport: sess.Viewport(),
	}
	if out.Hit.Found() {
		resp.HitKind = out.Hit.Kind.String()
		resp.HitID = out.Hit.ID()
	}
	return resp
}

// HandlePointer feeds a pointer event in screen coordinates
func (h *InputHandlerImpl) HandlePointer(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	var req pointerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	kind, err := session.ParsePointerKind(req.Type)
	if err != nil {
		return NewBadRequestError("invalid pointer type", err)
	}

	out, err := sess.Pointer(kind, models.Point{X: req.X, Y: req.Y})
	if err != nil {
		return FromSessionError(err, sess.ID())
	}
	return c.JSON(http.StatusOK, newInputResponse(sess, out))
}

// HandleWheel feeds a wheel event. Positive deltaY zooms out.
func (h *InputHandlerImpl) HandleWheel(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	var req wheelRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	out := sess.Wheel(req.DeltaY)
	return c.JSON(http.StatusOK, newInputResponse(sess, out))
}

// HandleZoom applies a zoom control: in, out or reset
func (h *InputHandlerImpl) HandleZoom(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	var req zoomRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	action, err := session.ParseZoomAction(req.Action)
	if err != nil {
		return NewBadRequestError("invalid zoom action", err)
	}

	out, err := sess.Zoom(action)
	if err != nil {
		return FromSessionError(err, sess.ID())
	}
	return c.JSON(http.StatusOK, newInputResponse(sess, out))
}

// HandleResize updates the canvas size frames are rendered for
func (h *InputHandlerImpl) HandleResize(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	var req resizeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return NewValidationError("width/height")
	}

	sess.SetCanvas(req.Width, req.Height)
	return c.JSON(http.StatusOK, sess.Info())
}

// HandleGetSelection returns the full record of the selected entity
func (h *InputHandlerImpl) HandleGetSelection(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	sel, err := sess.Selection()
	if err != nil {
		return FromSessionError(err, sess.ID())
	}
	return c.JSON(http.StatusOK, sel)
}

// HandleClearSelection clears the selection
func (h *InputHandlerImpl) HandleClearSelection(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	sess.ClearSelection()
	return c.NoContent(http.StatusNoContent)
}
