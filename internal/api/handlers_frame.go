// handlers_frame.go - Rendered frame handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/venue-console/opmap/internal/render"
)

// FrameHandlerImpl implements the FrameHandler interface
type FrameHandlerImpl struct {
	sessionMgr SessionManager
	palette    render.Palette
}

// NewFrameHandler creates a new frame handler instance
func NewFrameHandler(sessionMgr SessionManager, palette render.Palette) FrameHandler {
	return &FrameHandlerImpl{
		sessionMgr: sessionMgr,
		palette:    palette,
	}
}

// HandleFrame returns the current frame as JSON draw commands
func (h *FrameHandlerImpl) HandleFrame(c echo.Context) error {
	frame, err := h.frame(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, frame)
}

// HandleFrameMsgpack returns the current frame msgpack-encoded
func (h *FrameHandlerImpl) HandleFrameMsgpack(c echo.Context) error {
	frame, err := h.frame(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(frame)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleFrameSVG returns the current frame as an SVG document
func (h *FrameHandlerImpl) HandleFrameSVG(c echo.Context) error {
	frame, err := h.frame(c)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "image/svg+xml", []byte(render.EncodeSVG(frame)))
}

// HandleGetPalette returns the status colours and outline colours in use
func (h *FrameHandlerImpl) HandleGetPalette(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"statuses":  h.palette.Statuses(),
		"selection": h.palette.Selection,
		"searchHit": h.palette.SearchHit,
		"areaAlpha": h.palette.AreaAlpha,
	})
}

func (h *FrameHandlerImpl) frame(c echo.Context) (render.Frame, error) {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return render.Frame{}, err
	}
	frame, err := sess.Frame()
	if err != nil {
		return render.Frame{}, FromSessionError(err, sess.ID())
	}
	return frame, nil
}
