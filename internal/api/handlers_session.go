// handlers_session.go - Map session lifecycle handlers
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/session"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessionMgr  SessionManager
	waitTimeout time.Duration
}

// NewSessionHandler creates a new session handler instance. waitTimeout
// bounds how long a refresh with wait=true blocks.
func NewSessionHandler(sessionMgr SessionManager, waitTimeout time.Duration) SessionHandler {
	if waitTimeout <= 0 {
		waitTimeout = 30 * time.Second
	}
	return &SessionHandlerImpl{
		sessionMgr:  sessionMgr,
		waitTimeout: waitTimeout,
	}
}

type createSessionRequest struct {
	EventID string  `json:"eventId"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// HandleCreateSession opens a map session for an event and starts loading it
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.EventID == "" {
		return NewValidationError("eventId")
	}
	if req.Width < 0 || req.Height < 0 {
		return NewValidationError("width/height")
	}

	sess, err := h.sessionMgr.Create(req.EventID, req.Width, req.Height)
	if err != nil {
		return FromSessionError(err, req.EventID)
	}

	return c.JSON(http.StatusAccepted, sess.Info())
}

// HandleGetSession returns the session metadata and load state
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Info())
}

// HandleDeleteSession closes a session
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if !h.sessionMgr.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleListSessions returns all open sessions
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	list := h.sessionMgr.List()
	out := make([]models.MapSession, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	return c.JSON(http.StatusOK, out)
}

// HandleRefresh reloads layout and statistics, bypassing the shared cache.
// With wait=true the response is sent once the load has finished.
func (h *SessionHandlerImpl) HandleRefresh(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	done := sess.Refresh(true)

	wait, _ := strconv.ParseBool(c.QueryParam("wait"))
	if !wait {
		return c.JSON(http.StatusAccepted, sess.Info())
	}

	timer := time.NewTimer(h.waitTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		return c.JSON(http.StatusAccepted, sess.Info())
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}

	info := sess.Info()
	if info.State == models.LoadStateFailed {
		return NewBadGatewayError("map load failed", errString(info.Error))
	}
	return c.JSON(http.StatusOK, info)
}

// lookupSession resolves the :sessionId path parameter
func lookupSession(c echo.Context, mgr SessionManager) (*session.MapSession, error) {
	id := c.Param("sessionId")
	if id == "" {
		return nil, NewValidationError("sessionId")
	}
	sess, err := mgr.Get(id)
	if err != nil {
		return nil, FromSessionError(err, id)
	}
	return sess, nil
}

type errString string

func (e errString) Error() string { return string(e) }
