// handlers_query.go - Filter, search and statistics handlers
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/venue-console/opmap/internal/models"
)

// QueryHandlerImpl implements the QueryHandler interface
type QueryHandlerImpl struct {
	sessionMgr SessionManager
	history    HistoryReader
}

// NewQueryHandler creates a new query handler instance. history may be nil
// when the statistics journal is disabled.
func NewQueryHandler(sessionMgr SessionManager, history HistoryReader) QueryHandler {
	return &QueryHandlerImpl{
		sessionMgr: sessionMgr,
		history:    history,
	}
}

type searchSelectRequest struct {
	ResultID string `json:"resultId"`
}

// HandleGetFilters returns the active visual filter
func (h *QueryHandlerImpl) HandleGetFilters(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Filter())
}

// HandleSetFilters replaces the visual filter
func (h *QueryHandlerImpl) HandleSetFilters(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	var f models.LayoutFilter
	if err := c.Bind(&f); err != nil {
		return NewBadRequestError("invalid filter", err)
	}

	changed := sess.SetFilter(f)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"filter":  sess.Filter(),
		"changed": changed,
	})
}

// HandleSearch runs a free-text search. An empty q clears the results.
func (h *QueryHandlerImpl) HandleSearch(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	var kind *models.ResultKind
	if raw := c.QueryParam("kind"); raw != "" {
		k, err := models.ParseResultKind(raw)
		if err != nil {
			return NewBadRequestError("invalid kind", err)
		}
		kind = &k
	}

	out := sess.Search(c.Request().Context(), c.QueryParam("q"), kind)
	return c.JSON(http.StatusOK, out)
}

// HandleSearchSelect selects the table a search result points at
func (h *QueryHandlerImpl) HandleSearchSelect(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	var req searchSelectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.ResultID == "" {
		return NewValidationError("resultId")
	}

	sel, err := sess.SelectSearchResult(req.ResultID)
	if err != nil {
		return FromSessionError(err, req.ResultID)
	}
	return c.JSON(http.StatusOK, sel)
}

// HandleStatistics returns the latest statistics of the session's event
func (h *QueryHandlerImpl) HandleStatistics(c echo.Context) error {
	sess, err := lookupSession(c, h.sessionMgr)
	if err != nil {
		return err
	}

	stats, err := sess.Statistics()
	if err != nil {
		return FromSessionError(err, sess.ID())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"statistics":    stats,
		"occupancyRate": stats.OccupancyRate(),
	})
}

// HandleStatisticsHistory returns journalled snapshots of an event, oldest first
func (h *QueryHandlerImpl) HandleStatisticsHistory(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("statistics history is disabled")
	}

	eventID := c.Param("eventId")
	if eventID == "" {
		return NewValidationError("eventId")
	}

	var since time.Time
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return NewBadRequestError("invalid since, expected RFC3339", err)
		}
		since = t
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	snapshots, err := h.history.History(c.Request().Context(), eventID, since, limit)
	if err != nil {
		return NewInternalError("failed to read statistics history", err)
	}
	if snapshots == nil {
		snapshots = []models.Statistics{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"eventId":   eventID,
		"snapshots": snapshots,
	})
}
