// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/session"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles map session lifecycle operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleRefresh(c echo.Context) error
}

// FrameHandler serves rendered frames
type FrameHandler interface {
	HandleFrame(c echo.Context) error
	HandleFrameMsgpack(c echo.Context) error
	HandleFrameSVG(c echo.Context) error
	HandleGetPalette(c echo.Context) error
}

// InputHandler applies pointer, wheel and zoom input and manages the selection
type InputHandler interface {
	HandlePointer(c echo.Context) error
	HandleWheel(c echo.Context) error
	HandleZoom(c echo.Context) error
	HandleResize(c echo.Context) error
	HandleGetSelection(c echo.Context) error
	HandleClearSelection(c echo.Context) error
}

// QueryHandler handles filters, search and statistics
type QueryHandler interface {
	HandleGetFilters(c echo.Context) error
	HandleSetFilters(c echo.Context) error
	HandleSearch(c echo.Context) error
	HandleSearchSelect(c echo.Context) error
	HandleStatistics(c echo.Context) error
	HandleStatisticsHistory(c echo.Context) error
}

// LiveHandler pushes frames over WebSocket
type LiveHandler interface {
	HandleWebSocket(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Create(eventID string, width, height float64) (*session.MapSession, error)
	Get(id string) (*session.MapSession, error)
	Delete(id string) bool
	List() []*session.MapSession
	Count() int
}

// HistoryReader reads journalled statistics snapshots
type HistoryReader interface {
	History(ctx context.Context, eventID string, since time.Time, limit int) ([]models.Statistics, error)
}
