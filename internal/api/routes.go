// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/venue-console/opmap/internal/render"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	SessionMgr       SessionManager
	History          HistoryReader // nil when the journal is disabled
	Palette          render.Palette
	Version          string
	Components       map[string]bool
	RefreshWait      time.Duration
	WSMaxMessageSize int64
	Logger           *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Session SessionHandler
	Frame   FrameHandler
	Input   InputHandler
	Query   QueryHandler
	Live    LiveHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.SessionMgr, deps.Components),
		Session: NewSessionHandler(deps.SessionMgr, deps.RefreshWait),
		Frame:   NewFrameHandler(deps.SessionMgr, deps.Palette),
		Input:   NewInputHandler(deps.SessionMgr),
		Query:   NewQueryHandler(deps.SessionMgr, deps.History),
		Live:    NewWebSocketHandler(deps.SessionMgr, deps.WSMaxMessageSize, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	api := e.Group("/api")
	api.GET("/health", handlers.Health.HandleHealth)
	api.GET("/palette", handlers.Frame.HandleGetPalette)
	api.GET("/events/:eventId/statistics/history", handlers.Query.HandleStatisticsHistory)

	// Map session routes
	sessions := api.Group("/sessions")
	sessions.POST("", handlers.Session.HandleCreateSession)
	sessions.GET("", handlers.Session.HandleListSessions)
	sessions.GET("/:sessionId", handlers.Session.HandleGetSession)
	sessions.DELETE("/:sessionId", handlers.Session.HandleDeleteSession)
	sessions.POST("/:sessionId/refresh", handlers.Session.HandleRefresh)

	// Frames
	sessions.GET("/:sessionId/frame", handlers.Frame.HandleFrame)
	sessions.GET("/:sessionId/frame/msgpack", handlers.Frame.HandleFrameMsgpack)
	sessions.GET("/:sessionId/frame.svg", handlers.Frame.HandleFrameSVG)

	// Input and selection
	sessions.POST("/:sessionId/pointer", handlers.Input.HandlePointer)
	sessions.POST("/:sessionId/wheel", handlers.Input.HandleWheel)
	sessions.POST("/:sessionId/zoom", handlers.Input.HandleZoom)
	sessions.PUT("/:sessionId/canvas", handlers.Input.HandleResize)
	sessions.GET("/:sessionId/selection", handlers.Input.HandleGetSelection)
	sessions.DELETE("/:sessionId/selection", handlers.Input.HandleClearSelection)

	// Filters, search and statistics
	sessions.GET("/:sessionId/filters", handlers.Query.HandleGetFilters)
	sessions.PUT("/:sessionId/filters", handlers.Query.HandleSetFilters)
	sessions.GET("/:sessionId/search", handlers.Query.HandleSearch)
	sessions.POST("/:sessionId/search/select", handlers.Query.HandleSearchSelect)
	sessions.GET("/:sessionId/statistics", handlers.Query.HandleStatistics)

	RegisterWebSocketRoutes(sessions, handlers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(g *echo.Group, handlers *Handlers) {
	g.GET("/:sessionId/ws", handlers.Live.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
