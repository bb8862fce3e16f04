// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version    string
	sessions   SessionManager
	components map[string]bool
	started    time.Time
}

// NewHealthHandler creates a new health handler. components lists the
// optional subsystems and whether they are enabled.
func NewHealthHandler(version string, sessions SessionManager, components map[string]bool) HealthHandler {
	return &HealthHandlerImpl{
		version:    version,
		sessions:   sessions,
		components: components,
		started:    time.Now(),
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Count()
	}
	if len(h.components) > 0 {
		resp["components"] = h.components
	}
	return c.JSON(http.StatusOK, resp)
}
