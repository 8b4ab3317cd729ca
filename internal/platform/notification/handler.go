package notification

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the outstanding notifications over HTTP.
type Handler struct {
	scheduler Scheduler
}

func NewHandler(s Scheduler) *Handler {
	return &Handler{scheduler: s}
}

// RegisterRoutes registers notification routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.List)
}

// List handles GET /notifications.
func (h *Handler) List(c echo.Context) error {
	reqs, err := h.scheduler.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if reqs == nil {
		reqs = []Request{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  reqs,
		"total": len(reqs),
	})
}
