package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is used by load balancers and monitoring systems to verify that
// the console is running.  It also reports how many sessions are cached.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "sessions": h.Sessions.Len()})
}
