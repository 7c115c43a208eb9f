package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ems-console/internal/audit"
	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/settings"
)

const recentActivity = 5

type dashboardView struct {
	Greeting      string         `json:"greeting"`
	Subtitle      string         `json:"subtitle"`
	User          model.Identity `json:"user"`
	IsSuperAdmin  bool           `json:"isSuperAdmin"`
	IsTenantAdmin bool           `json:"isTenantAdmin"`
	Theme         settings.Theme `json:"theme"`
	Activity      []audit.Entry  `json:"activity,omitempty"`
}

// Dashboard greets the signed-in user.  Super admins also see the latest
// console activity.
func (h *Handler) Dashboard(c echo.Context) error {
	s, id, err := current(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	theme, err := s.Prefs.Theme(ctx)
	if err != nil {
		return err
	}

	v := dashboardView{
		Greeting:      "Welcome back, " + id.DisplayName() + "!",
		Subtitle:      "Here's an overview of your organization's activity and performance.",
		User:          id,
		IsSuperAdmin:  id.Role == model.RoleSuperAdmin,
		IsTenantAdmin: id.Role == model.RoleTenantAdmin,
		Theme:         theme,
	}
	if v.IsSuperAdmin {
		v.Subtitle = "Manage all tenants and monitor system-wide performance from your super admin dashboard."
		if v.Activity, err = h.Audit.Recent(ctx, recentActivity); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, v)
}

// Activity lists recent console actions, newest first.
func (h *Handler) Activity(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	entries, err := h.Audit.Recent(c.Request().Context(), audit.Limit(limit))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
