// Package router registers the console's HTTP routes.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/ems-console/internal/guard"
	"github.com/iliyamo/ems-console/internal/handler"
	"github.com/iliyamo/ems-console/internal/middleware"
)

// tenantFormLimit bounds a tenant form body.  Pictures up to twice the
// accepted size still reach the validator and get a displayPicture error;
// larger bodies are refused with 413.
const tenantFormLimit = "3M"

// Options carries the middleware that depends on optional infrastructure.
// Nil entries are skipped.
type Options struct {
	LoginLimiter echo.MiddlewareFunc
	ModuleCache  echo.MiddlewareFunc
}

// RegisterRoutes registers every console route on e.  Session resolution
// runs for all of them; the guard then decides per group.
func RegisterRoutes(e *echo.Echo, h *handler.Handler, opts Options) {
	e.Use(middleware.Sessions(h.Sessions, h.Cookie))

	e.GET("/healthz", h.Health)
	e.GET("/", func(c echo.Context) error { return c.Redirect(http.StatusFound, guard.DashboardPath) })

	e.GET(guard.LoginPath, h.LoginPage)
	e.POST(guard.LoginPath, h.Login, optional(opts.LoginLimiter)...)
	e.POST("/logout", h.Logout)

	RegisterDashboard(e, h, opts)
}

// RegisterDashboard registers the views behind the login.  The tenant
// screens additionally require a super admin.
func RegisterDashboard(e *echo.Echo, h *handler.Handler, opts Options) {
	dash := e.Group(guard.DashboardPath, guard.Require(guard.Authenticated, middleware.Subject))
	dash.GET("", h.Dashboard)
	dash.GET("/settings", h.Settings)
	dash.PUT("/settings/theme", h.SetTheme)
	dash.POST("/settings/theme/toggle", h.ToggleTheme)
	dash.POST("/settings/password", h.ChangePassword)

	admin := dash.Group("", guard.Require(guard.SuperAdmin, middleware.Subject))
	admin.GET("/activity", h.Activity)
	admin.GET("/modules", h.Modules, optional(opts.ModuleCache)...)

	t := admin.Group("/tenants")
	t.GET("", h.ListTenants)
	t.POST("", h.CreateTenant, echomw.BodyLimit(tenantFormLimit))
	t.POST("/search", h.SearchTenants)
	t.POST("/delete/confirm", h.ConfirmDelete)
	t.POST("/delete/cancel", h.CancelDelete)
	t.POST("/deactivate/confirm", h.ConfirmDeactivate)
	t.POST("/deactivate/cancel", h.CancelDeactivate)
	t.GET("/:id", h.GetTenant)
	t.GET("/:id/picture", h.TenantPicture)
	t.PUT("/:id", h.UpdateTenant, echomw.BodyLimit(tenantFormLimit))
	t.POST("/:id/delete", h.RequestDelete)
	t.POST("/:id/deactivate", h.RequestDeactivate)
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
