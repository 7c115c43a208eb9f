// Package guard decides whether a console view may render for the current
// session.  It only shapes navigation; every remote call is authorized
// again by the EMS API.
package guard

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ems-console/internal/session"
)

// Requirement is what a view asks of the session.
type Requirement int

const (
	None Requirement = iota
	Authenticated
	SuperAdmin
)

// Decision is the outcome for one navigation.
type Decision int

const (
	Render Decision = iota
	RedirectLogin
	RedirectDashboard
	Defer
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect-login"
	case RedirectDashboard:
		return "redirect-dashboard"
	case Defer:
		return "defer"
	}
	return "unknown"
}

// Snapshot is the part of the session state a decision depends on.
type Snapshot struct {
	State         session.State
	Authenticated bool
	SuperAdmin    bool
}

// Decide maps a requirement and a session snapshot to a decision.  Nothing
// is decided while the session is still initializing.
func Decide(req Requirement, st Snapshot) Decision {
	if req == None {
		return Render
	}
	if st.State == session.StateInitializing {
		return Defer
	}
	if !st.Authenticated {
		return RedirectLogin
	}
	if req == SuperAdmin && !st.SuperAdmin {
		return RedirectDashboard
	}
	return Render
}

// Subject is the session state the middleware reads.  *session.Store
// implements it.
type Subject interface {
	State() session.State
	Wait(ctx context.Context) error
	IsAuthenticated() bool
	IsSuperAdmin() bool
}

// Resolver finds the subject of a request, or nil when the request carries
// no session.
type Resolver func(c echo.Context) Subject

// Redirect targets.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

func snapshot(s Subject) Snapshot {
	if s == nil {
		return Snapshot{State: session.StateReady}
	}
	return Snapshot{State: s.State(), Authenticated: s.IsAuthenticated(), SuperAdmin: s.IsSuperAdmin()}
}

// Require returns middleware that lets a request through only when req is
// met.  A session still initializing is waited for, bounded by the request
// context.
func Require(req Requirement, resolve Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject := resolve(c)
			d := Decide(req, snapshot(subject))
			if d == Defer {
				if err := subject.Wait(c.Request().Context()); err != nil {
					return echo.NewHTTPError(http.StatusServiceUnavailable, "session is still loading").SetInternal(err)
				}
				d = Decide(req, snapshot(subject))
			}
			switch d {
			case RedirectLogin:
				return c.Redirect(http.StatusFound, LoginPath)
			case RedirectDashboard:
				return c.Redirect(http.StatusFound, DashboardPath)
			}
			return next(c)
		}
	}
}
