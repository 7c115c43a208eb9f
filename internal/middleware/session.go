package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ems-console/internal/console"
	"github.com/iliyamo/ems-console/internal/guard"
)

const sessionKey = "ems.session"

// Cookie describes the session cookie.
type Cookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Read returns the session id the request carries, or "".
func (ck Cookie) Read(c echo.Context) string {
	v, err := c.Cookie(ck.Name)
	if err != nil {
		return ""
	}
	return v.Value
}

// Set points the browser at session id.
func (ck Cookie) Set(c echo.Context, id string) {
	c.SetCookie(&http.Cookie{
		Name:     ck.Name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ck.TTL / time.Second),
		HttpOnly: true,
		Secure:   ck.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the session cookie.
func (ck Cookie) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     ck.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   ck.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Sessions resolves the session named by the cookie and stores it in the
// context for the guard and the handlers.  Requests without a known
// session pass through with none.
func Sessions(reg *console.Registry, ck Cookie) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s := reg.Lookup(c.Request().Context(), ck.Read(c)); s != nil {
				c.Set(sessionKey, s)
			}
			return next(c)
		}
	}
}

// SessionFrom returns the session Sessions stored, or nil.
func SessionFrom(c echo.Context) *console.Session {
	s, _ := c.Get(sessionKey).(*console.Session)
	return s
}

// Subject is a guard.Resolver over the session in the context.
func Subject(c echo.Context) guard.Subject {
	if s := SessionFrom(c); s != nil {
		return s.Store
	}
	return nil
}
