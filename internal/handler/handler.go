// Package handler implements the console's HTTP endpoints.  Handlers stay
// thin: they decode the request, call into the session's controllers and
// render the result.  Failures are returned as errors and rendered by
// ErrorHandler.
package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/audit"
	"github.com/iliyamo/ems-console/internal/console"
	"github.com/iliyamo/ems-console/internal/middleware"
	"github.com/iliyamo/ems-console/internal/model"
)

// Handler bundles the dependencies shared by all console endpoints.
type Handler struct {
	Sessions *console.Registry
	Cookie   middleware.Cookie
	Audit    audit.Recorder
	Log      *zap.Logger
	Now      func() time.Time
}

// New builds a Handler.  A nil recorder records nothing.
func New(reg *console.Registry, ck middleware.Cookie, rec audit.Recorder, log *zap.Logger) *Handler {
	if reg == nil {
		panic("nil registry passed to handler.New")
	}
	if rec == nil {
		rec = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Sessions: reg, Cookie: ck, Audit: rec, Log: log, Now: time.Now}
}

// current returns the signed-in session of the request.  The guard has
// normally turned anonymous requests away already; a session that lost its
// identity since then is reported as unauthorized.
func current(c echo.Context) (*console.Session, model.Identity, error) {
	s := middleware.SessionFrom(c)
	if s == nil {
		return nil, model.Identity{}, apperr.ErrUnauthorized
	}
	id, ok := s.Store.Identity()
	if !ok {
		return nil, model.Identity{}, apperr.ErrUnauthorized
	}
	return s, id, nil
}

func (h *Handler) record(ctx context.Context, actor model.Identity, action string) {
	_ = h.Audit.Record(context.WithoutCancel(ctx), audit.Entry{
		At:         h.Now().UTC(),
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Action:     action,
	})
}
