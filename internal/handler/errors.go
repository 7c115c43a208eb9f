package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/gateway"
	"github.com/iliyamo/ems-console/internal/guard"
	"github.com/iliyamo/ems-console/internal/middleware"
	"github.com/iliyamo/ems-console/internal/settings"
)

// ErrorHandler renders every error a handler returns.  A session the remote
// service rejected loses its cookie and is sent to the login page.
func ErrorHandler(ck middleware.Cookie, log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var (
			verr   *apperr.ValidationError
			aerr   *apperr.AuthenticationError
			ferr   *apperr.FetchError
			merr   *apperr.MutationError
			serr   *gateway.StatusError
			herr   *echo.HTTPError
			status int
			body   any
		)
		switch {
		case errors.Is(err, apperr.ErrUnauthorized):
			ck.Clear(c)
			if c.Request().Method == http.MethodGet {
				err = c.Redirect(http.StatusFound, guard.LoginPath)
			} else {
				c.Response().Header().Set(echo.HeaderLocation, guard.LoginPath)
				err = c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired", "redirect": guard.LoginPath})
			}
			if err != nil {
				log.Warn("write error response", zap.Error(err))
			}
			return
		case errors.As(err, &verr):
			status, body = http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "fields": verr.Fields}
		case errors.As(err, &aerr):
			status, body = http.StatusUnauthorized, echo.Map{"error": aerr.Message}
		case errors.As(err, &ferr):
			resp := echo.Map{"error": "Failed to fetch tenants"}
			if s := middleware.SessionFrom(c); s != nil {
				resp["list"] = viewOf(s.Tenants.View())
			}
			status, body = http.StatusBadGateway, resp
		case errors.As(err, &merr):
			status, body = mutationStatus(merr), echo.Map{"error": "Failed to " + merr.Op + " tenant", "detail": merr.Err.Error()}
		case errors.Is(err, apperr.ErrNotOffered), errors.Is(err, apperr.ErrNoPendingConfirmation):
			status, body = http.StatusConflict, echo.Map{"error": err.Error()}
		case errors.Is(err, settings.ErrPasswordNotChanged):
			status, body = http.StatusBadRequest, echo.Map{"error": err.Error()}
		case errors.As(err, &serr):
			msg := serr.Message
			if msg == "" {
				msg = http.StatusText(serr.Status)
			}
			status, body = remoteStatus(serr), echo.Map{"error": msg, "traceId": serr.TraceID}
		case errors.As(err, &herr):
			status, body = herr.Code, echo.Map{"error": herr.Message}
		default:
			status, body = http.StatusInternalServerError, echo.Map{"error": "internal error"}
		}

		if status >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}

// mutationStatus passes the service's client errors through, so a rejected
// change keeps its 400, 404 or 422; anything else is a bad gateway.
func mutationStatus(merr *apperr.MutationError) int {
	var serr *gateway.StatusError
	if errors.As(merr.Err, &serr) {
		return remoteStatus(serr)
	}
	return http.StatusBadGateway
}

// remoteStatus passes client errors through and turns server errors into
// a bad gateway.
func remoteStatus(serr *gateway.StatusError) int {
	if serr.Status >= 400 && serr.Status < 500 {
		return serr.Status
	}
	return http.StatusBadGateway
}
