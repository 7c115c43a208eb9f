package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/audit"
	"github.com/iliyamo/ems-console/internal/guard"
	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/session"
)

type loginReq struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type loginResp struct {
	User        model.Identity `json:"user"`
	DisplayName string         `json:"displayName"`
	Redirect    string         `json:"redirect"`
}

// Login signs in under a fresh session and points the cookie at it.
func (h *Handler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := session.ValidateCredentials(req.Email, req.Password); err != nil {
		return err
	}

	ctx := c.Request().Context()
	s, id, err := h.Sessions.Login(ctx, h.Cookie.Read(c), req.Email, req.Password)
	if err != nil {
		h.Log.Info("login rejected", zap.String("email", req.Email), zap.Error(err))
		return err
	}
	h.Cookie.Set(c, s.ID)
	h.record(ctx, id, audit.ActionLogin)

	return c.JSON(http.StatusOK, loginResp{User: id, DisplayName: id.DisplayName(), Redirect: guard.DashboardPath})
}

// Logout signs the session out, whatever state it is in, and clears the
// cookie.
func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if _, id, err := current(c); err == nil {
		h.record(ctx, id, audit.ActionLogout)
	}
	h.Sessions.Logout(ctx, h.Cookie.Read(c))
	h.Cookie.Clear(c)
	return c.NoContent(http.StatusNoContent)
}

// LoginPage describes the login form.  A signed-in user is sent on to the
// dashboard instead.
func (h *Handler) LoginPage(c echo.Context) error {
	if _, _, err := current(c); err == nil {
		return c.Redirect(http.StatusFound, guard.DashboardPath)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"action":            "/login",
		"minPasswordLength": session.MinPasswordLength,
	})
}
