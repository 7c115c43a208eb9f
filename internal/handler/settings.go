package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ems-console/internal/settings"
)

type settingsView struct {
	Email   string            `json:"email"`
	Theme   settings.Theme    `json:"theme"`
	Palette []settings.Swatch `json:"palette"`
}

// Settings returns the account and appearance settings.
func (h *Handler) Settings(c echo.Context) error {
	s, id, err := current(c)
	if err != nil {
		return err
	}
	theme, err := s.Prefs.Theme(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settingsView{Email: id.Email, Theme: theme, Palette: settings.Palette()})
}

// SetTheme stores the mode and/or color sent.
func (h *Handler) SetTheme(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	var req settings.Theme
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	theme, err := s.Prefs.SetTheme(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, theme)
}

// ToggleTheme flips between light and dark mode.
func (h *Handler) ToggleTheme(c echo.Context) error {
	s, _, err := current(c)
	if err != nil {
		return err
	}
	theme, err := s.Prefs.ToggleMode(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, theme)
}

// ChangePassword submits the change password form for the signed-in user.
func (h *Handler) ChangePassword(c echo.Context) error {
	s, id, err := current(c)
	if err != nil {
		return err
	}
	var form settings.PasswordForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := settings.ChangePassword(c.Request().Context(), s.API, id.Email, form); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully"})
}
