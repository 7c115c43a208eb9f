package settings_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/gateway"
	"github.com/iliyamo/ems-console/internal/gateway/gatewaytest"
	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/session"
	"github.com/iliyamo/ems-console/internal/settings"
)

func TestThemeDefaults(t *testing.T) {
	ctx := context.Background()
	st := session.NewMemoryStorage()
	require.NoError(t, st.Set(ctx, session.ThemeColorKey, "neon"))

	th, err := settings.NewPrefs(st).Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultTheme, th)
}

func TestSetTheme(t *testing.T) {
	ctx := context.Background()
	st := session.NewMemoryStorage()
	p := settings.NewPrefs(st)

	th, err := p.SetTheme(ctx, settings.Theme{Color: settings.ColorRose})
	require.NoError(t, err)
	assert.Equal(t, settings.Theme{Mode: settings.ModeLight, Color: settings.ColorRose}, th)

	raw, _ := st.Get(ctx, session.ThemeColorKey)
	assert.Equal(t, "rose", raw)
	raw, _ = st.Get(ctx, session.ThemeModeKey)
	assert.Empty(t, raw)

	th, err = p.ToggleMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.ModeDark, th.Mode)
	th, err = p.ToggleMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.ModeLight, th.Mode)
}

func TestSetThemeRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	st := session.NewMemoryStorage()

	_, err := settings.NewPrefs(st).SetTheme(ctx, settings.Theme{Mode: "dim", Color: settings.ColorSlate})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("mode"))

	raw, _ := st.Get(ctx, session.ThemeColorKey)
	assert.Empty(t, raw, "nothing is written when any value is invalid")
}

func TestCopyTheme(t *testing.T) {
	ctx := context.Background()
	from, to := session.NewMemoryStorage(), session.NewMemoryStorage()
	require.NoError(t, from.Set(ctx, session.ThemeModeKey, "dark"))
	require.NoError(t, from.Set(ctx, session.TokenKey, "secret"))

	require.NoError(t, settings.CopyTheme(ctx, from, to))
	th, err := settings.NewPrefs(to).Theme(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.ModeDark, th.Mode)
	tok, _ := to.Get(ctx, session.TokenKey)
	assert.Empty(t, tok)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name string
		form settings.PasswordForm
		want map[string]string
	}{
		{
			name: "valid",
			form: settings.PasswordForm{OldPassword: "Old-pass1", NewPassword: "N3w pass!", ConfirmNewPassword: "N3w pass!"},
		},
		{
			name: "short and unconfirmed",
			form: settings.PasswordForm{OldPassword: "Ab1!", NewPassword: "Abcdefg1!"},
			want: map[string]string{
				"oldPassword":        "Password must be at least 8 characters",
				"confirmNewPassword": "Please confirm your password",
			},
		},
		{
			name: "weak and mismatched",
			form: settings.PasswordForm{OldPassword: "Old-pass1", NewPassword: "alllowercase", ConfirmNewPassword: "other"},
			want: map[string]string{
				"newPassword":        "Must contain uppercase, lowercase, number, and special character",
				"confirmNewPassword": "Passwords don't match",
			},
		},
		{
			name: "underscore is not special",
			form: settings.PasswordForm{OldPassword: "Old_pass1", NewPassword: "N3w-pass!", ConfirmNewPassword: "N3w-pass!"},
			want: map[string]string{
				"oldPassword": "Must contain uppercase, lowercase, number, and special character",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := settings.ValidatePassword(tt.form)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.want, ve.Fields)
		})
	}
}

func newGateway(t *testing.T, srv *gatewaytest.Server) *gateway.Client {
	t.Helper()
	c, err := gateway.New(srv.URL, gateway.NewHTTPClient(5*time.Second),
		gateway.WithToken(func() string { return "tok" }))
	require.NoError(t, err)
	return c
}

func TestChangePassword(t *testing.T) {
	srv := gatewaytest.New()
	defer srv.Close()
	srv.Users["admin@ems.io"] = "Old-pass1"
	api := newGateway(t, srv)
	ctx := context.Background()

	form := settings.PasswordForm{OldPassword: "Old-pass1", NewPassword: "N3w-pass!", ConfirmNewPassword: "N3w-pass!"}
	require.NoError(t, settings.ChangePassword(ctx, api, "admin@ems.io", form))
	assert.Equal(t, "N3w-pass!", srv.Users["admin@ems.io"])

	err := settings.ChangePassword(ctx, api, "admin@ems.io", form)
	var se *gateway.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
}

func TestChangePasswordInvalidNeverCallsServer(t *testing.T) {
	srv := gatewaytest.New()
	defer srv.Close()

	err := settings.ChangePassword(context.Background(), newGateway(t, srv), "a@b.io", settings.PasswordForm{})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, srv.CallsTo(http.MethodPost, "/api/v1/Auth/change-password"))
}

type refusing struct{}

func (refusing) ChangePassword(context.Context, model.ChangePasswordRequest) (bool, error) {
	return false, nil
}

func TestChangePasswordRefused(t *testing.T) {
	form := settings.PasswordForm{OldPassword: "Old-pass1", NewPassword: "N3w-pass!", ConfirmNewPassword: "N3w-pass!"}
	err := settings.ChangePassword(context.Background(), refusing{}, "a@b.io", form)
	assert.True(t, errors.Is(err, settings.ErrPasswordNotChanged))
}
