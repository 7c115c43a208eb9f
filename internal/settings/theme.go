// Package settings implements the settings screen: the password change
// form and the theme preferences kept next to the session token.
package settings

import (
	"context"
	"fmt"

	"github.com/iliyamo/ems-console/internal/apperr"
	"github.com/iliyamo/ems-console/internal/session"
)

// Mode is the light/dark switch.
type Mode string

const (
	ModeLight Mode = "light"
	ModeDark  Mode = "dark"
)

// Color is the accent palette.
type Color string

const (
	ColorOcean   Color = "ocean"
	ColorEmerald Color = "emerald"
	ColorSunset  Color = "sunset"
	ColorRose    Color = "rose"
	ColorSlate   Color = "slate"
)

// Swatch describes a color choice for the picker.
type Swatch struct {
	Color   Color  `json:"color"`
	Name    string `json:"name"`
	Preview string `json:"preview"`
}

// Palette lists the colors in picker order.
func Palette() []Swatch {
	return []Swatch{
		{ColorOcean, "Ocean Blue", "hsl(210, 100%, 50%)"},
		{ColorEmerald, "Emerald", "hsl(160, 84%, 39%)"},
		{ColorSunset, "Sunset", "hsl(25, 95%, 53%)"},
		{ColorRose, "Rose", "hsl(350, 89%, 60%)"},
		{ColorSlate, "Slate", "hsl(215, 20%, 45%)"},
	}
}

func (m Mode) valid() bool { return m == ModeLight || m == ModeDark }

func (c Color) valid() bool {
	for _, s := range Palette() {
		if s.Color == c {
			return true
		}
	}
	return false
}

// Theme is the pair of preferences applied to every console view.
type Theme struct {
	Mode  Mode  `json:"mode"`
	Color Color `json:"color"`
}

// DefaultTheme is used for keys never written or holding unknown values.
var DefaultTheme = Theme{Mode: ModeLight, Color: ColorOcean}

// Prefs reads and writes the theme of one session.
type Prefs struct {
	storage session.Storage
}

// NewPrefs binds preferences to a session's storage.
func NewPrefs(s session.Storage) *Prefs { return &Prefs{storage: s} }

// Theme returns the stored theme, falling back to DefaultTheme per key.
func (p *Prefs) Theme(ctx context.Context) (Theme, error) {
	t := DefaultTheme
	mode, err := p.storage.Get(ctx, session.ThemeModeKey)
	if err != nil {
		return t, fmt.Errorf("read theme mode: %w", err)
	}
	if m := Mode(mode); m.valid() {
		t.Mode = m
	}
	color, err := p.storage.Get(ctx, session.ThemeColorKey)
	if err != nil {
		return t, fmt.Errorf("read theme color: %w", err)
	}
	if c := Color(color); c.valid() {
		t.Color = c
	}
	return t, nil
}

// SetTheme stores the non-empty fields of t and returns the resulting
// theme.  Unknown values are a validation error and nothing is written.
func (p *Prefs) SetTheme(ctx context.Context, t Theme) (Theme, error) {
	v := apperr.NewValidationError()
	if t.Mode != "" && !t.Mode.valid() {
		v.Add("mode", fmt.Sprintf("Unknown theme mode %q", t.Mode))
	}
	if t.Color != "" && !t.Color.valid() {
		v.Add("color", fmt.Sprintf("Unknown theme color %q", t.Color))
	}
	if err := v.OrNil(); err != nil {
		return Theme{}, err
	}

	if t.Mode != "" {
		if err := p.storage.Set(ctx, session.ThemeModeKey, string(t.Mode)); err != nil {
			return Theme{}, fmt.Errorf("write theme mode: %w", err)
		}
	}
	if t.Color != "" {
		if err := p.storage.Set(ctx, session.ThemeColorKey, string(t.Color)); err != nil {
			return Theme{}, fmt.Errorf("write theme color: %w", err)
		}
	}
	return p.Theme(ctx)
}

// ToggleMode flips between light and dark.
func (p *Prefs) ToggleMode(ctx context.Context) (Theme, error) {
	cur, err := p.Theme(ctx)
	if err != nil {
		return Theme{}, err
	}
	next := ModeDark
	if cur.Mode == ModeDark {
		next = ModeLight
	}
	return p.SetTheme(ctx, Theme{Mode: next})
}

// CopyTheme carries the theme keys from one session's storage to another,
// so preferences survive the session id change at login.
func CopyTheme(ctx context.Context, from, to session.Storage) error {
	for _, k := range []string{session.ThemeModeKey, session.ThemeColorKey} {
		v, err := from.Get(ctx, k)
		if err != nil {
			return err
		}
		if v == "" {
			continue
		}
		if err := to.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}
