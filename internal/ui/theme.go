// Package ui provides the flasher window and its dialogs.
//
// This file defines a compact Fyne theme with a selectable light/dark variant.

package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// FlasherTheme wraps the default Fyne theme with compact sizing and an
// optional forced variant.
type FlasherTheme struct {
	base    fyne.Theme
	variant fyne.ThemeVariant
	forced  bool
}

// NewFlasherTheme creates a theme for a config theme name: "light",
// "dark" or anything else for the system variant.
func NewFlasherTheme(name string) *FlasherTheme {
	t := &FlasherTheme{base: theme.DefaultTheme()}
	t.SetVariantName(name)
	return t
}

// SetVariantName updates the variant from a config theme name.
func (t *FlasherTheme) SetVariantName(name string) {
	switch name {
	case "light":
		t.variant, t.forced = theme.VariantLight, true
	case "dark":
		t.variant, t.forced = theme.VariantDark, true
	default:
		t.forced = false
	}
}

// Color delegates to the base theme, overriding the variant when forced.
func (t *FlasherTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	if t.forced {
		variant = t.variant
	}
	return t.base.Color(name, variant)
}

// Font delegates to the base theme.
func (t *FlasherTheme) Font(style fyne.TextStyle) fyne.Resource {
	return t.base.Font(style)
}

// Icon delegates to the base theme.
func (t *FlasherTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return t.base.Icon(name)
}

// Size returns slightly compact sizes so the form and the log fit a
// laptop screen.
func (t *FlasherTheme) Size(name fyne.ThemeSizeName) float32 {
	switch name {
	case theme.SizeNameText:
		return 13
	case theme.SizeNameCaptionText:
		return 10
	case theme.SizeNameHeadingText:
		return 20
	case theme.SizeNameSubHeadingText:
		return 15
	case theme.SizeNamePadding:
		return 3
	case theme.SizeNameInnerPadding:
		return 6
	default:
		return t.base.Size(name)
	}
}
