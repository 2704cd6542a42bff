package settings

import "fmt"

// Declarations maps CSS properties to values.
type Declarations map[string]string

// Styles is the override set applied to rendered content.
type Styles struct {
	// Rules maps selectors to declarations.
	Rules      map[string]Declarations
	Color      string
	Background string
	Flow       ViewMode
}

// TextSelector covers the elements forced to inherit body typography.
const TextSelector = "p, div, span, li, td, th, h1, h2, h3, h4, h5, h6"

var themeColors = map[Theme]struct{ color, background string }{
	ThemeLight: {color: "#1a1a2e", background: "#ffffff"},
	ThemeSepia: {color: "#5b4636", background: "#f4ecd8"},
}

const (
	serifStack = `"Noto Serif KR", Georgia, "Times New Roman", serif`
	sansStack  = `Pretendard, "Noto Sans KR", "Apple SD Gothic Neo", -apple-system, "Helvetica Neue", sans-serif`
)

// FontStack returns the CSS font-family list for a family.
func FontStack(family FontFamily) string {
	if family == FontSansSerif {
		return sansStack
	}
	return serifStack
}

// Styles builds the renderer overrides for s.
func (s Settings) Styles() Styles {
	s = s.Normalize()
	colors := themeColors[s.Theme]

	return Styles{
		Rules: map[string]Declarations{
			"body": {
				"font-size":   fmt.Sprintf("%dpx !important", s.FontSize),
				"line-height": fmt.Sprintf("%g !important", s.LineHeight),
				"font-family": FontStack(s.FontFamily) + " !important",
			},
			TextSelector: {
				"font-size":   "inherit !important",
				"line-height": "inherit !important",
				"font-family": "inherit !important",
			},
		},
		Color:      colors.color,
		Background: colors.background,
		Flow:       s.ViewMode,
	}
}
