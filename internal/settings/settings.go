package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/aduong/rebook/internal/logging"
	"github.com/aduong/rebook/internal/storage"
)

// Key is the preference key reader settings are stored under.
const Key = "rebook-settings"

// Version is the current persisted settings version.
const Version = 4

// Bounds for numeric settings.
const (
	MinFontSize   = 12
	MaxFontSize   = 28
	MinLineHeight = 1.2
	MaxLineHeight = 2.0
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeSepia Theme = "sepia"
)

type FontFamily string

const (
	FontSerif     FontFamily = "serif"
	FontSansSerif FontFamily = "sans-serif"
)

type ViewMode string

const (
	ViewPaginated ViewMode = "paginated"
	ViewScrolled  ViewMode = "scrolled"
)

// Settings are the reader's display preferences.
type Settings struct {
	FontSize   int        `json:"fontSize"`
	Theme      Theme      `json:"theme"`
	LineHeight float64    `json:"lineHeight"`
	FontFamily FontFamily `json:"fontFamily"`
	ViewMode   ViewMode   `json:"viewMode"`
}

// Default returns the settings used before anything is saved.
func Default() Settings {
	return Settings{
		FontSize:   16,
		Theme:      ThemeLight,
		LineHeight: 1.6,
		FontFamily: FontSerif,
		ViewMode:   ViewPaginated,
	}
}

// NormalizeTheme maps anything other than sepia, including the retired dark
// theme, to light.
func NormalizeTheme(theme Theme) Theme {
	if theme == ThemeSepia {
		return ThemeSepia
	}
	return ThemeLight
}

// Normalize clamps numeric values into range and replaces unknown enum values.
func (s Settings) Normalize() Settings {
	def := Default()

	if s.FontSize == 0 {
		s.FontSize = def.FontSize
	}
	s.FontSize = min(max(s.FontSize, MinFontSize), MaxFontSize)

	if s.LineHeight == 0 || math.IsNaN(s.LineHeight) {
		s.LineHeight = def.LineHeight
	}
	s.LineHeight = math.Round(min(max(s.LineHeight, MinLineHeight), MaxLineHeight)*10) / 10

	s.Theme = NormalizeTheme(s.Theme)

	if s.FontFamily != FontSerif && s.FontFamily != FontSansSerif {
		s.FontFamily = def.FontFamily
	}
	if s.ViewMode != ViewPaginated && s.ViewMode != ViewScrolled {
		s.ViewMode = def.ViewMode
	}
	return s
}

// Scrolled reports whether content flows vertically instead of by page.
func (s Settings) Scrolled() bool {
	return s.ViewMode == ViewScrolled
}

// Decode reads a persisted settings document of any version. Stored fields
// are overlaid on the defaults, so older documents missing newer fields
// still decode.
func Decode(data []byte) (Settings, error) {
	s := Default()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("decode settings: %w", err)
	}
	return s.Normalize(), nil
}

// PreferenceStore persists versioned preference documents.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (storage.Preference, bool, error)
	Put(ctx context.Context, pref storage.Preference) error
}

// Store loads and saves settings through a PreferenceStore.
type Store struct {
	prefs  PreferenceStore
	logger *slog.Logger
}

// NewStore creates a settings store.
func NewStore(prefs PreferenceStore, logger *slog.Logger) *Store {
	return &Store{prefs: prefs, logger: logging.OrDefault(logger)}
}

// Load returns the saved settings, or the defaults when none are saved.
// A stored document that cannot be decoded also yields the defaults.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	pref, ok, err := s.prefs.Get(ctx, Key)
	if err != nil {
		return Default(), fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return Default(), nil
	}
	settings, err := Decode(pref.Value)
	if err != nil {
		s.logger.Warn("stored settings unreadable, using defaults", "version", pref.Version, "error", err)
		return Default(), nil
	}
	return settings, nil
}

// Save normalises and stores settings at the current version, returning
// what was stored.
func (s *Store) Save(ctx context.Context, settings Settings) (Settings, error) {
	settings = settings.Normalize()
	data, err := json.Marshal(settings)
	if err != nil {
		return settings, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.prefs.Put(ctx, storage.Preference{Key: Key, Version: Version, Value: data}); err != nil {
		return settings, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}
