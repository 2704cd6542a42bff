package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is named explicitly. It may be absent.
const DefaultPath = "rebook.yaml"

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "REBOOK_"

// Config holds runtime settings for the CLI and the local server.
type Config struct {
	DataDir                 string        `yaml:"dataDir"                 env:"DATA_DIR"`
	LogLevel                string        `yaml:"logLevel"                env:"LOG_LEVEL"`
	LogFormat               string        `yaml:"logFormat"               env:"LOG_FORMAT"`
	Host                    string        `yaml:"host"                    env:"HOST"`
	Port                    string        `yaml:"port"                    env:"PORT"`
	ProgressDebounce        time.Duration `yaml:"progressDebounce"        env:"PROGRESS_DEBOUNCE"`
	ImportConcurrency       int           `yaml:"importConcurrency"       env:"IMPORT_CONCURRENCY"`
	MaxImportBytes          int64         `yaml:"maxImportBytes"          env:"MAX_IMPORT_BYTES"`
	UniqueBookmarkPositions bool          `yaml:"uniqueBookmarkPositions" env:"UNIQUE_BOOKMARK_POSITIONS"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:           "./data",
		LogLevel:          "info",
		LogFormat:         "text",
		Host:              "localhost",
		Port:              "6894",
		ProgressDebounce:  time.Second,
		ImportConcurrency: 4,
		MaxImportBytes:    256 << 20,
	}
}

// Load reads config from path on top of the defaults, then applies REBOOK_*
// environment overrides. An empty path means DefaultPath, which is optional;
// a file named explicitly must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: dataDir is required")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("config: port is required (set in rebook.yaml or REBOOK_PORT)")
	}
	if c.ProgressDebounce <= 0 {
		return errors.New("config: progressDebounce must be > 0")
	}
	if c.ImportConcurrency < 1 {
		return errors.New("config: importConcurrency must be >= 1")
	}
	if c.MaxImportBytes < 0 {
		return errors.New("config: maxImportBytes must be >= 0 (0 disables the limit)")
	}
	return nil
}

// DBPath is the SQLite file inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "rebook.db")
}

// IndexPath is the bleve index directory inside DataDir.
func (c Config) IndexPath() string {
	return filepath.Join(c.DataDir, "bleve")
}

// Addr is the listen address for the local server.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}
