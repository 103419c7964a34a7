package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"taskit/internal/util"
)

// Config holds the runtime settings of the server.
type Config struct {
	LogLevel     string        `yaml:"log_level" env:"TASKIT_LOG_LEVEL" env-default:"INFO"`
	Addr         string        `yaml:"addr" env:"TASKIT_ADDR" env-default:":8080"`
	Storage      string        `yaml:"storage" env:"TASKIT_STORAGE" env-default:"sqlite"`
	DBPath       string        `yaml:"db_path" env:"TASKIT_DB_PATH" env-default:"data/taskit.db"`
	SprintLength time.Duration `yaml:"sprint_length" env:"TASKIT_SPRINT_LENGTH" env-default:"168h"`
	Analytics    bool          `yaml:"analytics" env:"TASKIT_ANALYTICS"`
}

// Load reads the YAML file at path and then the environment. A missing file
// or an empty path means environment and defaults only.
func Load(path string) (Config, error) {
	// cleanenv applies env-default over a false read from the file, so bool defaults are set here.
	cfg := Config{Analytics: true}

	if err := read(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func read(path string, cfg *Config) error {
	if path != "" {
		err := cleanenv.ReadConfig(path, cfg)
		if err == nil {
			return nil
		}
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	c.DBPath = util.ExpandHome(c.DBPath)
	switch c.Storage {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	if c.Storage == "sqlite" && c.DBPath == "" {
		return fmt.Errorf("db_path is required for sqlite storage")
	}
	if c.SprintLength <= 0 {
		return fmt.Errorf("sprint_length must be positive")
	}
	return nil
}

// Level maps LogLevel to a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
