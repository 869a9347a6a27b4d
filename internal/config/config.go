// Package config handles configuration loading from TOML files and
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Sync   SyncConfig   `toml:"sync"`
	Screen ScreenConfig `toml:"screen"`
	Log    LogConfig    `toml:"log"`
	Trace  TraceConfig  `toml:"trace"`
}

// EngineConfig holds the text engine connection settings.
type EngineConfig struct {
	// Addr is the engine endpoint: a unix socket path or host:port.
	Addr string `toml:"addr"`
	// Command launches an engine when Addr is empty.
	Command []string `toml:"command"`
}

// SyncConfig holds buffer synchronization settings.
type SyncConfig struct {
	// IdleDrainMS bounds how long the edit drain loop sleeps without work.
	IdleDrainMS int `toml:"idle_drain_ms"`
}

// IdleDrainOrDefault returns the drain interval or 1s if unset.
func (s SyncConfig) IdleDrainOrDefault() time.Duration {
	if s.IdleDrainMS <= 0 {
		return time.Second
	}
	return time.Duration(s.IdleDrainMS) * time.Millisecond
}

// ScreenConfig holds redraw decoder settings.
type ScreenConfig struct {
	GutterWidth    int    `toml:"gutter_width"`
	CmdlineDelayMS int    `toml:"cmdline_delay_ms"`
	OOBRowLimit    int    `toml:"oob_row_limit"`
	GutterStyle    string `toml:"gutter_style"`
	// Theme is the Chroma style used to resolve named highlight groups
	// that arrive without explicit colors.
	Theme string `toml:"theme"`
}

// GutterWidthOrDefault returns the gutter column width or 8 if unset.
func (s ScreenConfig) GutterWidthOrDefault() int {
	if s.GutterWidth <= 0 {
		return 8
	}
	return s.GutterWidth
}

// CmdlineDelayOrDefault returns the command line debounce or 50ms if unset.
func (s ScreenConfig) CmdlineDelayOrDefault() time.Duration {
	if s.CmdlineDelayMS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(s.CmdlineDelayMS) * time.Millisecond
}

// OOBRowLimitOrDefault returns the out-of-bounds row warning cap or 200.
func (s ScreenConfig) OOBRowLimitOrDefault() int {
	if s.OOBRowLimit <= 0 {
		return 200
	}
	return s.OOBRowLimit
}

// GutterStyleOrDefault returns the gutter highlight group name or "LineNr".
func (s ScreenConfig) GutterStyleOrDefault() string {
	if s.GutterStyle == "" {
		return "LineNr"
	}
	return s.GutterStyle
}

// ThemeOrDefault returns the highlight theme or "vulcan" if unset.
func (s ScreenConfig) ThemeOrDefault() string {
	if s.Theme == "" {
		return "vulcan"
	}
	return s.Theme
}

// LogConfig holds logging settings.
type LogConfig struct {
	// File is the log destination; stderr when empty.
	File  string `toml:"file"`
	Level string `toml:"level"`
}

// LevelOrDefault returns the log level or "info" if unset.
func (l LogConfig) LevelOrDefault() string {
	if l.Level == "" {
		return "info"
	}
	return l.Level
}

// TraceConfig holds activity journal settings.
type TraceConfig struct {
	// Path enables the SQLite journal when set.
	Path string `toml:"path"`
}

// Load reads configuration from a TOML file and applies environment
// variable overrides. A missing path (or a path that does not exist)
// yields defaults, so the bridge runs unconfigured.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.Addr != "" && len(c.Engine.Command) > 0 {
		errs = append(errs, errors.New("engine: addr and command are mutually exclusive"))
	}
	switch c.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level=%q is not a known level", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TETHER_ENGINE_ADDR"); v != "" {
		cfg.Engine.Addr = v
	}
	if v := os.Getenv("TETHER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TETHER_TRACE_PATH"); v != "" {
		cfg.Trace.Path = v
	}
}
