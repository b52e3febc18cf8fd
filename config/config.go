// Package config handles avmcore.toml player configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "avmcore.toml"

// Config represents an avmcore.toml file.
type Config struct {
	Player  Player  `toml:"player"`
	Limits  Limits  `toml:"limits"`
	GC      GC      `toml:"gc"`
	Storage Storage `toml:"storage"`
	Text    Text    `toml:"text"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// Player configures the host driver.
type Player struct {
	SWFVersion   int     `toml:"swf_version"`
	FrameRate    float64 `toml:"frame_rate"`
	MaxCallDepth int     `toml:"max_call_depth"`
	Seed         int64   `toml:"random_seed"`
}

// Limits configures the execution budget.
type Limits struct {
	MaxActions     int `toml:"max_actions"`
	MaxExecutionMS int `toml:"max_execution_ms"`
}

// GC configures the object arena.
type GC struct {
	Threshold int `toml:"threshold"`
}

// Storage configures the SharedObject backend.
type Storage struct {
	Path string `toml:"path"`
}

// Text configures legacy string decoding.
type Text struct {
	LegacyCodepage string `toml:"legacy_codepage"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Player.SWFVersion == 0 {
		c.Player.SWFVersion = 10
	}
	if c.Player.FrameRate == 0 {
		c.Player.FrameRate = 24
	}
	if c.Player.MaxCallDepth == 0 {
		c.Player.MaxCallDepth = 256
	}
	if c.Limits.MaxActions == 0 {
		c.Limits.MaxActions = 10000
	}
	if c.Limits.MaxExecutionMS == 0 {
		c.Limits.MaxExecutionMS = 15000
	}
	if c.Text.LegacyCodepage == "" {
		c.Text.LegacyCodepage = "windows-1252"
	}
	if c.Log.Verbosity == 0 {
		c.Log.Verbosity = 1
	}
}

// Validate checks value ranges that toml decoding cannot express.
func (c *Config) Validate() error {
	if c.Player.SWFVersion < 1 || c.Player.SWFVersion > 50 {
		return fmt.Errorf("player.swf_version %d out of range", c.Player.SWFVersion)
	}
	if c.Player.FrameRate <= 0 {
		return fmt.Errorf("player.frame_rate must be positive")
	}
	if c.Limits.MaxActions < 0 || c.Limits.MaxExecutionMS < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	switch c.Text.LegacyCodepage {
	case "windows-1252", "shift_jis", "utf-8":
	default:
		return fmt.Errorf("text.legacy_codepage %q not supported", c.Text.LegacyCodepage)
	}
	return nil
}

// MaxExecution returns the execution deadline as a duration.
func (c *Config) MaxExecution() time.Duration {
	return time.Duration(c.Limits.MaxExecutionMS) * time.Millisecond
}

// Parse decodes configuration from TOML text.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if c.Storage.Path != "" && !filepath.IsAbs(c.Storage.Path) {
		c.Storage.Path = filepath.Join(c.Dir, c.Storage.Path)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find avmcore.toml. It returns the
// defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}
