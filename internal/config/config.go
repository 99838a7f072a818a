// Package config loads the causetdb YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/causetdb/internal/storage/engines"
	"github.com/roach88/causetdb/internal/tx"
)

// Config is the whole configuration file.
type Config struct {
	Storage    Storage    `yaml:"storage"`
	Transactor Transactor `yaml:"transactor"`
	Log        Log        `yaml:"log"`
}

// Storage selects the engine and where it keeps its data.
type Storage struct {
	// Engine is one of sqlite, bolt, badger or memory.
	Engine string `yaml:"engine"`
	// Path is a file for sqlite and bolt, a directory for badger.
	Path string `yaml:"path"`
}

// Transactor holds transaction behaviour knobs.
type Transactor struct {
	// LookupRefPolicy is "fail" or "create".
	LookupRefPolicy string `yaml:"lookup_ref_policy"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage:    Storage{Engine: engines.SQLite, Path: "causet.db"},
		Transactor: Transactor{LookupRefPolicy: "fail"},
		Log:        Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if !engines.Valid(c.Storage.Engine) {
		return fmt.Errorf("storage.engine: unknown engine %q (want one of %v)", c.Storage.Engine, engines.Names())
	}
	if c.Storage.Path == "" && (c.Storage.Engine == engines.SQLite || c.Storage.Engine == engines.Bolt) {
		return fmt.Errorf("storage.path is required for engine %s", c.Storage.Engine)
	}
	if _, err := tx.ParseLookupRefPolicy(c.Transactor.LookupRefPolicy); err != nil {
		return fmt.Errorf("transactor.lookup_ref_policy: %w", err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LookupRefs returns the parsed lookup ref policy.
func (c *Config) LookupRefs() tx.LookupRefPolicy {
	p, _ := tx.ParseLookupRefPolicy(c.Transactor.LookupRefPolicy)
	return p
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds a logger writing to w.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
