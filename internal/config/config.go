// Package config loads and validates the annosync configuration file.
//
// The file is YAML, validated against an embedded CUE schema before
// decoding so structural mistakes surface with field-level messages
// instead of zero values downstream.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Defaults applied after validation.
const (
	DefaultDatabase   = "annosync"
	DefaultInterval   = 60 * time.Second
	DefaultBatchLimit = 400
)

// Config is the fully resolved configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Remote RemoteConfig `yaml:"remote"`
	Sync   SyncConfig   `yaml:"sync"`
	Events EventsConfig `yaml:"events"`
}

// StoreConfig locates the local SQLite store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig locates the remote record store.
type RemoteConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SyncConfig tunes the coordinator loop.
type SyncConfig struct {
	Interval   string `yaml:"interval"`
	BatchLimit int    `yaml:"batch_limit"`
}

// EventsConfig configures the optional NATS event sink. An empty URL
// disables event publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
}

// Load reads, validates, and decodes the configuration file at path,
// applying defaults for absent optional fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	// Decode to a generic map first so CUE validates exactly what was
	// written, not what Go zero values filled in.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)

	if _, err := cfg.SyncInterval(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SyncInterval parses the configured loop interval.
func (c *Config) SyncInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sync.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid sync interval %q: %w", c.Sync.Interval, err)
	}
	return d, nil
}

// validate unifies the raw document with the embedded schema.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup config schema: %w", err)
	}

	unified := def.Unify(ctx.Encode(raw))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Remote.Database == "" {
		cfg.Remote.Database = DefaultDatabase
	}
	if cfg.Sync.Interval == "" {
		cfg.Sync.Interval = DefaultInterval.String()
	}
	if cfg.Sync.BatchLimit == 0 {
		cfg.Sync.BatchLimit = DefaultBatchLimit
	}
}
