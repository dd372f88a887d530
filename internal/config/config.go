// Package config loads engine settings from .grokctx.yaml, GROKCTX_*
// environment variables, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/NYTEMODEONLY/grok-code-sub002/internal/autocontext"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/budget"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/logging"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/optimize"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/relevance"
	"github.com/NYTEMODEONLY/grok-code-sub002/internal/suggest"
)

// FileName is the config file looked up in the project root.
const FileName = ".grokctx.yaml"

// EnvPrefix prefixes environment overrides, e.g. GROKCTX_WORKERS or
// GROKCTX_AUTOCONTEXT_COOLDOWN.
const EnvPrefix = "GROKCTX"

// Config is the complete engine configuration.
type Config struct {
	Discover     Discover           `mapstructure:"discover" yaml:"discover"`
	Relevance    relevance.Weights  `mapstructure:"relevance" yaml:"relevance"`
	Optimizer    optimize.Config    `mapstructure:"optimizer" yaml:"optimizer"`
	Budget       budget.Config      `mapstructure:"budget" yaml:"budget"`
	Suggest      suggest.Settings   `mapstructure:"suggest" yaml:"suggest"`
	AutoContext  autocontext.Config `mapstructure:"autoContext" yaml:"autoContext"`
	ParseTimeout time.Duration      `mapstructure:"parseTimeout" yaml:"parseTimeout"`
	// Workers sizes the parse and scoring pools. Zero means GOMAXPROCS.
	Workers int            `mapstructure:"workers" yaml:"workers"`
	Logging logging.Config `mapstructure:"logging" yaml:"logging"`
}

// Discover controls which files are scanned.
type Discover struct {
	Include     []string `mapstructure:"include" yaml:"include"`
	Exclude     []string `mapstructure:"exclude" yaml:"exclude"`
	MaxFileSize int64    `mapstructure:"maxFileSize" yaml:"maxFileSize"`
	// AliasRoots resolve "@/" and "~/" imports, relative to the root.
	AliasRoots []string `mapstructure:"aliasRoots" yaml:"aliasRoots"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Discover: Discover{
			Include:     []string{},
			Exclude:     []string{},
			MaxFileSize: 1_000_000,
			AliasRoots:  []string{"src", "."},
		},
		Relevance:    relevance.DefaultWeights(),
		Optimizer:    optimize.DefaultConfig(),
		Budget:       budget.DefaultConfig(),
		Suggest:      suggest.DefaultSettings(),
		AutoContext:  autocontext.DefaultConfig(),
		ParseTimeout: 5 * time.Second,
		Workers:      0,
		Logging:      logging.DefaultConfig(),
	}
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

// Validate checks every section and returns the first problem as a
// *ConfigError.
func (c Config) Validate() error {
	checks := []struct {
		field string
		err   error
	}{
		{"relevance", c.Relevance.Validate()},
		{"optimizer", c.Optimizer.Validate()},
		{"budget", c.Budget.Validate()},
		{"suggest", c.Suggest.Validate()},
		{"autoContext", c.AutoContext.Validate()},
		{"logging", c.Logging.Validate()},
	}
	for _, ch := range checks {
		if ch.err != nil {
			return &ConfigError{Field: ch.field, Message: ch.err.Error()}
		}
	}
	switch {
	case c.ParseTimeout <= 0:
		return &ConfigError{Field: "parseTimeout", Message: fmt.Sprintf("must be positive, got %s", c.ParseTimeout)}
	case c.Workers < 0:
		return &ConfigError{Field: "workers", Message: fmt.Sprintf("must not be negative, got %d", c.Workers)}
	case c.Discover.MaxFileSize < 0:
		return &ConfigError{Field: "discover.maxFileSize", Message: fmt.Sprintf("must not be negative, got %d", c.Discover.MaxFileSize)}
	}
	return nil
}

// EffectiveWorkers resolves a zero worker count to GOMAXPROCS.
func (c Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Load reads path if given, otherwise FileName in root when present, then
// applies GROKCTX_* overrides on top of Default. A missing default file is
// not an error; a missing explicit path is.
func Load(root, path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, Default()); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	} else {
		candidate := filepath.Join(root, FileName)
		if _, err := os.Stat(candidate); err == nil {
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("reading %s: %w", candidate, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("checking %s: %w", candidate, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &ConfigError{Field: "(file)", Message: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of def so file values merge over it and
// environment variables can override any key.
func setDefaults(v *viper.Viper, def Config) error {
	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decoding defaults: %w", err)
	}
	flatten("", tree, v.SetDefault)
	return nil
}

func flatten(prefix string, tree map[string]any, set func(string, any)) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}

// Write encodes cfg as YAML to path.
func Write(path string, cfg Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Marshal encodes cfg as YAML with a short header.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	header := "# grokctx configuration. Environment variables prefixed with " + EnvPrefix + "_ override any key.\n"
	return append([]byte(header), data...), nil
}
