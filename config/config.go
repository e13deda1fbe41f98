// Package config loads the recorder configuration from a YAML file. Each
// top-level key is one section, decoded over that section's defaults.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/linchenxuan/taglog/dispatch"
	"github.com/linchenxuan/taglog/log"
	"github.com/linchenxuan/taglog/plugin"
	"github.com/linchenxuan/taglog/session"
	"github.com/linchenxuan/taglog/source/sim"
	"gopkg.in/yaml.v3"
)

const _pluginSection = "plugin"

// ErrSection wraps a failure to decode or validate one section.
var ErrSection = errors.New("invalid config section")

// Section is a decoded config section.
type Section interface {
	GetName() string
	Validate() error
}

// Config is the whole recorder configuration.
type Config struct {
	Log        *log.LogCfg
	Dispatcher *dispatch.Config
	Session    *session.Config
	Sim        *sim.Config
	// Plugin is handed as is to plugin.Manager.SetupPlugins.
	Plugin map[string]any
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:        log.DefaultCfg(),
		Dispatcher: dispatch.DefaultConfig(),
		Session:    session.DefaultConfig(),
		Sim:        sim.DefaultConfig(),
		Plugin:     map[string]any{},
	}
}

// Load reads and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data. Missing sections and fields keep their defaults;
// unknown sections are ignored with a warning.
func Parse(data []byte) (*Config, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	cfg := Default()
	sections := map[string]Section{}
	for _, s := range cfg.sections() {
		sections[s.GetName()] = s
	}

	for name, value := range raw {
		if name == _pluginSection {
			m, ok := value.(map[string]any)
			if !ok && value != nil {
				return nil, fmt.Errorf("%w %s: expected a mapping", ErrSection, name)
			}
			if m != nil {
				cfg.Plugin = m
			}
			continue
		}
		s, ok := sections[name]
		if !ok {
			log.Warn().Str("section", name).Msg("unknown config section ignored")
			continue
		}
		if value == nil {
			continue
		}
		if err := plugin.DecodeConfig(value, s); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrSection, name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills defaults where the sections support it and checks every
// section.
func (c *Config) Validate() error {
	if err := log.CheckCfgValid(c.Log); err != nil {
		return err
	}
	c.Dispatcher.CheckCfgValid()
	for _, s := range c.sections() {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w %s: %v", ErrSection, s.GetName(), err)
		}
	}
	return nil
}

func (c *Config) sections() []Section {
	return []Section{c.Log, c.Dispatcher, c.Session, c.Sim}
}
