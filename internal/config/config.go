package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models sbp.yml: the tariff limit table and weighting model. All rule
// thresholds live here so the rule catalogue stays pure data over this struct.
type Config struct {
	Orchestra struct {
		Name     string `yaml:"name"`
		Contract string `yaml:"contract"`
	} `yaml:"orchestra"`
	Limits struct {
		DefaultMaxPerWeek float64            `yaml:"default_max_per_week"`
		PerFormation      map[string]float64 `yaml:"per_formation"`
		MaxPerDay         int                `yaml:"max_per_day"`
		MaxConcertDays    int                `yaml:"max_consecutive_concert_days"`
	} `yaml:"limits"`
	Rest struct {
		DailyRestHours      float64 `yaml:"daily_rest_hours"`
		SameDayBreakMinutes int     `yaml:"same_day_break_minutes"`
	} `yaml:"rest"`
	Timing struct {
		EarliestRehearsalStart string `yaml:"earliest_rehearsal_start"`
		LatestRehearsalEnd     string `yaml:"latest_rehearsal_end"`
		DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
	} `yaml:"timing"`
	Weights struct {
		Fixed              float64 `yaml:"fixed"`
		Planned            float64 `yaml:"planned"`
		Possible           float64 `yaml:"possible"`
		LongSessionMinutes int     `yaml:"long_session_minutes"`
		LongSession        float64 `yaml:"long_session"`
		WarmupAlone        float64 `yaml:"warmup_alone"`
		WarmupConcert      float64 `yaml:"warmup_concert"`
		TravelDay          float64 `yaml:"travel_day"`
	} `yaml:"weights"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write defaults with sbp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the limit table is internally consistent.
func (c *Config) Validate() error {
	if c.Orchestra.Name == "" {
		return fmt.Errorf("config.orchestra.name is required")
	}
	if c.Limits.DefaultMaxPerWeek <= 0 {
		return fmt.Errorf("config.limits.default_max_per_week must be positive")
	}
	for formation, limit := range c.Limits.PerFormation {
		if formation == "" {
			return fmt.Errorf("config.limits.per_formation contains empty formation")
		}
		if limit <= 0 {
			return fmt.Errorf("config.limits.per_formation.%s must be positive", formation)
		}
	}
	if c.Limits.MaxPerDay <= 0 {
		return fmt.Errorf("config.limits.max_per_day must be positive")
	}
	if c.Rest.DailyRestHours < 0 || c.Rest.DailyRestHours > 24 {
		return fmt.Errorf("config.rest.daily_rest_hours must be within [0,24]")
	}
	if c.Rest.SameDayBreakMinutes < 0 {
		return fmt.Errorf("config.rest.same_day_break_minutes must not be negative")
	}
	for key, val := range map[string]string{
		"earliest_rehearsal_start": c.Timing.EarliestRehearsalStart,
		"latest_rehearsal_end":     c.Timing.LatestRehearsalEnd,
	} {
		if val == "" {
			continue
		}
		if _, err := time.Parse("15:04", val); err != nil {
			return fmt.Errorf("config.timing.%s: invalid time %q", key, val)
		}
	}
	if c.Weights.Fixed <= 0 {
		return fmt.Errorf("config.weights.fixed must be positive")
	}
	if c.Weights.Planned <= 0 {
		return fmt.Errorf("config.weights.planned must be positive")
	}
	if c.Weights.Possible < 0 || c.Weights.Possible > 1 {
		return fmt.Errorf("config.weights.possible must be within [0,1]")
	}
	if c.Weights.LongSessionMinutes <= 0 {
		return fmt.Errorf("config.weights.long_session_minutes must be positive")
	}
	return nil
}

// WeeklyLimit returns the ceiling for a formation scope, falling back to the
// default when the formation has no dedicated row in the limit table.
func (c *Config) WeeklyLimit(formation string) float64 {
	if limit, ok := c.Limits.PerFormation[formation]; ok {
		return limit
	}
	return c.Limits.DefaultMaxPerWeek
}

// StatusWeight maps a duty status to its counting factor.
func (c *Config) StatusWeight(status string) float64 {
	switch status {
	case "fixed":
		return c.Weights.Fixed
	case "planned":
		return c.Weights.Planned
	case "possible":
		return c.Weights.Possible
	}
	return 0
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sbp.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `orchestra:
  name: Staatsbad Philharmonie
  contract: htv

limits:
  default_max_per_week: 10
  per_formation:
    wind_quintet: 4
    clarinet_quartet: 4
    brass_quartet: 4
    serenade: 4
  max_per_day: 2
  max_consecutive_concert_days: 6

rest:
  daily_rest_hours: 11
  same_day_break_minutes: 90

timing:
  earliest_rehearsal_start: "09:30"
  latest_rehearsal_end: "22:00"
  default_duration_minutes: 120

weights:
  fixed: 1.0
  planned: 1.0
  possible: 0.5
  long_session_minutes: 180
  long_session: 2.0
  warmup_alone: 0.5
  warmup_concert: 1.5
  travel_day: 1.0
`
