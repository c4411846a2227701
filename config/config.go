package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// set at build time
var (
	Version = "latest"
	Commit  = "none"
	Date    = "unknown"
)

const (
	AdapterPeriph  = "periph"
	AdapterGobot   = "gobot"
	AdapterMCP2221 = "mcp2221"
	AdapterMock    = "mock"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config describes how the cli reaches the sensor.
type Config struct {
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name, empty selects the first available bus.
	Device string `yaml:"device"`
	// Bus is the gobot bus number, negative selects the adaptor default.
	Bus     int     `yaml:"bus"`
	Address uint8   `yaml:"address"`
	Measure Measure `yaml:"measure"`
}

type Measure struct {
	PollLimit          int           `yaml:"poll_limit"`
	PollTimeout        time.Duration `yaml:"poll_timeout"`
	PreciseTemperature bool          `yaml:"precise_temperature"`
	PowerOnWait        time.Duration `yaml:"power_on_wait"`
	Interval           time.Duration `yaml:"interval"`
}

func Default() Config {
	return Config{
		Adapter: AdapterPeriph,
		Bus:     -1,
		Address: 0x38,
		Measure: Measure{
			Interval: 2 * time.Second,
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("could not decode config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterPeriph, AdapterGobot, AdapterMCP2221, AdapterMock:
	default:
		return fmt.Errorf("%w: unknown adapter %q", ErrInvalidConfig, c.Adapter)
	}
	if c.Address > 0x7F {
		return fmt.Errorf("%w: address %#x is not a 7-bit address", ErrInvalidConfig, c.Address)
	}
	if c.Measure.PollLimit < 0 {
		return fmt.Errorf("%w: negative poll limit", ErrInvalidConfig)
	}
	if c.Measure.PollTimeout < 0 {
		return fmt.Errorf("%w: negative poll timeout", ErrInvalidConfig)
	}
	if c.Measure.Interval <= 0 {
		return fmt.Errorf("%w: measurement interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// VersionString is the version reported by the cli.
func VersionString() string {
	return fmt.Sprintf("%s-%s-%s", Version, Date, Commit)
}
