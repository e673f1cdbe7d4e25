// Package config loads the metriful-tool configuration file.
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"metriful-go/drivers/metriful"
)

type Config struct {
	Device DeviceConfig `yaml:"device"`
	Read   ReadConfig   `yaml:"read"`
	Record RecordConfig `yaml:"record"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Bus           string `yaml:"bus"`       // periph bus name or /dev/i2c-N
	Address       uint16 `yaml:"address"`   // 7-bit
	ReadyPin      string `yaml:"ready_pin"` // periph pin name, e.g. GPIO11
	OpenTimeoutMs int    `yaml:"open_timeout_ms"`
}

// ---- READ ----

// Strategy names a continuous read strategy.
type Strategy string

const (
	StrategyInterval   Strategy = "interval"
	StrategyCycle      Strategy = "cycle"
	StrategyBackground Strategy = "background"
)

type ReadConfig struct {
	Strategy   Strategy             `yaml:"strategy"`
	Period     metriful.CyclePeriod `yaml:"period"`
	IntervalMs int                  `yaml:"interval_ms"`
	Metrics    []string             `yaml:"metrics"`
}

// ---- RECORD ----

type RecordConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Bus:      "/dev/i2c-1",
			Address:  metriful.AddressDefault,
			ReadyPin: "GPIO11",
		},
		Read: ReadConfig{
			Strategy:   StrategyCycle,
			Period:     metriful.Period3s,
			IntervalMs: 5000,
			Metrics:    []string{metriful.CombinedAll.Name},
		},
		Record: RecordConfig{Path: "readings.cbor"},
	}
}

// Load reads path over the defaults and validates the result. Keys missing
// from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills values an explicit empty key has cleared.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Read.Strategy == "" {
		cfg.Read.Strategy = StrategyCycle
	}
	if len(cfg.Read.Metrics) == 0 {
		cfg.Read.Metrics = []string{metriful.CombinedAll.Name}
	}
}

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	d := cfg.Device
	if d.Address == 0 || d.Address > 0x7F {
		return fmt.Errorf("device.address 0x%X is not a 7-bit address", d.Address)
	}
	if d.Bus == "" {
		return fmt.Errorf("device.bus is required")
	}
	if d.OpenTimeoutMs < 0 {
		return fmt.Errorf("device.open_timeout_ms must not be negative")
	}

	r := cfg.Read
	strategies := []Strategy{StrategyInterval, StrategyCycle, StrategyBackground}
	if !slices.Contains(strategies, r.Strategy) {
		return fmt.Errorf("read.strategy %q: want one of %v", r.Strategy, strategies)
	}
	if r.Strategy == StrategyInterval && r.IntervalMs <= 0 {
		return fmt.Errorf("read.interval_ms must be positive for the interval strategy")
	}
	for _, name := range r.Metrics {
		if _, ok := metriful.Lookup(name); !ok {
			return fmt.Errorf("read.metrics: unknown metric %q", name)
		}
	}
	return nil
}

// OpenTimeout is the device open timeout; zero means wait forever.
func (d DeviceConfig) OpenTimeout() time.Duration {
	return time.Duration(d.OpenTimeoutMs) * time.Millisecond
}

// Interval is the interval strategy period.
func (r ReadConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}
