package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Timing  TimingConfig  `yaml:"timing"`
	Ranges  []RangeConfig `yaml:"ranges"`
	Measure MeasureConfig `yaml:"measure"`
	Report  ReportConfig  `yaml:"report"`
	Mock    MockConfig    `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
}

// TimingConfig describes the capture clock and the comparator threshold.
// The threshold fraction ThresholdVolts/SupplyVolts determines the RC time
// constants used by the estimator and the range windows.
type TimingConfig struct {
	ClockHz        float64 `yaml:"clock_hz"`        // Capture counter base clock (Hz)
	SupplyVolts    float64 `yaml:"supply_volts"`    // Charging rail voltage (V)
	ThresholdVolts float64 `yaml:"threshold_volts"` // Comparator reference voltage (V)
}

// RangeConfig describes one resistor/divider combination. The table is data,
// not code: a different board ships a different table without touching the
// engine.
type RangeConfig struct {
	Resistance float64 `yaml:"resistance"` // Series resistor (ohms)
	Divider    uint16  `yaml:"divider"`    // Clock divider for the capture counter
	Drive      uint8   `yaml:"drive"`      // Drive selector (resistor path bitmask)
	MinCount   uint16  `yaml:"min_count"`  // Below this count the range is too coarse
	Growth     uint8   `yaml:"growth"`     // Expected count ratio to the next range
}

// MeasureConfig contains measurement behavior options.
type MeasureConfig struct {
	DefaultRange   int     `yaml:"default_range"`   // Range index at boot
	QuickRange     bool    `yaml:"quick_range"`     // Opt-in multi-step auto-range
	Trace          bool    `yaml:"trace"`           // Log per-cycle measurement details
	WindowSeconds  float64 `yaml:"window_seconds"`  // Display trace window length
	AverageSamples int     `yaml:"average_samples"` // Readings in the displayed moving average (0 = latest only)
}

// ReportConfig controls how often completed results are surfaced.
type ReportConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	Capacitance float64       `yaml:"capacitance"` // Simulated capacitor under test (F)
	Stray       float64       `yaml:"stray"`       // Simulated parasitic capacitance (F)
	NoiseLevel  float64       `yaml:"noise_level"` // Fractional count noise (e.g. 0.01 = 1%)
	Delay       time.Duration `yaml:"delay"`       // Result delivery delay per charge
}

// Default returns a default configuration with sensible values.
// The timing and range values reproduce the original meter hardware:
// 16 MHz clock, 5 V rail, 1.1 V bandgap threshold, and three resistor
// paths (270R, 10k, 1M) spread over timer dividers.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
		},
		Timing: TimingConfig{
			ClockHz:        16e6,
			SupplyVolts:    5.0,
			ThresholdVolts: 1.1,
		},
		Ranges: []RangeConfig{
			{Resistance: 270, Divider: 1024, Drive: 1, MinCount: 16384, Growth: 4},
			{Resistance: 270, Divider: 256, Drive: 1, MinCount: 16384, Growth: 4},
			{Resistance: 270, Divider: 64, Drive: 1, MinCount: 8192, Growth: 8},
			{Resistance: 270, Divider: 8, Drive: 1, MinCount: 8192, Growth: 8},
			{Resistance: 270, Divider: 1, Drive: 1, MinCount: 14156, Growth: 5},
			{Resistance: 10e3, Divider: 8, Drive: 2, MinCount: 8192, Growth: 8},
			{Resistance: 10e3, Divider: 1, Drive: 2, MinCount: 5243, Growth: 13},
			{Resistance: 1e6, Divider: 8, Drive: 4, MinCount: 8192, Growth: 8},
			{Resistance: 1e6, Divider: 1, Drive: 4, MinCount: 0, Growth: 0},
		},
		Measure: MeasureConfig{
			DefaultRange:   4,
			QuickRange:     false,
			Trace:          false,
			WindowSeconds:  60.0,
			AverageSamples: 4,
		},
		Report: ReportConfig{
			Interval: 500 * time.Millisecond,
		},
		Mock: MockConfig{
			Capacitance: 100e-9, // 100 nF
			Stray:       47e-12, // 47 pF of simulated wiring
			NoiseLevel:  0.005,
			Delay:       10 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}

	if c.Timing.ClockHz == 0 {
		c.Timing.ClockHz = def.Timing.ClockHz
	}
	if c.Timing.SupplyVolts == 0 {
		c.Timing.SupplyVolts = def.Timing.SupplyVolts
	}
	if c.Timing.ThresholdVolts == 0 {
		c.Timing.ThresholdVolts = def.Timing.ThresholdVolts
	}

	if len(c.Ranges) == 0 {
		c.Ranges = def.Ranges
	}

	if c.Measure.DefaultRange < 0 || c.Measure.DefaultRange >= len(c.Ranges) {
		c.Measure.DefaultRange = len(c.Ranges) / 2
	}
	if c.Measure.WindowSeconds <= 0 {
		c.Measure.WindowSeconds = def.Measure.WindowSeconds
	}
	if c.Measure.AverageSamples < 0 {
		c.Measure.AverageSamples = def.Measure.AverageSamples
	}

	if c.Report.Interval == 0 {
		c.Report.Interval = def.Report.Interval
	}

	if c.Mock.Capacitance == 0 {
		c.Mock.Capacitance = def.Mock.Capacitance
	}
	if c.Mock.Delay == 0 {
		c.Mock.Delay = def.Mock.Delay
	}
}
