package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/surplusheater/internal/shelly"
)

// Config is the root configuration structure for the surplus heater regulator.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Meter     MeterConfig     `yaml:"meter"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	Override  OverrideConfig  `yaml:"override"`
	Regulator RegulatorConfig `yaml:"regulator"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig identifies the installation in telemetry topics and tags.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DeviceConfig is the common addressing of a remote Shelly device.
type DeviceConfig struct {
	// Address is the host (or host:port) of the device. No scheme.
	Address string `yaml:"address"`

	// Generation selects the wire variant: "gen1" or "gen2".
	Generation string `yaml:"generation"`

	// Timeout is the HTTP request timeout in milliseconds.
	// Default: 3000
	Timeout int `yaml:"timeout"`
}

// RequestTimeout returns the device request timeout as a Duration.
func (d DeviceConfig) RequestTimeout() time.Duration {
	return time.Duration(d.Timeout) * time.Millisecond
}

// MeterConfig contains the grid connection power meter settings.
type MeterConfig struct {
	DeviceConfig `yaml:",inline"`

	// Aggregate reads a single total instead of summing three phases.
	Aggregate bool `yaml:"aggregate"`
}

// ActuatorConfig contains the dimmer driving the heating element.
type ActuatorConfig struct {
	DeviceConfig `yaml:",inline"`
}

// OverrideConfig contains the optional secondary switch whose state tells
// whether another consumer already uses the surplus.
// An empty address means no override device is installed.
type OverrideConfig struct {
	DeviceConfig `yaml:",inline"`
}

// Enabled reports whether an override device is configured.
func (o OverrideConfig) Enabled() bool {
	return o.Address != ""
}

// RegulatorConfig contains the control loop tuning.
type RegulatorConfig struct {
	// RatedPower is the heating element power at 100% output, in watts.
	RatedPower float64 `yaml:"rated_power"`

	// Interval is the control period in milliseconds.
	Interval int `yaml:"interval"`

	// TargetMargin is the desired meter reading in watts.
	// Negative values keep a residual feed-in buffer.
	TargetMargin float64 `yaml:"target_margin"`

	// ExcessThreshold is the meter reading (W) below which, at full output,
	// the load is considered unable to absorb the surplus.
	ExcessThreshold float64 `yaml:"excess_threshold"`

	// PauseDuration is how long the load stays off to reveal competing consumers, in milliseconds.
	PauseDuration int `yaml:"pause_duration"`

	// OverrideCacheCycles is how many trigger evaluations an override probe result stays valid.
	OverrideCacheCycles int `yaml:"override_cache_cycles"`

	// Damping scales the proportional step.
	Damping float64 `yaml:"damping"`

	// MinStep is the dead-band in percentage points.
	MinStep float64 `yaml:"min_step"`

	// FastDescentThreshold is the grid draw (W) above which output drops by at least FastDescentDecrement.
	FastDescentThreshold float64 `yaml:"fast_descent_threshold"`

	// FastDescentDecrement is the minimum drop in percentage points under fast descent.
	FastDescentDecrement float64 `yaml:"fast_descent_decrement"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// Debug forces the debug level regardless of Level.
	Debug bool `yaml:"debug"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SURPLUSHEATER_SECTION_KEY
// For example: SURPLUSHEATER_ACTUATOR_ADDRESS, SURPLUSHEATER_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Regulator values match a 3 kW immersion heater on a 2 s loop.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "home",
			Name: "Surplus Heater",
		},
		Meter: MeterConfig{
			DeviceConfig: DeviceConfig{Generation: "gen2", Timeout: 3000},
		},
		Actuator: ActuatorConfig{
			DeviceConfig: DeviceConfig{Generation: "gen2", Timeout: 3000},
		},
		Override: OverrideConfig{
			DeviceConfig: DeviceConfig{Generation: "gen2", Timeout: 3000},
		},
		Regulator: RegulatorConfig{
			RatedPower:           3000,
			Interval:             2000,
			TargetMargin:         -20,
			ExcessThreshold:      -200,
			PauseDuration:        60000,
			OverrideCacheCycles:  30,
			Damping:              0.5,
			MinStep:              1,
			FastDescentThreshold: 200,
			FastDescentDecrement: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "surplusheater",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SURPLUSHEATER_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Devices
	if v := os.Getenv("SURPLUSHEATER_METER_ADDRESS"); v != "" {
		cfg.Meter.Address = v
	}
	if v := os.Getenv("SURPLUSHEATER_ACTUATOR_ADDRESS"); v != "" {
		cfg.Actuator.Address = v
	}
	if v := os.Getenv("SURPLUSHEATER_OVERRIDE_ADDRESS"); v != "" {
		cfg.Override.Address = v
	}

	// Regulator
	if v := os.Getenv("SURPLUSHEATER_REGULATOR_TARGET_MARGIN"); v != "" {
		margin, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SURPLUSHEATER_REGULATOR_TARGET_MARGIN: %w", err)
		}
		cfg.Regulator.TargetMargin = margin
	}

	// MQTT
	if v := os.Getenv("SURPLUSHEATER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SURPLUSHEATER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SURPLUSHEATER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SURPLUSHEATER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SURPLUSHEATER_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SURPLUSHEATER_DEBUG: %w", err)
		}
		cfg.Logging.Debug = debug
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Devices
	if c.Meter.Address == "" {
		errs = append(errs, "meter.address is required")
	}
	if c.Actuator.Address == "" {
		errs = append(errs, "actuator.address is required")
	}
	errs = append(errs, validateDevice("meter", c.Meter.DeviceConfig)...)
	errs = append(errs, validateDevice("actuator", c.Actuator.DeviceConfig)...)
	if c.Override.Enabled() {
		errs = append(errs, validateDevice("override", c.Override.DeviceConfig)...)
	}

	// Regulator
	r := c.Regulator
	if r.RatedPower <= 0 {
		errs = append(errs, "regulator.rated_power must be positive")
	}
	if r.Interval <= 0 {
		errs = append(errs, "regulator.interval must be positive")
	}
	if r.PauseDuration <= 0 {
		errs = append(errs, "regulator.pause_duration must be positive")
	}
	if r.OverrideCacheCycles < 0 {
		errs = append(errs, "regulator.override_cache_cycles must not be negative")
	}
	if r.Damping <= 0 || r.Damping > 1 {
		errs = append(errs, "regulator.damping must be in (0, 1]")
	}
	if r.MinStep < 0 {
		errs = append(errs, "regulator.min_step must not be negative")
	}
	if r.FastDescentDecrement < 0 {
		errs = append(errs, "regulator.fast_descent_decrement must not be negative")
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateDevice(section string, d DeviceConfig) []string {
	var errs []string
	if _, err := shelly.ParseGeneration(d.Generation); err != nil {
		errs = append(errs, fmt.Sprintf("%s.generation: %v", section, err))
	}
	if d.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("%s.timeout must be positive", section))
	}
	return errs
}

// GetInterval returns the control interval as a Duration.
func (c *Config) GetInterval() time.Duration {
	return time.Duration(c.Regulator.Interval) * time.Millisecond
}

// GetPauseDuration returns the pause duration as a Duration.
func (c *Config) GetPauseDuration() time.Duration {
	return time.Duration(c.Regulator.PauseDuration) * time.Millisecond
}
