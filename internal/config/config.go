package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Pulse32 daemon configuration
type Config struct {
	InstanceID       string       `yaml:"instance_id"`
	PartitionKey     string       `yaml:"partition_key"`     // defaults to instance_id
	ShutdownTimeoutS int          `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	Sensor           SensorConfig `yaml:"sensor"`
	Wifi             WifiConfig   `yaml:"wifi"`
	Upload           UploadConfig `yaml:"upload"`
	Buffer           BufferConfig `yaml:"buffer"`
	Loop             LoopConfig   `yaml:"loop"`
	MQTT             MQTTConfig   `yaml:"mqtt"`
	Health           HealthConfig `yaml:"health"`
}

// SensorConfig contains acquisition settings
type SensorConfig struct {
	Driver      string `yaml:"driver"`        // sim (synthetic walk); real drivers are injected by the build
	ReadDelayS  int    `yaml:"read_delay_s"`  // seconds between samples (default: 30)
	RetryLimit  int    `yaml:"retry_limit"`   // attempts per sample (default: 3)
	RetryDelayS int    `yaml:"retry_delay_s"` // seconds between attempts (default: 1)
}

// WifiConfig contains connectivity settings
type WifiConfig struct {
	Driver        string       `yaml:"driver"` // sim
	Credentials   []Credential `yaml:"credentials"`
	RetryLimit    int          `yaml:"retry_limit"`     // association status polls per credential (default: 10)
	RetryDelayS   int          `yaml:"retry_delay_s"`   // seconds between polls (default: 1)
	ProbeURL      string       `yaml:"probe_url"`       // optional reachability probe; empty disables probing
	ProbeTimeoutS int          `yaml:"probe_timeout_s"` // probe request timeout (default: 5)
}

// Credential is one known network in priority order
type Credential struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// UploadConfig contains collector endpoint settings
type UploadConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	BatchSize   int    `yaml:"batch_size"`    // readings per upload (default: 8)
	TimeoutS    int    `yaml:"timeout_s"`     // request timeout (default: 15)
	Retries     int    `yaml:"retries"`       // attempts per batch (default: 3)
	RetryDelayS int    `yaml:"retry_delay_s"` // initial backoff, doubles per attempt (default: 2)
}

// BufferConfig contains in-memory and overflow-log capacity settings
type BufferConfig struct {
	MemoryLimit  int    `yaml:"memory_limit"`   // max buffered readings per stage (default: 64)
	OverflowPath string `yaml:"overflow_path"`  // overflow log file (default: data/overflow.log)
	MaxFileBytes int64  `yaml:"max_file_bytes"` // overflow log cap (default: 262144)
}

// LoopConfig contains delivery loop timing
type LoopConfig struct {
	IntervalS int `yaml:"interval_s"` // cycle period (default: 5)
	CooldownS int `yaml:"cooldown_s"` // sleep after an unexpected cycle failure (default: 60)
}

// MQTTConfig contains the optional status heartbeat settings.
// An empty broker disables the emitter entirely.
type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	Topic           string `yaml:"topic"` // defaults to pulse32/status/{instance_id}
	QoS             byte   `yaml:"qos"`
	Encoding        string `yaml:"encoding"`          // json | msgpack (default: json)
	IntervalS       int    `yaml:"interval_s"`        // seconds between heartbeats (default: 30)
	ConnectTimeoutS int    `yaml:"connect_timeout_s"` // broker connect timeout (default: 5)
}

// HealthConfig contains the health/metrics HTTP server settings
type HealthConfig struct {
	Port string `yaml:"port"` // default: 8080
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Duration accessors so callers deal in time.Duration, not raw seconds.

func (c SensorConfig) ReadDelay() time.Duration  { return time.Duration(c.ReadDelayS) * time.Second }
func (c SensorConfig) RetryDelay() time.Duration { return time.Duration(c.RetryDelayS) * time.Second }

func (c WifiConfig) RetryDelay() time.Duration   { return time.Duration(c.RetryDelayS) * time.Second }
func (c WifiConfig) ProbeTimeout() time.Duration { return time.Duration(c.ProbeTimeoutS) * time.Second }

func (c UploadConfig) Timeout() time.Duration    { return time.Duration(c.TimeoutS) * time.Second }
func (c UploadConfig) RetryDelay() time.Duration { return time.Duration(c.RetryDelayS) * time.Second }

func (c LoopConfig) Interval() time.Duration { return time.Duration(c.IntervalS) * time.Second }
func (c LoopConfig) Cooldown() time.Duration { return time.Duration(c.CooldownS) * time.Second }

func (c MQTTConfig) Interval() time.Duration { return time.Duration(c.IntervalS) * time.Second }
func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutS) * time.Second
}

// ShutdownTimeout returns the configured graceful shutdown timeout,
// defaulting to 5 seconds.
func (c *Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutS == 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}
