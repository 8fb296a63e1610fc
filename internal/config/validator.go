package config

import (
	"fmt"
	"net/url"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.PartitionKey == "" {
		cfg.PartitionKey = cfg.InstanceID
	}

	// Sensor defaults
	if cfg.Sensor.Driver == "" {
		cfg.Sensor.Driver = "sim"
	}
	if cfg.Sensor.ReadDelayS <= 0 {
		cfg.Sensor.ReadDelayS = 30
	}
	if cfg.Sensor.RetryLimit <= 0 {
		cfg.Sensor.RetryLimit = 3
	}
	if cfg.Sensor.RetryDelayS <= 0 {
		cfg.Sensor.RetryDelayS = 1
	}

	// Wifi
	if cfg.Wifi.Driver == "" {
		cfg.Wifi.Driver = "sim"
	}
	if len(cfg.Wifi.Credentials) == 0 {
		return fmt.Errorf("wifi.credentials must list at least one network")
	}
	for i, cred := range cfg.Wifi.Credentials {
		if cred.SSID == "" {
			return fmt.Errorf("wifi.credentials[%d]: ssid is required", i)
		}
	}
	if cfg.Wifi.RetryLimit <= 0 {
		cfg.Wifi.RetryLimit = 10
	}
	if cfg.Wifi.RetryDelayS <= 0 {
		cfg.Wifi.RetryDelayS = 1
	}
	if cfg.Wifi.ProbeTimeoutS <= 0 {
		cfg.Wifi.ProbeTimeoutS = 5
	}
	if cfg.Wifi.ProbeURL != "" {
		if _, err := url.ParseRequestURI(cfg.Wifi.ProbeURL); err != nil {
			return fmt.Errorf("wifi.probe_url is not a valid URL: %w", err)
		}
	}

	// Upload
	if cfg.Upload.URL == "" {
		return fmt.Errorf("upload.url is required")
	}
	if _, err := url.ParseRequestURI(cfg.Upload.URL); err != nil {
		return fmt.Errorf("upload.url is not a valid URL: %w", err)
	}
	if cfg.Upload.BatchSize <= 0 {
		cfg.Upload.BatchSize = 8
	}
	if cfg.Upload.TimeoutS <= 0 {
		cfg.Upload.TimeoutS = 15
	}
	if cfg.Upload.Retries <= 0 {
		cfg.Upload.Retries = 3
	}
	if cfg.Upload.RetryDelayS <= 0 {
		cfg.Upload.RetryDelayS = 2
	}

	// Buffer
	if cfg.Buffer.MemoryLimit <= 0 {
		cfg.Buffer.MemoryLimit = 64
	}
	if cfg.Buffer.MemoryLimit < cfg.Upload.BatchSize {
		return fmt.Errorf("buffer.memory_limit (%d) must be >= upload.batch_size (%d)",
			cfg.Buffer.MemoryLimit, cfg.Upload.BatchSize)
	}
	if cfg.Buffer.OverflowPath == "" {
		cfg.Buffer.OverflowPath = "data/overflow.log"
	}
	if cfg.Buffer.MaxFileBytes <= 0 {
		cfg.Buffer.MaxFileBytes = 256 * 1024
	}

	// Loop
	if cfg.Loop.IntervalS <= 0 {
		cfg.Loop.IntervalS = 5
	}
	if cfg.Loop.CooldownS <= 0 {
		cfg.Loop.CooldownS = 60
	}

	// MQTT heartbeat is optional: empty broker disables it
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("pulse32/status/%s", cfg.InstanceID)
		}
		switch cfg.MQTT.Encoding {
		case "":
			cfg.MQTT.Encoding = "json"
		case "json", "msgpack":
		default:
			return fmt.Errorf("mqtt.encoding must be 'json' or 'msgpack', got %q", cfg.MQTT.Encoding)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.IntervalS <= 0 {
			cfg.MQTT.IntervalS = 30
		}
		if cfg.MQTT.ConnectTimeoutS <= 0 {
			cfg.MQTT.ConnectTimeoutS = 5
		}
	}

	// Health server
	if cfg.Health.Port == "" {
		cfg.Health.Port = "8080"
	}

	return nil
}
