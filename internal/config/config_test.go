package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
instance_id: bedroom-01
wifi:
  credentials:
    - ssid: homenet
      password: secret1
    - ssid: phone-hotspot
      password: secret2
upload:
  url: https://collector.example.com/ingest
  api_key: testkey
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulse32.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadAppliesDefaults verifies defaults are filled for everything the
// file leaves out.
func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PartitionKey != "bedroom-01" {
		t.Errorf("partition_key should default to instance_id, got %q", cfg.PartitionKey)
	}
	if cfg.Sensor.ReadDelay() != 30*time.Second {
		t.Errorf("unexpected read delay: %v", cfg.Sensor.ReadDelay())
	}
	if cfg.Sensor.RetryLimit != 3 {
		t.Errorf("unexpected sensor retry limit: %d", cfg.Sensor.RetryLimit)
	}
	if cfg.Wifi.RetryLimit != 10 {
		t.Errorf("unexpected wifi retry limit: %d", cfg.Wifi.RetryLimit)
	}
	if cfg.Upload.BatchSize != 8 {
		t.Errorf("unexpected batch size: %d", cfg.Upload.BatchSize)
	}
	if cfg.Upload.Timeout() != 15*time.Second {
		t.Errorf("unexpected upload timeout: %v", cfg.Upload.Timeout())
	}
	if cfg.Buffer.MemoryLimit != 64 {
		t.Errorf("unexpected memory limit: %d", cfg.Buffer.MemoryLimit)
	}
	if cfg.Buffer.MaxFileBytes != 256*1024 {
		t.Errorf("unexpected overflow cap: %d", cfg.Buffer.MaxFileBytes)
	}
	if cfg.Loop.Cooldown() != 60*time.Second {
		t.Errorf("unexpected cooldown: %v", cfg.Loop.Cooldown())
	}
	if cfg.Health.Port != "8080" {
		t.Errorf("unexpected health port: %q", cfg.Health.Port)
	}
}

// TestCredentialOrderPreserved verifies the credential list keeps file order.
func TestCredentialOrderPreserved(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Wifi.Credentials) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(cfg.Wifi.Credentials))
	}
	if cfg.Wifi.Credentials[0].SSID != "homenet" || cfg.Wifi.Credentials[1].SSID != "phone-hotspot" {
		t.Errorf("credential order not preserved: %+v", cfg.Wifi.Credentials)
	}
}

// TestValidateRejections covers required-field and cross-field failures.
func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing instance id",
			yaml: strings.Replace(validYAML, "instance_id: bedroom-01", "", 1),
			want: "instance_id is required",
		},
		{
			name: "bad instance id",
			yaml: strings.Replace(validYAML, "bedroom-01", "Bedroom_01", 1),
			want: "instance_id must match",
		},
		{
			name: "no credentials",
			yaml: strings.Replace(validYAML, "  credentials:", "  retry_limit: 5\n  ignored:", 1),
			want: "at least one network",
		},
		{
			name: "missing upload url",
			yaml: strings.Replace(validYAML, "  url: https://collector.example.com/ingest", "", 1),
			want: "upload.url is required",
		},
		{
			name: "memory limit below batch size",
			yaml: validYAML + "buffer:\n  memory_limit: 4\n",
			want: "must be >= upload.batch_size",
		},
		{
			name: "bad mqtt encoding",
			yaml: validYAML + "mqtt:\n  broker: localhost:1883\n  encoding: xml\n",
			want: "mqtt.encoding",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

// TestMQTTDefaults verifies heartbeat defaults only apply when a broker is
// configured.
func TestMQTTDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML+"mqtt:\n  broker: localhost:1883\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MQTT.Topic != "pulse32/status/bedroom-01" {
		t.Errorf("unexpected default topic: %q", cfg.MQTT.Topic)
	}
	if cfg.MQTT.Encoding != "json" {
		t.Errorf("unexpected default encoding: %q", cfg.MQTT.Encoding)
	}
	if cfg.MQTT.Interval() != 30*time.Second {
		t.Errorf("unexpected heartbeat interval: %v", cfg.MQTT.Interval())
	}
}
