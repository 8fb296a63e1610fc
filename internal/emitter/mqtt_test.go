package emitter

import (
	"encoding/json"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/risehi/Pulse32/internal/config"
)

func heartbeat() Heartbeat {
	return Heartbeat{
		InstanceID:    "bedroom-01",
		UptimeSeconds: 120,
		LinkUp:        true,
		QueueLen:      3,
		StoreBytes:    4096,
		StoreExists:   true,
		DroppedTotal:  2,
	}
}

// TestEncodeJSON verifies the default heartbeat encoding round-trips.
func TestEncodeJSON(t *testing.T) {
	e := NewMQTTEmitter("bedroom-01", config.MQTTConfig{Encoding: "json"})

	payload, err := e.encode(heartbeat())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded Heartbeat
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != heartbeat() {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

// TestEncodeMsgpackIsSmaller verifies the msgpack option round-trips and
// actually earns its place on a metered link.
func TestEncodeMsgpackIsSmaller(t *testing.T) {
	jsonEmitter := NewMQTTEmitter("bedroom-01", config.MQTTConfig{Encoding: "json"})
	packEmitter := NewMQTTEmitter("bedroom-01", config.MQTTConfig{Encoding: "msgpack"})

	jsonPayload, err := jsonEmitter.encode(heartbeat())
	if err != nil {
		t.Fatalf("json encode failed: %v", err)
	}
	packPayload, err := packEmitter.encode(heartbeat())
	if err != nil {
		t.Fatalf("msgpack encode failed: %v", err)
	}

	var decoded Heartbeat
	if err := msgpack.Unmarshal(packPayload, &decoded); err != nil {
		t.Fatalf("msgpack decode failed: %v", err)
	}
	if decoded != heartbeat() {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
	if len(packPayload) >= len(jsonPayload) {
		t.Errorf("msgpack payload (%d bytes) not smaller than json (%d bytes)",
			len(packPayload), len(jsonPayload))
	}
}

// TestPublishWithoutConnection verifies publishing before Connect fails
// cleanly and is counted.
func TestPublishWithoutConnection(t *testing.T) {
	e := NewMQTTEmitter("bedroom-01", config.MQTTConfig{Encoding: "json"})

	if err := e.Publish(heartbeat()); err == nil {
		t.Fatal("Publish succeeded without a connection")
	}
	if stats := e.Stats(); stats.Errors != 1 || stats.Published != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
