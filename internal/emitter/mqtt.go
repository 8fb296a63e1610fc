// Package emitter publishes periodic status heartbeats to an MQTT broker.
// The heartbeat is purely observational: delivery of telemetry never
// depends on it, and a missing broker disables the emitter entirely.
package emitter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/risehi/Pulse32/internal/config"
)

// Heartbeat is one status snapshot of the pipeline.
type Heartbeat struct {
	InstanceID    string `json:"instance_id" msgpack:"instance_id"`
	UptimeSeconds int64  `json:"uptime_seconds" msgpack:"uptime_seconds"`
	LinkUp        bool   `json:"link_up" msgpack:"link_up"`
	QueueLen      int    `json:"queue_len" msgpack:"queue_len"`
	PendingLen    int    `json:"pending_len" msgpack:"pending_len"`
	StoreBytes    int64  `json:"store_bytes" msgpack:"store_bytes"`
	StoreExists   bool   `json:"store_exists" msgpack:"store_exists"`
	DroppedTotal  uint64 `json:"dropped_total" msgpack:"dropped_total"`
}

// MQTTEmitter publishes heartbeats to the configured topic.
type MQTTEmitter struct {
	cfg    config.MQTTConfig
	id     string
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTEmitter creates an emitter from the heartbeat config.
func NewMQTTEmitter(id string, cfg config.MQTTConfig) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg, id: id}
}

// Connect establishes the broker connection. Paho reconnects on its own
// afterwards, so a dropped broker only costs heartbeats, never telemetry.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.id)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.id,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(e.cfg.ConnectTimeout()) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Publish sends one heartbeat with a bounded wait.
func (e *MQTTEmitter) Publish(hb Heartbeat) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := e.encode(hb)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to encode heartbeat: %w", err)
	}

	token := e.client.Publish(e.cfg.Topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("heartbeat published",
		"topic", e.cfg.Topic,
		"encoding", e.cfg.Encoding,
		"size", len(payload),
	)
	return nil
}

// encode marshals the heartbeat in the configured wire encoding. Msgpack
// keeps the payload small on metered links.
func (e *MQTTEmitter) encode(hb Heartbeat) ([]byte, error) {
	if e.cfg.Encoding == "msgpack" {
		return msgpack.Marshal(hb)
	}
	return json.Marshal(hb)
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
