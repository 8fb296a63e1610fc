// Package core wires the pipeline together and runs the delivery loop.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/risehi/Pulse32/internal/config"
	"github.com/risehi/Pulse32/internal/emitter"
	"github.com/risehi/Pulse32/internal/indicator"
	"github.com/risehi/Pulse32/internal/metrics"
	"github.com/risehi/Pulse32/internal/netlink"
	"github.com/risehi/Pulse32/internal/queue"
	"github.com/risehi/Pulse32/internal/sensor"
	"github.com/risehi/Pulse32/internal/store"
	"github.com/risehi/Pulse32/internal/types"
	"github.com/risehi/Pulse32/internal/uplink"
)

// Connector is the connectivity dependency of the delivery loop.
type Connector interface {
	Connect(ctx context.Context) bool
}

// Service is the daemon orchestrator: it owns every collaborator and the
// two long-running tasks (acquisition, delivery).
type Service struct {
	cfg *config.Config

	queue    *queue.Queue
	acquirer *sensor.Acquirer
	conn     Connector
	link     netlink.Link
	uplink   store.Uploader
	store    *store.Store
	ind      indicator.Indicator
	emitter  *emitter.MQTTEmitter // nil when no broker is configured
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	// pending is the consumer-local batch accumulated from queue drains.
	// Only the delivery loop mutates it; mu guards reads from the health
	// surface.
	pending types.Batch

	mu        sync.RWMutex
	started   time.Time
	isRunning bool
	wg        sync.WaitGroup
}

// New builds the service from configuration, selecting simulated
// collaborators where configured.
func New(cfg *config.Config) (*Service, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var sens sensor.Sensor
	switch cfg.Sensor.Driver {
	case "sim":
		sens = sensor.NewSim(time.Now().UnixNano())
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", cfg.Sensor.Driver)
	}

	var link netlink.Link
	switch cfg.Wifi.Driver {
	case "sim":
		known := make(map[string]string, len(cfg.Wifi.Credentials))
		for _, cred := range cfg.Wifi.Credentials {
			known[cred.SSID] = cred.Password
		}
		link = netlink.NewSimLink(known)
	default:
		return nil, fmt.Errorf("unknown wifi driver %q", cfg.Wifi.Driver)
	}

	ind := indicator.Log{}

	creds := make([]netlink.Credential, 0, len(cfg.Wifi.Credentials))
	for _, cred := range cfg.Wifi.Credentials {
		creds = append(creds, netlink.Credential{SSID: cred.SSID, Password: cred.Password})
	}
	conn := netlink.NewManager(link, ind, netlink.Config{
		Credentials:  creds,
		RetryLimit:   cfg.Wifi.RetryLimit,
		RetryDelay:   cfg.Wifi.RetryDelay(),
		ProbeURL:     cfg.Wifi.ProbeURL,
		ProbeTimeout: cfg.Wifi.ProbeTimeout(),
	})

	q := queue.New(cfg.Buffer.MemoryLimit)

	s := &Service{
		cfg:   cfg,
		queue: q,
		acquirer: sensor.NewAcquirer(sens, q, ind, m, sensor.Config{
			Period:       cfg.Sensor.ReadDelay(),
			RetryLimit:   cfg.Sensor.RetryLimit,
			RetryDelay:   cfg.Sensor.RetryDelay(),
			PartitionKey: cfg.PartitionKey,
		}),
		conn: conn,
		link: link,
		uplink: uplink.New(uplink.Config{
			URL:        cfg.Upload.URL,
			APIKey:     cfg.Upload.APIKey,
			Timeout:    cfg.Upload.Timeout(),
			Retries:    cfg.Upload.Retries,
			RetryDelay: cfg.Upload.RetryDelay(),
		}, m),
		store:    store.New(cfg.Buffer.OverflowPath, cfg.Buffer.MaxFileBytes, cfg.Upload.BatchSize, m),
		ind:      ind,
		metrics:  m,
		registry: registry,
	}

	if cfg.MQTT.Broker != "" {
		s.emitter = emitter.NewMQTTEmitter(cfg.InstanceID, cfg.MQTT)
	}

	return s, nil
}

// Run starts the acquisition task and the delivery loop and blocks until
// ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	slog.Info("pulse32 service starting",
		"instance_id", s.cfg.InstanceID,
		"batch_size", s.cfg.Upload.BatchSize,
		"memory_limit", s.cfg.Buffer.MemoryLimit,
	)

	// The heartbeat is observational: a dead broker must not keep the
	// pipeline from running.
	if s.emitter != nil {
		if err := s.emitter.Connect(); err != nil {
			slog.Warn("mqtt heartbeat unavailable", "error", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.heartbeatLoop(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acquirer.Run(ctx)
	}()

	s.deliverLoop(ctx)

	slog.Info("pulse32 service run loop exiting")
	return nil
}

// Shutdown waits for the tasks to finish within ctx and releases the
// broker connection.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	slog.Info("shutting down pulse32 service")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}

	if s.emitter != nil {
		s.emitter.Disconnect()
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("pulse32 service shutdown complete", "uptime", uptime)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
func (s *Service) ShutdownTimeout() time.Duration {
	return s.cfg.ShutdownTimeout()
}

// heartbeatLoop publishes a status snapshot on the configured interval.
func (s *Service) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MQTT.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.emitter.Publish(s.heartbeat()); err != nil {
				slog.Debug("heartbeat publish failed", "error", err)
			}
		}
	}
}

func (s *Service) heartbeat() emitter.Heartbeat {
	size, _ := s.store.Size()

	s.mu.RLock()
	uptime := int64(time.Since(s.started).Seconds())
	pendingLen := len(s.pending)
	s.mu.RUnlock()

	return emitter.Heartbeat{
		InstanceID:    s.cfg.InstanceID,
		UptimeSeconds: uptime,
		LinkUp:        s.link.IsConnected(),
		QueueLen:      s.queue.Len(),
		PendingLen:    pendingLen,
		StoreBytes:    size,
		StoreExists:   s.store.Exists(),
		DroppedTotal:  s.queue.Dropped(),
	}
}
