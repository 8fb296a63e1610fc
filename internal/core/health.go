package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus represents the health state of the pipeline.
type HealthStatus struct {
	Status        string `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds int64  `json:"uptime_seconds"`
	LinkUp        bool   `json:"link_up"`
	QueueLen      int    `json:"queue_len"`
	PendingLen    int    `json:"pending_len"`
	StoreExists   bool   `json:"store_exists"`
	StoreBytes    int64  `json:"store_bytes"`
	DroppedTotal  uint64 `json:"dropped_total"`
	MQTTConnected bool   `json:"mqtt_connected,omitempty"`
}

// HealthCheck returns the current health status of the service. A backlog
// in the overflow log or a down link degrades the status; only a stopped
// service is unhealthy.
func (s *Service) HealthCheck() HealthStatus {
	size, _ := s.store.Size()

	s.mu.RLock()
	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		PendingLen:    len(s.pending),
	}
	running := s.isRunning
	s.mu.RUnlock()

	status.LinkUp = s.link.IsConnected()
	status.QueueLen = s.queue.Len()
	status.StoreExists = s.store.Exists()
	status.StoreBytes = size
	status.DroppedTotal = s.queue.Dropped()
	if s.emitter != nil {
		status.MQTTConnected = s.emitter.Stats().Connected
	}

	if !running {
		status.Status = "unhealthy"
	} else if !status.LinkUp || status.StoreExists {
		status.Status = "degraded"
	}
	return status
}

// LivenessHandler handles /health (simple liveness check).
func (s *Service) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s.mu.RLock()
	uptime := int64(time.Since(s.started).Seconds())
	s.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": uptime,
	})
}

// ReadinessHandler handles /readiness (detailed readiness check).
// Degraded still answers 200: the pipeline is buffering, not broken.
func (s *Service) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := s.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// StartHealthServer starts the HTTP health/metrics server on the given
// port. It does not block.
func (s *Service) StartHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.LivenessHandler)
	mux.HandleFunc("/readiness", s.ReadinessHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health server",
		"port", port,
		"endpoints", []string{"/health", "/readiness", "/metrics"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()

	return nil
}
