// Package sensor contains the sensor collaborator contract and the
// acquisition task that feeds the sample queue.
package sensor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/risehi/Pulse32/internal/indicator"
	"github.com/risehi/Pulse32/internal/metrics"
	"github.com/risehi/Pulse32/internal/queue"
	"github.com/risehi/Pulse32/internal/types"
)

// Sensor is the hardware collaborator. Measure returns one sample as
// metric groups (group name -> metric name -> value). A transient hardware
// fault is reported as an error; the acquisition task owns the retry
// policy.
type Sensor interface {
	Measure() (map[string]map[string]float64, error)
}

// Config holds acquisition task settings.
type Config struct {
	Period       time.Duration // time between samples
	RetryLimit   int           // attempts per sample
	RetryDelay   time.Duration // delay between attempts
	PartitionKey string        // stamped onto every reading
}

// Acquirer periodically samples the sensor and pushes readings into the
// sample queue. A failed cycle never stops the task.
type Acquirer struct {
	sensor  Sensor
	queue   *queue.Queue
	ind     indicator.Indicator
	metrics *metrics.Metrics
	cfg     Config
}

// NewAcquirer creates the acquisition task.
func NewAcquirer(s Sensor, q *queue.Queue, ind indicator.Indicator, m *metrics.Metrics, cfg Config) *Acquirer {
	return &Acquirer{
		sensor:  s,
		queue:   q,
		ind:     ind,
		metrics: m,
		cfg:     cfg,
	}
}

// Run executes the acquisition loop until ctx is cancelled. Each tick it
// samples once (with bounded retries) and pushes the reading; a cycle that
// exhausts its retries is skipped without producing a reading.
func (a *Acquirer) Run(ctx context.Context) {
	slog.Info("acquisition task started",
		"period", a.cfg.Period,
		"retry_limit", a.cfg.RetryLimit,
	)

	ticker := time.NewTicker(a.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("acquisition task stopping")
			return
		case <-ticker.C:
			a.AcquireOnce(ctx)
		}
	}
}

// AcquireOnce performs one acquisition cycle: sample with bounded retries,
// stamp, push. It reports whether a reading entered the queue.
func (a *Acquirer) AcquireOnce(ctx context.Context) bool {
	groups, ok := a.measure(ctx)
	if !ok {
		return false
	}

	r := types.Reading{
		ID:           uuid.New().String(),
		CapturedAt:   time.Now().UTC(),
		PartitionKey: a.cfg.PartitionKey,
		Groups:       groups,
	}
	a.metrics.ReadingsSampled.Inc()

	if !a.queue.Push(r) {
		a.metrics.ReadingsDropped.WithLabelValues(metrics.StageQueue).Inc()
		slog.Warn("sample queue full, reading discarded",
			"reading_id", r.ID,
			"dropped_total", a.queue.Dropped(),
		)
		return false
	}

	slog.Debug("reading queued",
		"reading_id", r.ID,
		"groups", len(groups),
		"queue_len", a.queue.Len(),
	)
	return true
}

// measure invokes the sensor with the bounded retry policy. Each failed
// attempt blinks yellow; exhausting all attempts blinks red and skips the
// cycle.
func (a *Acquirer) measure(ctx context.Context) (map[string]map[string]float64, bool) {
	for attempt := 1; attempt <= a.cfg.RetryLimit; attempt++ {
		groups, err := a.sensor.Measure()
		if err == nil {
			return groups, true
		}

		slog.Warn("sensor read failed",
			"attempt", attempt,
			"retry_limit", a.cfg.RetryLimit,
			"error", err,
		)
		a.ind.Blink(indicator.ColorYellow, 1, 250*time.Millisecond)

		if attempt < a.cfg.RetryLimit {
			a.metrics.SensorRetries.Inc()
			if !sleep(ctx, a.cfg.RetryDelay) {
				return nil, false
			}
		}
	}

	a.metrics.SensorFailures.Inc()
	a.ind.Blink(indicator.ColorRed, 3, 250*time.Millisecond)
	slog.Error("sensor read failed after retries, skipping cycle",
		"retry_limit", a.cfg.RetryLimit,
	)
	return nil, false
}

// sleep waits for d or until ctx is cancelled, reporting whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
