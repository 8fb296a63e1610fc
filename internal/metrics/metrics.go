// Package metrics holds the Prometheus instruments for the pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const labelStage = "stage"

// Eviction stages: the only two points where the pipeline is allowed to
// drop data permanently.
const (
	StageQueue   = "sample_queue"
	StagePending = "pending_batch"
)

// Metrics groups every instrument the pipeline exposes.
type Metrics struct {
	ReadingsSampled  prometheus.Counter
	SensorRetries    prometheus.Counter
	SensorFailures   prometheus.Counter
	ReadingsDropped  *prometheus.CounterVec
	BatchesUploaded  prometheus.Counter
	ReadingsUploaded prometheus.Counter
	UploadRetries    prometheus.Counter
	UploadFailures   prometheus.Counter
	StoreAppends     prometheus.Counter
	StoreRejections  prometheus.Counter
	StoreBytes       prometheus.Gauge
	FlushSkipped     prometheus.Counter
	RecordsFlushed   prometheus.Counter
	CorruptRecords   prometheus.Counter
	CycleFailures    prometheus.Counter
}

// New creates and registers the pipeline instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReadingsSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_readings_sampled_total",
			Help: "Number of readings produced by the acquisition task.",
		}),
		SensorRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_sensor_retries_total",
			Help: "Number of failed sensor read attempts that were retried.",
		}),
		SensorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_sensor_failures_total",
			Help: "Number of acquisition cycles skipped after exhausting sensor retries.",
		}),
		ReadingsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse32_readings_dropped_total",
			Help: "Number of readings evicted by a bounded-capacity policy.",
		}, []string{labelStage}),
		BatchesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_batches_uploaded_total",
			Help: "Number of batches acknowledged by the collector.",
		}),
		ReadingsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_readings_uploaded_total",
			Help: "Number of readings acknowledged by the collector.",
		}),
		UploadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_upload_retries_total",
			Help: "Number of upload attempts that failed and were retried.",
		}),
		UploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_upload_failures_total",
			Help: "Number of batches that exhausted all upload attempts.",
		}),
		StoreAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_store_appends_total",
			Help: "Number of batches appended to the overflow log.",
		}),
		StoreRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_store_rejections_total",
			Help: "Number of appends rejected because the overflow log cap would be exceeded.",
		}),
		StoreBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse32_store_bytes",
			Help: "Current size of the overflow log in bytes.",
		}),
		FlushSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_flush_skipped_total",
			Help: "Number of flush attempts skipped because a flush was already running.",
		}),
		RecordsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_records_flushed_total",
			Help: "Number of overflow-log records delivered during flushes.",
		}),
		CorruptRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_corrupt_records_total",
			Help: "Number of unparseable overflow-log records skipped during flushes.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse32_cycle_failures_total",
			Help: "Number of delivery cycles aborted by the last-resort recovery handler.",
		}),
	}

	reg.MustRegister(
		m.ReadingsSampled,
		m.SensorRetries,
		m.SensorFailures,
		m.ReadingsDropped,
		m.BatchesUploaded,
		m.ReadingsUploaded,
		m.UploadRetries,
		m.UploadFailures,
		m.StoreAppends,
		m.StoreRejections,
		m.StoreBytes,
		m.FlushSkipped,
		m.RecordsFlushed,
		m.CorruptRecords,
		m.CycleFailures,
	)
	return m
}
