// Package store implements the durable overflow log: a size-capped,
// append-only file of serialized readings that survives process restarts
// and is drained back through the uploader when connectivity returns.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/risehi/Pulse32/internal/metrics"
	"github.com/risehi/Pulse32/internal/types"
)

// ErrStoreFull means an append was rejected wholesale because the size cap
// would be exceeded. Nothing was written.
var ErrStoreFull = errors.New("overflow log full")

// Uploader is the delivery dependency used during flush.
type Uploader interface {
	Upload(ctx context.Context, batch types.Batch) error
}

// FlushResult describes one flush attempt.
type FlushResult struct {
	Skipped   bool // a flush was already in progress; nothing was done
	Uploaded  int  // records delivered and removed from the log
	Corrupt   int  // unparseable records skipped
	Remaining int  // records left in the log after a partial flush
	Complete  bool // the log was fully drained and deleted
}

// Store is the overflow log plus its flush policy.
//
// The flush mutex is independent from any queue locking: its only purpose
// is to keep two concurrent flush attempts from double-uploading or
// corrupting the file. A busy flush attempt returns immediately as
// skipped, it never queues.
type Store struct {
	wal       *wal
	maxBytes  int64
	batchSize int
	metrics   *metrics.Metrics

	flushMu sync.Mutex
}

// New creates a store backed by the log file at path. The file itself is
// created lazily on first append.
func New(path string, maxBytes int64, batchSize int, m *metrics.Metrics) *Store {
	s := &Store{
		wal:       newWAL(path),
		maxBytes:  maxBytes,
		batchSize: batchSize,
		metrics:   m,
	}
	s.updateBytesGauge()
	return s
}

// Exists reports whether any overflow data is persisted.
func (s *Store) Exists() bool {
	return s.wal.Exists()
}

// Size returns the persisted size in bytes.
func (s *Store) Size() (int64, error) {
	return s.wal.Size()
}

// Append persists every reading of batch, one line each, in order. The
// whole append is rejected with ErrStoreFull (no partial write) if it
// would push the log past the size cap.
func (s *Store) Append(batch types.Batch) error {
	lines := make([][]byte, 0, len(batch))
	for _, r := range batch {
		line, err := r.MarshalLine()
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}

	if err := s.wal.Append(lines, s.maxBytes); err != nil {
		if errors.Is(err, ErrStoreFull) {
			s.metrics.StoreRejections.Inc()
			slog.Warn("overflow log append rejected, cap reached",
				"readings", len(batch),
				"max_bytes", s.maxBytes,
			)
		}
		return err
	}

	s.metrics.StoreAppends.Inc()
	s.updateBytesGauge()
	slog.Info("batch persisted to overflow log", "readings", len(batch))
	return nil
}

// Flush drains the log through the uploader in batches, in stored order.
//
// If another flush is running, it returns immediately with Skipped set.
// Records that fail to parse are logged and skipped, never aborting the
// flush. On the first batch that fails to upload, the log is atomically
// rewritten to exactly the unconsumed suffix (from the failing batch's
// first record onward) and the upload error is returned. When every
// record is delivered the log file is deleted.
func (s *Store) Flush(ctx context.Context, up Uploader) (FlushResult, error) {
	if !s.flushMu.TryLock() {
		s.metrics.FlushSkipped.Inc()
		slog.Debug("flush already in progress, skipping")
		return FlushResult{Skipped: true}, nil
	}
	defer s.flushMu.Unlock()

	var res FlushResult

	lines, err := s.wal.ReadAll()
	if err != nil {
		return res, err
	}
	if len(lines) == 0 {
		if err := s.wal.Remove(); err != nil {
			return res, err
		}
		s.updateBytesGauge()
		res.Complete = true
		return res, nil
	}

	var (
		batch      types.Batch
		batchStart = -1 // raw line index of the first record in batch
	)

	stopAt := func(uploadErr error) (FlushResult, error) {
		suffix := lines[batchStart:]
		if err := s.wal.ReplaceSuffix(suffix); err != nil {
			return res, err
		}
		res.Remaining = len(suffix)
		s.updateBytesGauge()
		slog.Warn("partial flush, unconsumed suffix persisted",
			"uploaded", res.Uploaded,
			"remaining", res.Remaining,
			"error", uploadErr,
		)
		return res, fmt.Errorf("flush stopped at stored record %d: %w", batchStart, uploadErr)
	}

	for i, line := range lines {
		r, err := types.UnmarshalLine(line)
		if err != nil {
			res.Corrupt++
			s.metrics.CorruptRecords.Inc()
			slog.Warn("skipping corrupt overflow record", "line", i, "error", err)
			continue
		}
		if batchStart < 0 {
			batchStart = i
		}
		batch = append(batch, r)
		if len(batch) < s.batchSize {
			continue
		}

		if uploadErr := up.Upload(ctx, batch); uploadErr != nil {
			return stopAt(uploadErr)
		}
		res.Uploaded += len(batch)
		s.metrics.RecordsFlushed.Add(float64(len(batch)))
		batch, batchStart = nil, -1
	}

	if len(batch) > 0 {
		if uploadErr := up.Upload(ctx, batch); uploadErr != nil {
			return stopAt(uploadErr)
		}
		res.Uploaded += len(batch)
		s.metrics.RecordsFlushed.Add(float64(len(batch)))
	}

	if err := s.wal.Remove(); err != nil {
		return res, err
	}
	s.updateBytesGauge()
	res.Complete = true
	slog.Info("overflow log fully flushed",
		"uploaded", res.Uploaded,
		"corrupt_skipped", res.Corrupt,
	)
	return res, nil
}

func (s *Store) updateBytesGauge() {
	if size, err := s.wal.Size(); err == nil {
		s.metrics.StoreBytes.Set(float64(size))
	}
}
