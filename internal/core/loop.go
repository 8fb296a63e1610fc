package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/risehi/Pulse32/internal/indicator"
	"github.com/risehi/Pulse32/internal/metrics"
	"github.com/risehi/Pulse32/internal/types"
)

// deliverLoop is the single-threaded delivery cycle. One cycle:
//
//  1. flush the overflow log if it exists and the link comes up,
//  2. drain the sample queue into the pending batch,
//  3. once the pending batch reaches batch_size, upload it; on failure
//     fall back to the overflow log, and on a full log evict oldest-first.
//
// Any panic inside a cycle is caught here, signalled, and followed by an
// extended cooldown; the loop itself never exits before ctx is cancelled.
func (s *Service) deliverLoop(ctx context.Context) {
	slog.Info("delivery loop started", "interval", s.cfg.Loop.Interval())

	ticker := time.NewTicker(s.cfg.Loop.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("delivery loop stopping")
			return
		case <-ticker.C:
			if !s.safeCycle(ctx) {
				sleep(ctx, s.cfg.Loop.Cooldown())
			}
		}
	}
}

// safeCycle runs one cycle under the last-resort recovery handler and
// reports whether it completed without panicking.
func (s *Service) safeCycle(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.CycleFailures.Inc()
			s.ind.Blink(indicator.ColorRed, 10, 250*time.Millisecond)
			slog.Error("unexpected delivery cycle failure, cooling down",
				"panic", r,
				"cooldown", s.cfg.Loop.Cooldown(),
			)
			ok = false
		}
	}()

	s.cycle(ctx)
	return true
}

// cycle performs one delivery pass.
func (s *Service) cycle(ctx context.Context) {
	// Reconcile the overflow log first so stored readings keep their
	// head-of-line position over freshly sampled ones.
	if s.store.Exists() && s.conn.Connect(ctx) {
		if _, err := s.store.Flush(ctx, s.uplink); err != nil {
			slog.Warn("overflow flush incomplete", "error", err)
		}
	}

	drained := s.queue.DrainAll()
	if len(drained) > 0 {
		s.mu.Lock()
		s.pending = append(s.pending, drained...)
		s.mu.Unlock()
	}

	s.mu.RLock()
	ready := len(s.pending) >= s.cfg.Upload.BatchSize
	s.mu.RUnlock()
	if !ready {
		return
	}

	if !s.conn.Connect(ctx) {
		s.persistPending()
		return
	}
	s.uploadPending(ctx)
}

// uploadPending delivers the pending batch in batch_size chunks, oldest
// first. Chunks already acknowledged stay cleared even when a later chunk
// fails and the remainder falls back to the overflow log.
func (s *Service) uploadPending(ctx context.Context) {
	for {
		s.mu.RLock()
		n := min(s.cfg.Upload.BatchSize, len(s.pending))
		batch := append(types.Batch(nil), s.pending[:n]...)
		s.mu.RUnlock()
		if n == 0 {
			return
		}

		if err := s.uplink.Upload(ctx, batch); err != nil {
			s.persistPending()
			return
		}

		s.mu.Lock()
		s.pending = append(types.Batch(nil), s.pending[n:]...)
		s.mu.Unlock()
		s.ind.Blink(indicator.ColorGreen, 2, 250*time.Millisecond)
	}
}

// persistPending transfers the pending batch to the overflow log. When
// the log rejects the append (cap reached), the batch is trimmed in
// memory by the drop-oldest policy down to memory_limit readings and kept
// for the next cycle.
func (s *Service) persistPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return
	}

	if err := s.store.Append(s.pending); err == nil {
		// Ownership transferred to durable storage.
		s.pending = nil
		return
	}

	over := len(s.pending) - s.cfg.Buffer.MemoryLimit
	if over <= 0 {
		return
	}
	for _, r := range s.pending[:over] {
		slog.Warn("evicting oldest pending reading",
			"reading_id", r.ID,
			"captured_at", r.CapturedAt,
		)
	}
	s.metrics.ReadingsDropped.WithLabelValues(metrics.StagePending).Add(float64(over))
	s.pending = append(types.Batch(nil), s.pending[over:]...)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
