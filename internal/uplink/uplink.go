// Package uplink delivers batches of readings to the remote collector.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/grafana/dskit/backoff"

	"github.com/risehi/Pulse32/internal/metrics"
	"github.com/risehi/Pulse32/internal/types"
)

const maxErrMsgLen = 256

// ErrUpstreamRejected means the collector answered with a non-200 status.
var ErrUpstreamRejected = errors.New("collector rejected batch")

// Config holds uploader settings.
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration // per-request timeout
	Retries    int           // total attempts per batch
	RetryDelay time.Duration // initial backoff, doubles per attempt
}

// Client uploads one batch per request. A batch is serialized once and
// retried with exponential backoff; the caller decides persistence after
// all attempts fail.
type Client struct {
	cfg     Config
	client  *http.Client
	metrics *metrics.Metrics
}

// New creates an uploader.
func New(cfg Config, m *metrics.Metrics) *Client {
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		metrics: m,
	}
}

// Upload transmits batch, preserving acquisition order. A reading missing
// a required wire field fails immediately with types.ErrInvalidReading
// without consuming a retry. On transport failure or a non-200 response
// the request is retried up to the configured attempt count with delays of
// retry_delay x 2^attempt.
func (c *Client) Upload(ctx context.Context, batch types.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	records, err := batch.Records()
	if err != nil {
		// Invalid-record failures are permanent: retrying cannot fix them.
		return err
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	bo := backoff.New(ctx, backoff.Config{
		MinBackoff: c.cfg.RetryDelay,
		MaxBackoff: c.cfg.RetryDelay * (1 << uint(c.cfg.Retries)),
		MaxRetries: c.cfg.Retries,
	})

	var lastErr error
	for {
		attempt := bo.NumRetries() + 1
		start := time.Now()
		lastErr = c.send(ctx, body)
		if lastErr == nil {
			c.metrics.BatchesUploaded.Inc()
			c.metrics.ReadingsUploaded.Add(float64(len(batch)))
			slog.Info("batch uploaded",
				"size", len(batch),
				"attempt", attempt,
				"duration", time.Since(start),
			)
			return nil
		}

		slog.Warn("upload attempt failed",
			"attempt", attempt,
			"retries", c.cfg.Retries,
			"error", lastErr,
		)
		bo.Wait()

		// Make sure it sends at least once before checking for retry.
		if !bo.Ongoing() {
			break
		}
		c.metrics.UploadRetries.Inc()
	}

	c.metrics.UploadFailures.Inc()
	slog.Error("batch upload exhausted all attempts",
		"size", len(batch),
		"attempts", c.cfg.Retries,
		"error", lastErr,
	)
	return fmt.Errorf("upload failed after %d attempts: %w", c.cfg.Retries, lastErr)
}

// send performs one request. Success is exactly HTTP 200.
func (c *Client) send(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrMsgLen))
		return fmt.Errorf("%w: HTTP %d: %s", ErrUpstreamRejected, resp.StatusCode, string(msg))
	}
	return nil
}
