package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/risehi/Pulse32/internal/metrics"
	"github.com/risehi/Pulse32/internal/types"
)

type capture struct {
	mu       sync.Mutex
	calls    int
	statuses []int // scripted responses, last repeats
	bodies   [][]byte
	times    []time.Time
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()

		body, _ := io.ReadAll(r.Body)
		c.bodies = append(c.bodies, body)
		c.times = append(c.times, time.Now())

		status := c.statuses[len(c.statuses)-1]
		if c.calls < len(c.statuses) {
			status = c.statuses[c.calls]
		}
		c.calls++
		w.WriteHeader(status)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testBatch(n int) types.Batch {
	batch := make(types.Batch, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, types.Reading{
			ID:           string(rune('a' + i)),
			CapturedAt:   time.Date(2024, 3, 1, 12, 0, i, 0, time.UTC),
			PartitionKey: "dev-1",
			Groups:       map[string]map[string]float64{"env": {"temp_c": 20 + float64(i)}},
		})
	}
	return batch
}

func client(url string, retries int, delay time.Duration) *Client {
	return New(Config{
		URL:        url,
		APIKey:     "key",
		Timeout:    2 * time.Second,
		Retries:    retries,
		RetryDelay: delay,
	}, metrics.New(prometheus.NewRegistry()))
}

// TestUploadPayloadPreservesOrder checks that a successful upload carries
// every reading in acquisition order with the required wire fields.
func TestUploadPayloadPreservesOrder(t *testing.T) {
	cap := &capture{statuses: []int{200}}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	batch := testBatch(5)
	err := client(srv.URL, 3, time.Millisecond).Upload(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 1, cap.count())

	var records []types.Record
	require.NoError(t, json.Unmarshal(cap.bodies[0], &records))
	require.Len(t, records, 5)
	for i, rec := range records {
		require.Equal(t, batch[i].ID, rec.ID)
		require.Equal(t, "dev-1", rec.PartitionKey)
		require.NotEmpty(t, rec.Payload)

		var payload struct {
			CapturedAt time.Time                     `json:"captured_at"`
			Groups     map[string]map[string]float64 `json:"groups"`
		}
		require.NoError(t, json.Unmarshal([]byte(rec.Payload), &payload))
		require.Equal(t, batch[i].CapturedAt, payload.CapturedAt)
		require.Equal(t, batch[i].Groups, payload.Groups)
	}
}

// TestUploadNon200IsFailure checks that only an exact 200 counts as
// success: a 204 is rejected.
func TestUploadNon200IsFailure(t *testing.T) {
	cap := &capture{statuses: []int{204}}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	err := client(srv.URL, 2, time.Millisecond).Upload(context.Background(), testBatch(1))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUpstreamRejected)
	require.Equal(t, 2, cap.count())
}

// TestUploadRetriesWithBackoff is the 500-then-200 scenario: success after
// exactly 2 attempts with a delay consistent with the backoff floor.
func TestUploadRetriesWithBackoff(t *testing.T) {
	cap := &capture{statuses: []int{500, 200}}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	const delay = 50 * time.Millisecond
	err := client(srv.URL, 3, delay).Upload(context.Background(), testBatch(2))
	require.NoError(t, err)
	require.Equal(t, 2, cap.count())

	gap := cap.times[1].Sub(cap.times[0])
	require.GreaterOrEqual(t, gap, delay, "retry fired before the configured backoff")
}

// TestUploadExhaustsRetries checks the attempt bound and that the caller
// gets the final failure.
func TestUploadExhaustsRetries(t *testing.T) {
	cap := &capture{statuses: []int{500}}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	err := client(srv.URL, 3, time.Millisecond).Upload(context.Background(), testBatch(1))
	require.Error(t, err)
	require.Equal(t, 3, cap.count())
}

// TestUploadInvalidRecordFailsFast checks the precondition: a reading
// missing a required field fails without any request or retry.
func TestUploadInvalidRecordFailsFast(t *testing.T) {
	cap := &capture{statuses: []int{200}}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	batch := testBatch(2)
	batch[1].PartitionKey = ""

	err := client(srv.URL, 3, time.Millisecond).Upload(context.Background(), batch)
	require.Error(t, err)
	require.ErrorIs(t, err, types.ErrInvalidReading)
	require.Equal(t, 0, cap.count(), "invalid batch must not be transmitted")
}

// TestUploadTransportError checks a connection-level failure is retried
// and then surfaced.
func TestUploadTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := client(url, 2, time.Millisecond).Upload(context.Background(), testBatch(1))
	require.Error(t, err)
	require.False(t, errors.Is(err, types.ErrInvalidReading))
}

// TestUploadEmptyBatchIsNoop checks nothing is sent for an empty batch.
func TestUploadEmptyBatchIsNoop(t *testing.T) {
	cap := &capture{statuses: []int{200}}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	require.NoError(t, client(srv.URL, 3, time.Millisecond).Upload(context.Background(), nil))
	require.Equal(t, 0, cap.count())
}
