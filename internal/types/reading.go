package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidReading is returned when a reading is missing a field required
// by the wire format.
var ErrInvalidReading = errors.New("reading missing required field")

// Reading is one timestamped set of sampled metrics. Readings are immutable
// once created: components hand them around by value and never mutate the
// Groups map after construction.
type Reading struct {
	ID           string                        `json:"id"`
	CapturedAt   time.Time                     `json:"captured_at"`
	PartitionKey string                        `json:"partition_key"`
	Groups       map[string]map[string]float64 `json:"groups"`
}

// Validate checks that the reading carries every field the wire format
// requires. A reading that fails validation must never reach the uploader.
func (r Reading) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id", ErrInvalidReading)
	}
	if r.PartitionKey == "" {
		return fmt.Errorf("%w: partition_key", ErrInvalidReading)
	}
	if r.CapturedAt.IsZero() {
		return fmt.Errorf("%w: captured_at", ErrInvalidReading)
	}
	if len(r.Groups) == 0 {
		return fmt.Errorf("%w: groups", ErrInvalidReading)
	}
	return nil
}

// Record is the wire representation of one reading: the collector contract
// requires id, partitionKey and an opaque payload string per record.
type Record struct {
	ID           string `json:"id"`
	PartitionKey string `json:"partitionKey"`
	Payload      string `json:"payload"`
}

// payload is the JSON document carried inside Record.Payload.
type payload struct {
	CapturedAt time.Time                     `json:"captured_at"`
	Groups     map[string]map[string]float64 `json:"groups"`
}

// ToRecord converts the reading into its wire record. The caller is
// expected to have validated the reading first.
func (r Reading) ToRecord() (Record, error) {
	body, err := json.Marshal(payload{CapturedAt: r.CapturedAt, Groups: r.Groups})
	if err != nil {
		return Record{}, fmt.Errorf("encode reading payload: %w", err)
	}
	return Record{
		ID:           r.ID,
		PartitionKey: r.PartitionKey,
		Payload:      string(body),
	}, nil
}

// MarshalLine encodes the reading as a single overflow-log line (without
// the trailing newline).
func (r Reading) MarshalLine() ([]byte, error) {
	line, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	return line, nil
}

// UnmarshalLine decodes one overflow-log line back into a reading.
func UnmarshalLine(line []byte) (Reading, error) {
	var r Reading
	if err := json.Unmarshal(line, &r); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}
	return r, nil
}

// Batch is an ordered group of readings sized for one upload call.
// Acquisition order is preserved end to end.
type Batch []Reading

// Records converts the batch to its wire records, preserving order.
// It fails on the first reading that does not satisfy the wire format.
func (b Batch) Records() ([]Record, error) {
	records := make([]Record, 0, len(b))
	for _, r := range b {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		rec, err := r.ToRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
