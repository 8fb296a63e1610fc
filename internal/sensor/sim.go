package sensor

import (
	"math/rand"
	"sync"
)

// Sim generates plausible environment samples so the daemon runs
// end-to-end without hardware. Temperature and humidity follow a bounded
// random walk around room conditions.
type Sim struct {
	mu    sync.Mutex
	rng   *rand.Rand
	temp  float64
	humid float64

	// FailEvery injects a transient fault on every Nth read when > 0.
	FailEvery int
	reads     int
}

// NewSim creates a simulated sensor seeded for reproducible runs.
func NewSim(seed int64) *Sim {
	return &Sim{
		rng:   rand.New(rand.NewSource(seed)),
		temp:  21.5,
		humid: 45.0,
	}
}

// Measure implements Sensor.
func (s *Sim) Measure() (map[string]map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.FailEvery > 0 && s.reads%s.FailEvery == 0 {
		return nil, errTransient
	}

	s.temp = walk(s.rng, s.temp, 0.2, 10, 35)
	s.humid = walk(s.rng, s.humid, 0.5, 20, 90)

	return map[string]map[string]float64{
		"environment": {
			"temperature_c":       s.temp,
			"relative_humidity_p": s.humid,
		},
	}, nil
}

// walk nudges v by at most step in either direction, clamped to [lo, hi].
func walk(rng *rand.Rand, v, step, lo, hi float64) float64 {
	v += (rng.Float64()*2 - 1) * step
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
