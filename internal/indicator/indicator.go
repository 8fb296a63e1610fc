// Package indicator abstracts the device status LED. Core logic treats the
// indicator as fire-and-forget: no call returns an error and no call may
// block the caller.
package indicator

import (
	"log/slog"
	"time"
)

// Color is an RGB triplet for the status LED.
type Color struct {
	R, G, B uint8
}

// Status colors, matching the device conventions: green for success,
// yellow for a sensor retry, red for a failure, blue reserved.
var (
	ColorOff    = Color{0, 0, 0}
	ColorRed    = Color{255, 0, 0}
	ColorGreen  = Color{0, 255, 0}
	ColorYellow = Color{255, 255, 0}
	ColorBlue   = Color{0, 0, 255}
)

// Indicator is the status-signal collaborator.
type Indicator interface {
	SetColor(c Color)
	Blink(c Color, count int, duration time.Duration)
}

// Log writes indicator activity to the debug log instead of driving
// hardware. It never sleeps: the blink cadence only matters on a real LED.
type Log struct{}

func (Log) SetColor(c Color) {
	slog.Debug("indicator set", "r", c.R, "g", c.G, "b", c.B)
}

func (Log) Blink(c Color, count int, duration time.Duration) {
	slog.Debug("indicator blink", "r", c.R, "g", c.G, "b", c.B, "count", count, "duration", duration)
}

// Noop discards all indicator activity.
type Noop struct{}

func (Noop) SetColor(Color)                  {}
func (Noop) Blink(Color, int, time.Duration) {}
