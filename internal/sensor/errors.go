package sensor

import "errors"

// errTransient marks a recoverable hardware fault: the read failed but the
// next attempt may succeed.
var errTransient = errors.New("sensor: transient read failure")
