package capability

import (
	"time"
)

// ClockKind selects which clock a time query reads.
type ClockKind int32

const (
	// ClockMonotonic measures elapsed time since host creation. It never
	// goes backwards and is unaffected by wall clock adjustments.
	ClockMonotonic ClockKind = iota
	// ClockUptime is an alias for the monotonic clock on this host.
	ClockUptime
	// ClockDate is the wall clock as seconds since the Unix epoch.
	ClockDate
)

// Clock answers guest time queries in seconds as float64, the resolution
// the boundary's F tag carries.
type Clock struct {
	start time.Time
	now   func() time.Time
}

// NewClock creates a clock whose monotonic origin is the moment of creation.
func NewClock() *Clock {
	return &Clock{start: time.Now(), now: time.Now}
}

// Time returns the current reading of the given clock in seconds. Unknown
// kinds read as the monotonic clock.
func (c *Clock) Time(kind ClockKind) float64 {
	switch kind {
	case ClockDate:
		t := c.now()
		return float64(t.UnixNano()) / float64(time.Second)
	default:
		return c.now().Sub(c.start).Seconds()
	}
}
