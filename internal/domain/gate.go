package domain

import "time"

const (
	// GateRefreshPeriod is how often the history gate grants a new permit.
	GateRefreshPeriod = time.Second
	// GateAdmitTimeout sits just above one refresh period.
	GateAdmitTimeout = 1001 * time.Millisecond
)

// GateEvent is one admission decision of the history gate.
type GateEvent struct {
	Name    string
	Allowed bool
	Waited  time.Duration
	At      time.Time
}
