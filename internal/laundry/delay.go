package laundry

import "time"

// Delay is the lateness of a pickup.
type Delay struct {
	// LateMinutes is the whole minutes between expected end and pickup, never negative.
	LateMinutes int `json:"lateMinutes"`
	// DelayMinutes is the part of LateMinutes beyond the grace period; this is what gets recorded.
	DelayMinutes int `json:"delayMinutes"`
}

// ComputeDelay floors the time past expectedEnd to whole minutes and subtracts the grace period.
func ComputeDelay(expectedEnd, at time.Time, graceMinutes int) Delay {
	late := 0
	if d := at.Sub(expectedEnd); d > 0 {
		late = int(d / time.Minute)
	}
	recorded := late - graceMinutes
	if recorded < 0 {
		recorded = 0
	}
	return Delay{LateMinutes: late, DelayMinutes: recorded}
}
