// Package kitchenalerts warns kitchen staff as orders approach and pass
// their ETA: one notice per warning phase, then a continuous alarm once an
// order is late.
package kitchenalerts

import "time"

// Phase is the warning stage of one order
type Phase string

const (
	PhaseNone      Phase = "none"
	PhaseOneMin    Phase = "one_min"
	PhaseThirtySec Phase = "thirty_sec"
	PhaseLate      Phase = "late"
)

// Thresholds are the time-until-due boundaries of the warning phases
type Thresholds struct {
	OneMin    time.Duration
	ThirtySec time.Duration
}

// DefaultThresholds returns the one-minute and thirty-second boundaries
func DefaultThresholds() Thresholds {
	return Thresholds{OneMin: time.Minute, ThirtySec: 30 * time.Second}
}

// NextPhase applies the default thresholds
func NextPhase(untilDue time.Duration, current Phase) (Phase, bool) {
	return DefaultThresholds().Next(untilDue, current)
}

// Next returns the phase an order moves to and whether it moved. Rules are
// checked in priority order; a phase is never re-entered and oneMin is only
// reachable from none.
func (t Thresholds) Next(untilDue time.Duration, current Phase) (Phase, bool) {
	if current == "" {
		current = PhaseNone
	}

	switch {
	case untilDue <= 0:
		if current != PhaseLate {
			return PhaseLate, true
		}
	case untilDue <= t.ThirtySec:
		if current != PhaseThirtySec && current != PhaseLate {
			return PhaseThirtySec, true
		}
	case untilDue <= t.OneMin:
		if current == PhaseNone {
			return PhaseOneMin, true
		}
	}
	return current, false
}
