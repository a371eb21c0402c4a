// Package countdown tracks the arrival window of every ready queue entry and
// expires the entry once its deadline passes.
package countdown

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/queue"
)

// Remaining is the time left on a deadline, split for display
type Remaining struct {
	Total   time.Duration
	Minutes int
	Seconds int
}

// Compute returns max(0, deadline-now) in whole minutes and seconds. Partial
// seconds round up so the display reaches 00:00 only when the deadline has
// actually passed.
func Compute(now, deadline time.Time) Remaining {
	total := deadline.Sub(now)
	if total <= 0 {
		return Remaining{}
	}
	secs := int((total + time.Second - 1) / time.Second)
	return Remaining{
		Total:   total,
		Minutes: secs / 60,
		Seconds: secs % 60,
	}
}

// Elapsed reports whether the deadline has been reached
func (r Remaining) Elapsed() bool {
	return r.Total <= 0
}

func (r Remaining) String() string {
	return fmt.Sprintf("%02d:%02d", r.Minutes, r.Seconds)
}

// Effect is what a tick asks the engine to do
type Effect int

const (
	EffectNone Effect = iota
	EffectExpire
	EffectStop
)

func (e Effect) String() string {
	switch e {
	case EffectExpire:
		return "expire"
	case EffectStop:
		return "stop"
	default:
		return "none"
	}
}

// Countdown is the tracked state of one ready entry
type Countdown struct {
	EntryID   uuid.UUID
	VenueID   uuid.UUID
	Deadline  time.Time
	Remaining Remaining
	Active    bool
	// Fired is set once expiry has been requested for the current deadline
	Fired     bool
	UpdatedAt time.Time
}

// FromEntry builds the countdown for an entry. Active is false when the
// entry is not in a counting state.
func FromEntry(e queue.QueueEntry) Countdown {
	c := Countdown{
		EntryID:   e.ID,
		VenueID:   e.VenueID,
		UpdatedAt: e.UpdatedAt,
		Active:    e.IsCountingDown(),
	}
	if e.ReadyDeadline != nil {
		c.Deadline = *e.ReadyDeadline
	}
	return c
}

// Step advances a countdown to now. Expiry is requested on the first tick
// that finds the deadline elapsed and never again for the same deadline.
func Step(now time.Time, c Countdown) (Countdown, Effect) {
	if !c.Active {
		return c, EffectStop
	}

	c.Remaining = Compute(now, c.Deadline)
	if c.Fired || !c.Remaining.Elapsed() {
		return c, EffectNone
	}

	c.Fired = true
	return c, EffectExpire
}

// Rebase merges the authoritative entry into a tracked countdown. A moved
// deadline rearms expiry.
func Rebase(c Countdown, e queue.QueueEntry) Countdown {
	next := FromEntry(e)
	if c.Active && next.Active && c.Deadline.Equal(next.Deadline) {
		next.Fired = c.Fired
	}
	return next
}
