package queue

import (
	"fmt"
	"strings"
	"time"

	"seatnext/internal/shared/apperr"
)

// Op names a queue entry operation
type Op string

const (
	OpMarkReady      Op = "mark_ready"
	OpConfirmArrival Op = "confirm_arrival"
	OpMerchantSeats  Op = "merchant_seats"
	OpCancel         Op = "cancel"
	OpExpire         Op = "expire"
	OpGrantExtension Op = "grant_extension"
)

// Command is a requested transition and its arguments
type Command struct {
	Op       Op
	Deadline time.Time
	Reason   string
	Actor    Actor
	Delta    time.Duration
}

// Guard is the store-side precondition of a conditional write. Nil fields
// are not checked.
type Guard struct {
	Statuses             []Status
	AwaitingConfirmation *bool
	PatronDelayed        *bool
	ReadyDeadline        *time.Time
	DeadlineAtOrBefore   *time.Time
}

// Patch is the set of columns a transition writes
type Patch struct {
	Status                       *Status
	ReadyDeadline                *time.Time
	ClearReadyDeadline           bool
	PatronDelayed                *bool
	AwaitingMerchantConfirmation *bool
	CancellationReason           *string
	CancelledBy                  *Actor
}

// Matches evaluates the guard against an entry
func (g Guard) Matches(e QueueEntry) bool {
	if len(g.Statuses) > 0 {
		found := false
		for _, s := range g.Statuses {
			if e.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if g.AwaitingConfirmation != nil && e.AwaitingMerchantConfirmation != *g.AwaitingConfirmation {
		return false
	}
	if g.PatronDelayed != nil && e.PatronDelayed != *g.PatronDelayed {
		return false
	}
	if g.ReadyDeadline != nil && (e.ReadyDeadline == nil || !e.ReadyDeadline.Equal(*g.ReadyDeadline)) {
		return false
	}
	if g.DeadlineAtOrBefore != nil && (e.ReadyDeadline == nil || e.ReadyDeadline.After(*g.DeadlineAtOrBefore)) {
		return false
	}
	return true
}

// Apply returns a copy of e with the patch written
func (p Patch) Apply(e QueueEntry) QueueEntry {
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.ClearReadyDeadline {
		e.ReadyDeadline = nil
	} else if p.ReadyDeadline != nil {
		d := *p.ReadyDeadline
		e.ReadyDeadline = &d
	}
	if p.PatronDelayed != nil {
		e.PatronDelayed = *p.PatronDelayed
	}
	if p.AwaitingMerchantConfirmation != nil {
		e.AwaitingMerchantConfirmation = *p.AwaitingMerchantConfirmation
	}
	if p.CancellationReason != nil {
		r := *p.CancellationReason
		e.CancellationReason = &r
	}
	if p.CancelledBy != nil {
		a := *p.CancelledBy
		e.CancelledBy = &a
	}
	return e
}

// Columns converts the patch to a column map for the store
func (p Patch) Columns(now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": now}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.ClearReadyDeadline {
		cols["ready_deadline"] = nil
	} else if p.ReadyDeadline != nil {
		cols["ready_deadline"] = *p.ReadyDeadline
	}
	if p.PatronDelayed != nil {
		cols["patron_delayed"] = *p.PatronDelayed
	}
	if p.AwaitingMerchantConfirmation != nil {
		cols["awaiting_merchant_confirmation"] = *p.AwaitingMerchantConfirmation
	}
	if p.CancellationReason != nil {
		cols["cancellation_reason"] = *p.CancellationReason
	}
	if p.CancelledBy != nil {
		cols["cancelled_by"] = string(*p.CancelledBy)
	}
	return cols
}

var activeStatuses = []Status{StatusWaiting, StatusReady, StatusAwaitingConfirmation}

// Transition validates cmd against the entry and returns the conditional
// write that performs it. It never touches the store.
func Transition(e QueueEntry, cmd Command, now time.Time) (Guard, Patch, error) {
	op := string(cmd.Op)

	switch cmd.Op {
	case OpMarkReady:
		if e.Status != StatusWaiting {
			return Guard{}, Patch{}, apperr.Validation(op, fmt.Sprintf("entry is %s, only waiting entries can be marked ready", e.Status))
		}
		if cmd.Deadline.IsZero() || !cmd.Deadline.After(now) {
			return Guard{}, Patch{}, apperr.Validation(op, "ready deadline must be in the future")
		}
		deadline := storeTime(cmd.Deadline)
		return Guard{Statuses: []Status{StatusWaiting}},
			Patch{
				Status:                       statusPtr(StatusReady),
				ReadyDeadline:                &deadline,
				AwaitingMerchantConfirmation: boolPtr(false),
			}, nil

	case OpConfirmArrival:
		if e.Status != StatusReady || e.AwaitingMerchantConfirmation {
			return Guard{}, Patch{}, apperr.Validation(op, fmt.Sprintf("entry is %s, arrival can only be confirmed while ready", e.PatronStatus()))
		}
		// No deadline check: an arrival that reaches the store before the
		// expiry write wins.
		return Guard{Statuses: []Status{StatusReady}, AwaitingConfirmation: boolPtr(false)},
			Patch{
				Status:                       statusPtr(StatusAwaitingConfirmation),
				AwaitingMerchantConfirmation: boolPtr(true),
				ClearReadyDeadline:           true,
			}, nil

	case OpMerchantSeats:
		if e.Status != StatusAwaitingConfirmation {
			return Guard{}, Patch{}, apperr.Validation(op, fmt.Sprintf("entry is %s, only arrived parties can be seated", e.PatronStatus()))
		}
		return Guard{Statuses: []Status{StatusAwaitingConfirmation}},
			Patch{
				Status:                       statusPtr(StatusSeated),
				AwaitingMerchantConfirmation: boolPtr(false),
				ClearReadyDeadline:           true,
			}, nil

	case OpCancel:
		if e.Status.IsTerminal() {
			return Guard{}, Patch{}, apperr.Validation(op, fmt.Sprintf("entry is already %s", e.PatronStatus()))
		}
		if !cmd.Actor.IsValid() {
			return Guard{}, Patch{}, apperr.Validation(op, "unknown cancelling actor")
		}
		reason := strings.TrimSpace(cmd.Reason)
		if reason == "" {
			reason = fmt.Sprintf("Cancelled by %s", cmd.Actor)
		}
		return Guard{Statuses: activeStatuses}, cancelPatch(StatusCancelled, reason, cmd.Actor), nil

	case OpExpire:
		if !e.ExpiryDue(now) {
			return Guard{}, Patch{}, apperr.Validation(op, "entry is not past its ready deadline")
		}
		at := storeTime(now)
		return Guard{
				Statuses:             []Status{StatusReady},
				AwaitingConfirmation: boolPtr(false),
				DeadlineAtOrBefore:   &at,
			},
			cancelPatch(StatusNoShow, ExpiryReason, ActorSystem), nil

	case OpGrantExtension:
		return extensionTransition(e, cmd.Delta, now)

	default:
		return Guard{}, Patch{}, apperr.Validation(op, "unknown operation")
	}
}

func cancelPatch(status Status, reason string, actor Actor) Patch {
	return Patch{
		Status:                       statusPtr(status),
		ClearReadyDeadline:           true,
		AwaitingMerchantConfirmation: boolPtr(false),
		CancellationReason:           &reason,
		CancelledBy:                  &actor,
	}
}

// storeTime drops precision the database cannot keep, so guards that
// compare timestamps match what was written
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func statusPtr(s Status) *Status { return &s }

func boolPtr(b bool) *bool { return &b }
