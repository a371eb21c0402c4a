package queue

import (
	"time"

	"seatnext/internal/shared/apperr"
)

// ExtendedDeadline compounds delta on the current deadline. A missing
// deadline falls back to now.
func ExtendedDeadline(current *time.Time, now time.Time, delta time.Duration) time.Time {
	base := now
	if current != nil {
		base = *current
	}
	return storeTime(base.Add(delta))
}

func extensionTransition(e QueueEntry, delta time.Duration, now time.Time) (Guard, Patch, error) {
	op := string(OpGrantExtension)

	if delta <= 0 {
		return Guard{}, Patch{}, apperr.Validation(op, "extension must be positive")
	}
	if e.Status != StatusReady || e.AwaitingMerchantConfirmation {
		return Guard{}, Patch{}, apperr.Validation(op, "extensions are only available while the table is being held")
	}
	if e.PatronDelayed {
		return Guard{}, Patch{}, apperr.Policy(op, "the grace extension has already been used")
	}

	deadline := ExtendedDeadline(e.ReadyDeadline, now, delta)

	guard := Guard{
		Statuses:             []Status{StatusReady},
		AwaitingConfirmation: boolPtr(false),
		PatronDelayed:        boolPtr(false),
	}
	if e.ReadyDeadline != nil {
		current := storeTime(*e.ReadyDeadline)
		guard.ReadyDeadline = &current
	}

	return guard, Patch{
		ReadyDeadline: &deadline,
		PatronDelayed: boolPtr(true),
	}, nil
}
