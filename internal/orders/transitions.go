package orders

import (
	"fmt"
	"time"

	"seatnext/internal/shared/apperr"
)

// transitions is the complete table of allowed status changes. Terminal
// states have no entry.
var transitions = map[Status][]Status{
	StatusAwaitingVerification: {StatusPlaced, StatusRejected, StatusCancelled},
	StatusPlaced:               {StatusInPrep, StatusReady, StatusRejected, StatusCancelled},
	StatusInPrep:               {StatusReady, StatusCancelled},
	StatusReady:                {StatusCollected, StatusNoShow, StatusCancelled},
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Guard is the stored state a conditional order write requires
type Guard struct {
	Status Status
	ETA    *time.Time
}

// Matches evaluates the guard against an order
func (g Guard) Matches(o Order) bool {
	if g.Status != "" && o.Status != g.Status {
		return false
	}
	if g.ETA != nil && (o.ETA == nil || !o.ETA.Equal(*g.ETA)) {
		return false
	}
	return true
}

// Patch is the set of columns an order write changes
type Patch struct {
	Status                       *Status
	ETA                          *time.Time
	ClearETA                     bool
	OriginalETA                  *time.Time
	AwaitingMerchantConfirmation *bool
}

// Apply returns a copy of o with the patch written
func (p Patch) Apply(o Order) Order {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.ClearETA {
		o.ETA = nil
	} else if p.ETA != nil {
		eta := *p.ETA
		o.ETA = &eta
	}
	if p.OriginalETA != nil {
		orig := *p.OriginalETA
		o.OriginalETA = &orig
	}
	if p.AwaitingMerchantConfirmation != nil {
		o.AwaitingMerchantConfirmation = *p.AwaitingMerchantConfirmation
	}
	return o
}

// Columns converts the patch to a column map for the store
func (p Patch) Columns(now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": now}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.ClearETA {
		cols["eta"] = nil
	} else if p.ETA != nil {
		cols["eta"] = *p.ETA
	}
	if p.OriginalETA != nil {
		cols["original_eta"] = *p.OriginalETA
	}
	if p.AwaitingMerchantConfirmation != nil {
		cols["awaiting_merchant_confirmation"] = *p.AwaitingMerchantConfirmation
	}
	return cols
}

// Transition validates a status change and returns the conditional write
// that performs it. Rejected and cancelled orders lose their ETA so they
// do not count towards due-time figures.
func Transition(o Order, to Status) (Guard, Patch, error) {
	const op = "update_order_status"

	if !to.IsValid() {
		return Guard{}, Patch{}, apperr.Validation(op, fmt.Sprintf("unknown order status %q", to))
	}
	if !CanTransition(o.Status, to) {
		return Guard{}, Patch{}, apperr.Validation(op, fmt.Sprintf("order cannot move from %s to %s", o.Status, to))
	}

	patch := Patch{Status: &to}
	switch to {
	case StatusRejected, StatusCancelled:
		patch.ClearETA = true
	}
	if o.Status == StatusAwaitingVerification {
		verified := false
		patch.AwaitingMerchantConfirmation = &verified
	}
	return Guard{Status: o.Status}, patch, nil
}

// Extend pushes the ETA back by delta. The first extension records the
// original ETA; later ones leave it alone.
func Extend(o Order, delta time.Duration, now time.Time) (Guard, Patch, error) {
	const op = "extend_order_eta"

	if delta <= 0 {
		return Guard{}, Patch{}, apperr.Validation(op, "extension must be positive")
	}
	if !o.Status.InKitchen() {
		return Guard{}, Patch{}, apperr.Validation(op, fmt.Sprintf("order is %s, only placed or in-prep orders can be extended", o.Status))
	}

	base := now
	if o.ETA != nil {
		base = *o.ETA
	}
	eta := storeTime(base.Add(delta))

	guard := Guard{Status: o.Status}
	patch := Patch{ETA: &eta}
	if o.ETA != nil {
		current := storeTime(*o.ETA)
		guard.ETA = &current
		if o.OriginalETA == nil {
			patch.OriginalETA = &current
		}
	}
	return guard, patch, nil
}

func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
