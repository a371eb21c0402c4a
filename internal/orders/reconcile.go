package orders

import (
	"fmt"

	"seatnext/internal/changefeed"
)

// Merge applies an order change event to a local copy. The stored record
// always wins; a delete yields nil.
func Merge(local *Order, ev changefeed.Event) (*Order, error) {
	if ev.Table != changefeed.TableOrders {
		return local, nil
	}
	if local != nil && local.ID != ev.RecordID {
		return local, nil
	}

	switch ev.Type {
	case changefeed.EventDelete:
		return nil, nil
	case changefeed.EventInsert, changefeed.EventUpdate:
		var stored Order
		if err := ev.Decode(&stored); err != nil {
			return local, fmt.Errorf("decode order event: %w", err)
		}
		return &stored, nil
	default:
		return local, fmt.Errorf("unknown change event type %q", ev.Type)
	}
}
