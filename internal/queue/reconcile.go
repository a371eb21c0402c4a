package queue

import (
	"fmt"

	"seatnext/internal/changefeed"
)

// Merge applies a change-feed event to a locally held entry. The event is
// authoritative: for an event about the same record the stored value
// replaces whatever was optimistically written locally. A delete yields nil.
// Events for other records leave local untouched.
func Merge(local *QueueEntry, ev changefeed.Event) (*QueueEntry, error) {
	if ev.Table != changefeed.TableQueueEntries {
		return local, nil
	}
	if local != nil && local.ID != ev.RecordID {
		return local, nil
	}

	switch ev.Type {
	case changefeed.EventDelete:
		return nil, nil
	case changefeed.EventInsert, changefeed.EventUpdate:
		var stored QueueEntry
		if err := ev.Decode(&stored); err != nil {
			return local, fmt.Errorf("decode queue entry event: %w", err)
		}
		return &stored, nil
	default:
		return local, fmt.Errorf("unknown change event type %q", ev.Type)
	}
}

// EntryFromEvent decodes the stored entry carried by an insert or update
func EntryFromEvent(ev changefeed.Event) (*QueueEntry, error) {
	return Merge(nil, ev)
}
