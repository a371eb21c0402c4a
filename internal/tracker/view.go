// Package tracker derives a patron's live queue position from the store.
// It holds no ranking logic of its own: positions come from the stored
// records and every change event triggers a fresh derivation.
package tracker

import (
	"sort"
	"time"

	"seatnext/internal/queue"
)

// View is one patron's picture of the queue
type View struct {
	Entry    queue.EntryResponse   `json:"entry"`
	Position *int                  `json:"position,omitempty"`
	ETA      *time.Time            `json:"eta,omitempty"`
	Ahead    []queue.EntryResponse `json:"ahead"`
	At       time.Time             `json:"at"`
}

// Derive builds the view of entry given the venue's waiting list. Ahead
// holds the other waiting entries with a lower position, ascending.
func Derive(entry queue.QueueEntry, waiting []queue.QueueEntry, now time.Time) View {
	v := View{
		Entry: queue.ToResponse(&entry, now),
		ETA:   entry.ETA,
		Ahead: []queue.EntryResponse{},
		At:    now,
	}
	if entry.Status != queue.StatusWaiting {
		return v
	}

	position := entry.Position
	v.Position = &position

	ahead := make([]queue.QueueEntry, 0, len(waiting))
	for _, w := range waiting {
		if w.ID == entry.ID || w.Status != queue.StatusWaiting {
			continue
		}
		if w.Position < entry.Position {
			ahead = append(ahead, w)
		}
	}
	sort.SliceStable(ahead, func(i, j int) bool {
		return ahead[i].Position < ahead[j].Position
	})

	for i := range ahead {
		v.Ahead = append(v.Ahead, queue.ToResponse(&ahead[i], now))
	}
	return v
}

// Done reports whether the entry has left the queue for good
func (v View) Done() bool {
	return v.Entry.Status.IsTerminal()
}
