// Package changefeed carries insert/update/delete notifications for queue
// entries and orders from the store to every component that mirrors them.
//
// Events are authoritative: a subscriber holding an optimistic local copy of
// a record must replace it with the event payload.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of change
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Table names the record family an event belongs to
type Table string

const (
	TableQueueEntries Table = "queue_entries"
	TableOrders       Table = "orders"
)

// Event is a single committed change
type Event struct {
	Type     EventType       `json:"event_type"`
	Table    Table           `json:"table"`
	VenueID  uuid.UUID       `json:"venue_id"`
	RecordID uuid.UUID       `json:"record_id"`
	Old      json.RawMessage `json:"old,omitempty"`
	New      json.RawMessage `json:"new,omitempty"`
	At       time.Time       `json:"at"`
}

// NewEvent builds an event, encoding old and new records as JSON. Either
// record may be nil.
func NewEvent(typ EventType, table Table, venueID, recordID uuid.UUID, oldRecord, newRecord interface{}, at time.Time) (Event, error) {
	ev := Event{
		Type:     typ,
		Table:    table,
		VenueID:  venueID,
		RecordID: recordID,
		At:       at,
	}

	if oldRecord != nil {
		raw, err := json.Marshal(oldRecord)
		if err != nil {
			return Event{}, fmt.Errorf("encode old record: %w", err)
		}
		ev.Old = raw
	}
	if newRecord != nil {
		raw, err := json.Marshal(newRecord)
		if err != nil {
			return Event{}, fmt.Errorf("encode new record: %w", err)
		}
		ev.New = raw
	}

	return ev, nil
}

// Decode unmarshals the new record into dest
func (e Event) Decode(dest interface{}) error {
	if len(e.New) == 0 {
		return fmt.Errorf("%s event for %s carries no new record", e.Type, e.RecordID)
	}
	return json.Unmarshal(e.New, dest)
}

// DecodeOld unmarshals the previous record into dest
func (e Event) DecodeOld(dest interface{}) error {
	if len(e.Old) == 0 {
		return fmt.Errorf("%s event for %s carries no old record", e.Type, e.RecordID)
	}
	return json.Unmarshal(e.Old, dest)
}

// Filter selects the events a subscriber receives. Zero IDs match anything.
type Filter struct {
	Table    Table
	VenueID  uuid.UUID
	RecordID uuid.UUID
}

// Match reports whether ev passes the filter
func (f Filter) Match(ev Event) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.VenueID != uuid.Nil && f.VenueID != ev.VenueID {
		return false
	}
	if f.RecordID != uuid.Nil && f.RecordID != ev.RecordID {
		return false
	}
	return true
}

// Publisher emits committed changes
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber opens filtered change streams
type Subscriber interface {
	Subscribe(ctx context.Context, filter Filter) (*Subscription, error)
}

// Feed is both ends of the change stream
type Feed interface {
	Publisher
	Subscriber
}

// Subscription is a scoped change stream. C is closed after Close or when
// the subscribing context ends.
type Subscription struct {
	C <-chan Event

	closeFn func() error
	once    sync.Once
	err     error
}

func newSubscription(c <-chan Event, closeFn func() error) *Subscription {
	return &Subscription{C: c, closeFn: closeFn}
}

// Close tears the subscription down; it is safe to call more than once
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
	})
	return s.err
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
