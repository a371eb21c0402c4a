package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status is the stored lifecycle position of a queue entry
type Status string

const (
	StatusWaiting              Status = "waiting"
	StatusReady                Status = "ready"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusSeated               Status = "seated"
	StatusCancelled            Status = "cancelled"
	StatusNoShow               Status = "no_show"
)

// Actor identifies who cancelled an entry
type Actor string

const (
	ActorPatron Actor = "patron"
	ActorVenue  Actor = "venue"
	ActorSystem Actor = "system"
)

type ReservationType string

const (
	ReservationWalkIn      ReservationType = "walk_in"
	ReservationReservation ReservationType = "reservation"
)

// DisplayState is the patron-facing framing of an entry
type DisplayState string

const (
	DisplayWaiting              DisplayState = "waiting"
	DisplayReady                DisplayState = "ready"
	DisplayDelayedCountdown     DisplayState = "delayed_countdown"
	DisplayAwaitingConfirmation DisplayState = "awaiting_confirmation"
	DisplaySeated               DisplayState = "seated"
	DisplayCancelled            DisplayState = "cancelled"
)

// ExpiryReason is recorded when the system cancels an entry whose ready
// deadline passed
const ExpiryReason = "Patron did not arrive before the ready deadline"

const (
	// ReadyWindow is the default time a patron has to arrive once ready
	ReadyWindow = 10 * time.Minute

	// ExtensionDelta is the single grace extension
	ExtensionDelta = 5 * time.Minute

	MinPartySize = 1
	MaxPartySize = 12
)

// QueueEntry is one patron's place in a venue queue
type QueueEntry struct {
	ID                           uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	VenueID                      uuid.UUID       `json:"venue_id" gorm:"type:uuid;not null;index:idx_queue_venue_status"`
	PatronID                     *uuid.UUID      `json:"patron_id,omitempty" gorm:"type:uuid;index"`
	TableID                      *uuid.UUID      `json:"table_id,omitempty" gorm:"type:uuid"`
	PartySize                    int             `json:"party_size" gorm:"not null"`
	Status                       Status          `json:"status" gorm:"type:varchar(32);not null;index:idx_queue_venue_status"`
	Position                     int             `json:"position" gorm:"not null;default:0"`
	ETA                          *time.Time      `json:"eta,omitempty" gorm:"column:eta"`
	ReadyDeadline                *time.Time      `json:"ready_deadline,omitempty" gorm:"index"`
	PatronDelayed                bool            `json:"patron_delayed" gorm:"not null;default:false"`
	AwaitingMerchantConfirmation bool            `json:"awaiting_merchant_confirmation" gorm:"not null;default:false"`
	CancellationReason           *string         `json:"cancellation_reason,omitempty" gorm:"type:text"`
	CancelledBy                  *Actor          `json:"cancelled_by,omitempty" gorm:"type:varchar(16)"`
	ReservationType              ReservationType `json:"reservation_type" gorm:"type:varchar(16);not null;default:'walk_in'"`
	ReservationTime              *time.Time      `json:"reservation_time,omitempty"`
	LinkedReservationID          *uuid.UUID      `json:"linked_reservation_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt                    time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt                    time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (QueueEntry) TableName() string {
	return "queue_entries"
}

// IsValid checks if the status is one of the known values
func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusReady, StatusAwaitingConfirmation, StatusSeated, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSeated, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

func (a Actor) IsValid() bool {
	switch a {
	case ActorPatron, ActorVenue, ActorSystem:
		return true
	default:
		return false
	}
}

// PatronStatus collapses no_show into cancelled; the distinction is kept in
// storage only
func (e *QueueEntry) PatronStatus() Status {
	if e.Status == StatusNoShow {
		return StatusCancelled
	}
	return e.Status
}

// DisplayState returns the UI framing of the entry
func (e *QueueEntry) DisplayState() DisplayState {
	switch e.Status {
	case StatusWaiting:
		return DisplayWaiting
	case StatusReady:
		if e.PatronDelayed {
			return DisplayDelayedCountdown
		}
		return DisplayReady
	case StatusAwaitingConfirmation:
		return DisplayAwaitingConfirmation
	case StatusSeated:
		return DisplaySeated
	default:
		return DisplayCancelled
	}
}

// IsCountingDown reports whether a deadline countdown should run
func (e *QueueEntry) IsCountingDown() bool {
	return e.Status == StatusReady && !e.AwaitingMerchantConfirmation && e.ReadyDeadline != nil
}

// ExpiryDue reports whether the entry may be expired at now
func (e *QueueEntry) ExpiryDue(now time.Time) bool {
	return e.IsCountingDown() && !now.Before(*e.ReadyDeadline)
}

// IsLinked reports whether the entry belongs to a multi-table reservation
func (e *QueueEntry) IsLinked() bool {
	return e.LinkedReservationID != nil
}

// TimeRemaining returns the time left before the ready deadline
func (e *QueueEntry) TimeRemaining(now time.Time) *time.Duration {
	if e.ReadyDeadline == nil {
		return nil
	}
	remaining := e.ReadyDeadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
