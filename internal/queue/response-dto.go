package queue

import (
	"time"

	"github.com/google/uuid"
)

// EntryResponse is the presentation of an entry. Status is the patron-facing
// status; no_show is reported as cancelled.
type EntryResponse struct {
	ID                           uuid.UUID       `json:"id"`
	VenueID                      uuid.UUID       `json:"venue_id"`
	TableID                      *uuid.UUID      `json:"table_id,omitempty"`
	PartySize                    int             `json:"party_size"`
	Status                       Status          `json:"status"`
	DisplayState                 DisplayState    `json:"display_state"`
	Position                     *int            `json:"position,omitempty"`
	ETA                          *time.Time      `json:"eta,omitempty"`
	ReadyDeadline                *time.Time      `json:"ready_deadline,omitempty"`
	SecondsRemaining             *int            `json:"seconds_remaining,omitempty"`
	PatronDelayed                bool            `json:"patron_delayed"`
	AwaitingMerchantConfirmation bool            `json:"awaiting_merchant_confirmation"`
	CancellationReason           *string         `json:"cancellation_reason,omitempty"`
	CancelledBy                  *Actor          `json:"cancelled_by,omitempty"`
	ReservationType              ReservationType `json:"reservation_type"`
	ReservationTime              *time.Time      `json:"reservation_time,omitempty"`
	LinkedReservationID          *uuid.UUID      `json:"linked_reservation_id,omitempty"`
	UpdatedAt                    time.Time       `json:"updated_at"`
}

// StaffEntryResponse adds the stored status for venue staff
type StaffEntryResponse struct {
	EntryResponse
	StoredStatus Status `json:"stored_status"`
}

// ToResponse builds the patron-facing view of e at now
func ToResponse(e *QueueEntry, now time.Time) EntryResponse {
	resp := EntryResponse{
		ID:                           e.ID,
		VenueID:                      e.VenueID,
		TableID:                      e.TableID,
		PartySize:                    e.PartySize,
		Status:                       e.PatronStatus(),
		DisplayState:                 e.DisplayState(),
		ETA:                          e.ETA,
		ReadyDeadline:                e.ReadyDeadline,
		PatronDelayed:                e.PatronDelayed,
		AwaitingMerchantConfirmation: e.AwaitingMerchantConfirmation,
		CancellationReason:           e.CancellationReason,
		CancelledBy:                  e.CancelledBy,
		ReservationType:              e.ReservationType,
		ReservationTime:              e.ReservationTime,
		LinkedReservationID:          e.LinkedReservationID,
		UpdatedAt:                    e.UpdatedAt,
	}

	// Position is only meaningful while waiting
	if e.Status == StatusWaiting {
		p := e.Position
		resp.Position = &p
	}
	if remaining := e.TimeRemaining(now); remaining != nil && e.IsCountingDown() {
		secs := int(remaining.Seconds())
		resp.SecondsRemaining = &secs
	}
	return resp
}

func ToStaffResponse(e *QueueEntry, now time.Time) StaffEntryResponse {
	return StaffEntryResponse{EntryResponse: ToResponse(e, now), StoredStatus: e.Status}
}
