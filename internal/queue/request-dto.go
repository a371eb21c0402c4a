package queue

import (
	"time"

	"github.com/google/uuid"
)

// JoinQueueRequest adds a party to a venue queue
type JoinQueueRequest struct {
	PartySize       int        `json:"party_size" validate:"required,min=1,max=12"`
	ETA             *time.Time `json:"eta,omitempty"`
	ReservationTime *time.Time `json:"reservation_time,omitempty"`
	TableID         *uuid.UUID `json:"table_id,omitempty"`
}

// MarkReadyRequest optionally overrides the ready deadline
type MarkReadyRequest struct {
	Deadline *time.Time `json:"deadline,omitempty"`
}

// CancelRequest carries the cancellation reason
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=280"`
}
