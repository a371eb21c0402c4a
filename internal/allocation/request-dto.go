package allocation

import "time"

// AllocationRequest asks for tables at a time
type AllocationRequest struct {
	PartySize       int        `json:"party_size" validate:"required,min=1,max=12"`
	ReservationTime time.Time  `json:"reservation_time" validate:"required"`
	ETA             *time.Time `json:"eta,omitempty"`
}

// CreateTableRequest adds a table to a venue
type CreateTableRequest struct {
	Label    string `json:"label" validate:"required,max=32"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=12"`
}
