package allocation

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SlotLength is how long one booking holds a table
	SlotLength = 90 * time.Minute

	// SearchHorizon bounds the next-available-slot search
	SearchHorizon = 4 * time.Hour

	// SearchStep is the granularity of the next-available-slot search
	SearchStep = 15 * time.Minute

	// ProposalTTL is how long a split proposal waits for the patron
	ProposalTTL = 10 * time.Minute
)

// VenueTable is a physical table a party can be seated at
type VenueTable struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	VenueID   uuid.UUID `json:"venue_id" gorm:"type:uuid;not null;index"`
	Label     string    `json:"label" gorm:"type:varchar(32);not null"`
	Capacity  int       `json:"capacity" gorm:"not null"`
	Active    bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (VenueTable) TableName() string {
	return "venue_tables"
}

// TableRef is the part of a table shown to patrons
type TableRef struct {
	ID       uuid.UUID `json:"id"`
	Label    string    `json:"label"`
	Capacity int       `json:"capacity"`
}

func refOf(t VenueTable) TableRef {
	return TableRef{ID: t.ID, Label: t.Label, Capacity: t.Capacity}
}

// Result is the negotiator's answer for one request
type Result struct {
	Available              bool       `json:"available"`
	MatchedTable           *TableRef  `json:"matched_table,omitempty"`
	RequiresMultipleTables bool       `json:"requires_multiple_tables,omitempty"`
	TablesNeeded           []TableRef `json:"tables_needed,omitempty"`
	TotalCapacity          int        `json:"total_capacity,omitempty"`
	Warning                string     `json:"warning,omitempty"`
	NextAvailableSlot      *time.Time `json:"next_available_slot,omitempty"`
	Reason                 string     `json:"reason,omitempty"`
}

// Proposal is a multi-table split waiting for the patron's decision. No
// queue entry exists until it is confirmed.
type Proposal struct {
	ID               uuid.UUID  `json:"id"`
	VenueID          uuid.UUID  `json:"venue_id"`
	PatronID         *uuid.UUID `json:"patron_id,omitempty"`
	PartySize        int        `json:"party_size"`
	ReservationTime  time.Time  `json:"reservation_time"`
	ETA              *time.Time `json:"eta,omitempty"`
	Tables           []TableRef `json:"tables"`
	RequiredCapacity int        `json:"required_capacity"`
	TotalCapacity    int        `json:"total_capacity"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
}
