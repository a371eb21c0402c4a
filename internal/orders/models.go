package orders

import (
	"time"

	"github.com/google/uuid"
)

// Status is the stored lifecycle position of a kitchen order
type Status string

const (
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusPlaced               Status = "placed"
	StatusInPrep               Status = "in_prep"
	StatusReady                Status = "ready"
	StatusCollected            Status = "collected"
	StatusCancelled            Status = "cancelled"
	StatusRejected             Status = "rejected"
	StatusNoShow               Status = "no_show"
)

// Confidence is the kitchen's confidence in its ETA
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Order is a food order waiting for pickup
type Order struct {
	ID                           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	VenueID                      uuid.UUID  `json:"venue_id" gorm:"type:uuid;not null;index:idx_orders_venue_status"`
	OrderNumber                  string     `json:"order_number" gorm:"type:varchar(32);not null"`
	Status                       Status     `json:"status" gorm:"type:varchar(32);not null;index:idx_orders_venue_status"`
	ETA                          *time.Time `json:"eta,omitempty" gorm:"column:eta"`
	OriginalETA                  *time.Time `json:"original_eta,omitempty" gorm:"column:original_eta"`
	Notes                        string     `json:"notes,omitempty" gorm:"type:text"`
	Confidence                   Confidence `json:"confidence" gorm:"type:varchar(16);not null;default:'medium'"`
	AwaitingMerchantConfirmation bool       `json:"awaiting_merchant_confirmation" gorm:"not null;default:false"`
	CreatedAt                    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt                    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}

func (s Status) IsValid() bool {
	switch s {
	case StatusAwaitingVerification, StatusPlaced, StatusInPrep, StatusReady,
		StatusCollected, StatusCancelled, StatusRejected, StatusNoShow:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the order is resolved
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCollected, StatusCancelled, StatusRejected, StatusNoShow:
		return true
	default:
		return false
	}
}

// InKitchen reports whether the kitchen is working on the order; due-time
// alerts only run in these states
func (s Status) InKitchen() bool {
	return s == StatusPlaced || s == StatusInPrep
}

func (c Confidence) IsValid() bool {
	return c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// IsAlerting reports whether due-time alerts apply to the order
func (o *Order) IsAlerting() bool {
	return o.Status.InKitchen() && o.ETA != nil
}

// UntilDue returns eta-now; ok is false when the order has no ETA
func (o *Order) UntilDue(now time.Time) (time.Duration, bool) {
	if o.ETA == nil {
		return 0, false
	}
	return o.ETA.Sub(now), true
}
