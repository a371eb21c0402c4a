package orders

import "time"

// PlaceOrderRequest creates a kitchen order. ETA wins over PrepMinutes.
type PlaceOrderRequest struct {
	OrderNumber          string     `json:"order_number" validate:"required,max=32"`
	ETA                  *time.Time `json:"eta,omitempty"`
	PrepMinutes          int        `json:"prep_minutes,omitempty" validate:"omitempty,min=1,max=240"`
	Notes                string     `json:"notes,omitempty" validate:"max=500"`
	Confidence           Confidence `json:"confidence,omitempty" validate:"omitempty,oneof=low medium high"`
	RequiresVerification bool       `json:"requires_verification"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

type ExtendETARequest struct {
	Minutes int `json:"minutes" validate:"required,min=1,max=120"`
}
