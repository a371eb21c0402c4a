package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/shared/apperr"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

// Service interface defines the kitchen order operations
type Service interface {
	Place(ctx context.Context, venueID uuid.UUID, request *PlaceOrderRequest) (*Order, error)
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	ListVenue(ctx context.Context, venueID uuid.UUID, statuses ...Status) ([]Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Order, error)
	ExtendETA(ctx context.Context, id uuid.UUID, delta time.Duration) (*Order, error)
}

type service struct {
	repo  Repository
	clock clock.Clock
	log   *logger.Logger
}

// NewService creates a new order service
func NewService(repo Repository, clk clock.Clock, log *logger.Logger) Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &service{repo: repo, clock: clk, log: log.WithComponent("orders")}
}

// Place records a new order. Orders that need the merchant to verify them
// start in awaiting_verification.
func (s *service) Place(ctx context.Context, venueID uuid.UUID, request *PlaceOrderRequest) (*Order, error) {
	const op = "place_order"

	number := strings.TrimSpace(request.OrderNumber)
	if number == "" {
		return nil, apperr.Validation(op, "order number is required")
	}
	confidence := request.Confidence
	if confidence == "" {
		confidence = ConfidenceMedium
	}
	if !confidence.IsValid() {
		return nil, apperr.Validation(op, fmt.Sprintf("unknown confidence %q", confidence))
	}

	order := &Order{
		VenueID:     venueID,
		OrderNumber: number,
		Status:      StatusPlaced,
		Notes:       request.Notes,
		Confidence:  confidence,
	}
	if request.ETA != nil {
		eta := storeTime(*request.ETA)
		order.ETA = &eta
	} else if request.PrepMinutes > 0 {
		eta := storeTime(s.clock.Now().Add(time.Duration(request.PrepMinutes) * time.Minute))
		order.ETA = &eta
	}
	if request.RequiresVerification {
		order.Status = StatusAwaitingVerification
		order.AwaitingMerchantConfirmation = true
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, apperr.External(op, err)
	}

	s.log.LogTransition(ctx, "order", order.ID.String(), "", string(order.Status))
	return order, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.load(ctx, "get_order", id)
}

func (s *service) ListVenue(ctx context.Context, venueID uuid.UUID, statuses ...Status) ([]Order, error) {
	list, err := s.repo.ListByVenue(ctx, venueID, statuses...)
	if err != nil {
		return nil, apperr.External("list_orders", err)
	}
	return list, nil
}

// UpdateStatus moves an order along its lifecycle
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Order, error) {
	const op = "update_order_status"

	order, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	guard, patch, err := Transition(*order, to)
	if err != nil {
		return nil, err
	}
	return s.write(ctx, op, order, guard, patch)
}

// ExtendETA gives the kitchen more time; the due-time alerts restart from
// the new ETA
func (s *service) ExtendETA(ctx context.Context, id uuid.UUID, delta time.Duration) (*Order, error) {
	const op = "extend_order_eta"

	order, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	guard, patch, err := Extend(*order, delta, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return s.write(ctx, op, order, guard, patch)
}

func (s *service) write(ctx context.Context, op string, order *Order, guard Guard, patch Patch) (*Order, error) {
	updated, err := s.repo.ConditionalUpdate(ctx, order.ID, guard, patch)
	switch {
	case err == nil:
		s.log.LogTransition(ctx, "order", order.ID.String(), string(order.Status), string(updated.Status))
		return updated, nil
	case errors.Is(err, apperr.ErrConflict):
		s.log.LogRaceOutcome(ctx, op, order.ID.String())
		current, rerr := s.load(ctx, op, order.ID)
		if rerr != nil {
			return nil, rerr
		}
		return nil, apperr.Validation(op, fmt.Sprintf("order changed concurrently and is now %s", current.Status))
	case errors.Is(err, apperr.ErrNotFound):
		return nil, apperr.NotFound(op, "order not found")
	default:
		return nil, apperr.External(op, err)
	}
}

func (s *service) load(ctx context.Context, op string, id uuid.UUID) (*Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound(op, "order not found")
		}
		return nil, apperr.External(op, err)
	}
	return order, nil
}
