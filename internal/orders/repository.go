package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"seatnext/internal/changefeed"
	"seatnext/internal/shared/apperr"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

// Repository persists orders and publishes every committed change
type Repository interface {
	Create(ctx context.Context, order *Order) error
	ConditionalUpdate(ctx context.Context, id uuid.UUID, guard Guard, patch Patch) (*Order, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByVenue(ctx context.Context, venueID uuid.UUID, statuses ...Status) ([]Order, error)
	// ListAlerting returns every order, across venues, that is in the
	// kitchen with an ETA
	ListAlerting(ctx context.Context) ([]Order, error)
}

type repository struct {
	db        *gorm.DB
	publisher changefeed.Publisher
	clock     clock.Clock
	log       *logger.Logger
}

// NewRepository creates a new order repository
func NewRepository(db *gorm.DB, publisher changefeed.Publisher, clk clock.Clock, log *logger.Logger) Repository {
	if publisher == nil {
		publisher = changefeed.NopPublisher{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &repository{
		db:        db,
		publisher: publisher,
		clock:     clk,
		log:       log.WithComponent("order-repository"),
	}
}

func (r *repository) Create(ctx context.Context, order *Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := r.clock.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.publish(ctx, changefeed.EventInsert, nil, order)
	return nil
}

// ConditionalUpdate writes patch only if the stored row still satisfies guard
func (r *repository) ConditionalUpdate(ctx context.Context, id uuid.UUID, guard Guard, patch Patch) (*Order, error) {
	var before, after Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&before, "id = ?", id).Error; err != nil {
			return err
		}

		res := guardedUpdate(tx, &after, id, guard, patch.Columns(r.clock.Now()))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrConflict
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperr.ErrNotFound
		case errors.Is(err, apperr.ErrConflict):
			return nil, apperr.ErrConflict
		default:
			return nil, fmt.Errorf("failed to update order: %w", err)
		}
	}

	r.publish(ctx, changefeed.EventUpdate, &before, &after)
	return &after, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *repository) ListByVenue(ctx context.Context, venueID uuid.UUID, statuses ...Status) ([]Order, error) {
	var list []Order
	query := r.db.WithContext(ctx).Where("venue_id = ?", venueID)
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		query = query.Where("status IN ?", names)
	}

	if err := query.Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return list, nil
}

func (r *repository) ListAlerting(ctx context.Context) ([]Order, error) {
	var list []Order
	err := r.db.WithContext(ctx).
		Where("status IN ? AND eta IS NOT NULL", []string{string(StatusPlaced), string(StatusInPrep)}).
		Order("eta ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alerting orders: %w", err)
	}
	return list, nil
}

func guardedUpdate(tx *gorm.DB, dest *Order, id uuid.UUID, guard Guard, cols map[string]interface{}) *gorm.DB {
	query := tx.Model(dest).Clauses(clause.Returning{}).Where("id = ?", id)
	if guard.Status != "" {
		query = query.Where("status = ?", string(guard.Status))
	}
	if guard.ETA != nil {
		query = query.Where("eta = ?", *guard.ETA)
	}
	return query.Updates(cols)
}

func (r *repository) publish(ctx context.Context, typ changefeed.EventType, before, after *Order) {
	var (
		oldRecord, newRecord interface{}
		ref                  *Order
	)
	if before != nil {
		oldRecord, ref = before, before
	}
	if after != nil {
		newRecord, ref = after, after
	}

	ev, err := changefeed.NewEvent(typ, changefeed.TableOrders, ref.VenueID, ref.ID, oldRecord, newRecord, r.clock.Now())
	if err != nil {
		r.log.ErrorWithContext(ctx, "failed to build change event", err, map[string]interface{}{"order_id": ref.ID.String()})
		return
	}
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.log.WarnContext(ctx, "failed to publish change event", "order_id", ref.ID.String(), "error", err)
	}
}
