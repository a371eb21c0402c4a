// Package orderstest provides an in-memory order repository that publishes
// change events like the database one.
package orderstest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"seatnext/internal/changefeed"
	"seatnext/internal/orders"
	"seatnext/internal/shared/apperr"
	"seatnext/pkg/clock"
)

// Repository is a goroutine-safe in-memory orders.Repository
type Repository struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]orders.Order
	publisher changefeed.Publisher
	clock     clock.Clock
	err       error
}

var _ orders.Repository = (*Repository)(nil)

func New(publisher changefeed.Publisher, clk clock.Clock) *Repository {
	if publisher == nil {
		publisher = changefeed.NopPublisher{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Repository{
		orders:    make(map[uuid.UUID]orders.Order),
		publisher: publisher,
		clock:     clk,
	}
}

// FailWith makes every later call fail with err until cleared with nil
func (r *Repository) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Order returns the stored copy of an order
func (r *Repository) Order(id uuid.UUID) (orders.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	return o, ok
}

// Delete removes an order and publishes the delete
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) {
	r.mu.Lock()
	before, ok := r.orders[id]
	delete(r.orders, id)
	r.mu.Unlock()
	if ok {
		r.publish(ctx, changefeed.EventDelete, &before, nil)
	}
}

func (r *Repository) Create(ctx context.Context, order *orders.Order) error {
	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return err
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = r.clock.Now()
	order.UpdatedAt = order.CreatedAt
	r.orders[order.ID] = *order
	r.mu.Unlock()

	r.publish(ctx, changefeed.EventInsert, nil, order)
	return nil
}

func (r *Repository) ConditionalUpdate(ctx context.Context, id uuid.UUID, guard orders.Guard, patch orders.Patch) (*orders.Order, error) {
	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return nil, err
	}
	before, ok := r.orders[id]
	if !ok {
		r.mu.Unlock()
		return nil, apperr.ErrNotFound
	}
	if !guard.Matches(before) {
		r.mu.Unlock()
		return nil, apperr.ErrConflict
	}
	after := patch.Apply(before)
	after.UpdatedAt = r.clock.Now()
	r.orders[id] = after
	r.mu.Unlock()

	r.publish(ctx, changefeed.EventUpdate, &before, &after)
	return &after, nil
}

func (r *Repository) GetByID(_ context.Context, id uuid.UUID) (*orders.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &o, nil
}

func (r *Repository) ListByVenue(_ context.Context, venueID uuid.UUID, statuses ...orders.Status) ([]orders.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	var out []orders.Order
	for _, o := range r.sortedLocked() {
		if o.VenueID == venueID && hasStatus(statuses, o.Status) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *Repository) ListAlerting(_ context.Context) ([]orders.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	var out []orders.Order
	for _, o := range r.sortedLocked() {
		if o.IsAlerting() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *Repository) publish(ctx context.Context, typ changefeed.EventType, before, after *orders.Order) {
	var oldRecord, newRecord interface{}
	ref := after
	if before != nil {
		oldRecord = before
		if ref == nil {
			ref = before
		}
	}
	if after != nil {
		newRecord = after
	}
	ev, err := changefeed.NewEvent(typ, changefeed.TableOrders, ref.VenueID, ref.ID, oldRecord, newRecord, r.clock.Now())
	if err != nil {
		return
	}
	_ = r.publisher.Publish(ctx, ev)
}

func (r *Repository) sortedLocked() []orders.Order {
	out := make([]orders.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func hasStatus(statuses []orders.Status, s orders.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
