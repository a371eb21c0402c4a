// Package queuetest provides an in-memory queue repository with the same
// conditional-write semantics as the database one.
package queuetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/changefeed"
	"seatnext/internal/queue"
	"seatnext/internal/shared/apperr"
	"seatnext/pkg/clock"
)

// Repository is a goroutine-safe in-memory queue.Repository
type Repository struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]queue.QueueEntry
	publisher changefeed.Publisher
	clock     clock.Clock

	updateErr   error
	beforeWrite func(id uuid.UUID)
	writes      int
}

var _ queue.Repository = (*Repository)(nil)

func New(publisher changefeed.Publisher, clk clock.Clock) *Repository {
	if publisher == nil {
		publisher = changefeed.NopPublisher{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Repository{
		entries:   make(map[uuid.UUID]queue.QueueEntry),
		publisher: publisher,
		clock:     clk,
	}
}

// Put stores e as-is without publishing
func (r *Repository) Put(e queue.QueueEntry) queue.QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = r.clock.Now()
	}
	r.entries[e.ID] = e
	return e
}

// Entry returns the stored copy of an entry
func (r *Repository) Entry(id uuid.UUID) (queue.QueueEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// Force applies mutate as a store-side write by another client and
// publishes the update
func (r *Repository) Force(ctx context.Context, id uuid.UUID, mutate func(*queue.QueueEntry)) queue.QueueEntry {
	r.mu.Lock()
	before := r.entries[id]
	after := before
	mutate(&after)
	after.UpdatedAt = r.clock.Now()
	r.entries[id] = after
	r.mu.Unlock()

	r.publish(ctx, changefeed.EventUpdate, &before, &after)
	return after
}

// FailWrites makes conditional writes fail with err until cleared with nil
func (r *Repository) FailWrites(err error) {
	r.mu.Lock()
	r.updateErr = err
	r.mu.Unlock()
}

// BeforeWrite registers a hook run before each conditional write is
// evaluated; tests use it to land a competing write first
func (r *Repository) BeforeWrite(fn func(id uuid.UUID)) {
	r.mu.Lock()
	r.beforeWrite = fn
	r.mu.Unlock()
}

// Writes returns the number of successful conditional writes
func (r *Repository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *Repository) Create(ctx context.Context, entry *queue.QueueEntry) error {
	r.mu.Lock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = queue.StatusWaiting
	}
	if entry.ReservationType == "" {
		entry.ReservationType = queue.ReservationWalkIn
	}
	entry.Position = r.nextPositionLocked(entry.VenueID)
	entry.CreatedAt = r.clock.Now()
	entry.UpdatedAt = entry.CreatedAt
	r.entries[entry.ID] = *entry
	r.mu.Unlock()

	r.publish(ctx, changefeed.EventInsert, nil, entry)
	return nil
}

func (r *Repository) CreateLinked(ctx context.Context, entries []queue.QueueEntry) ([]queue.QueueEntry, error) {
	r.mu.Lock()
	if r.updateErr != nil {
		err := r.updateErr
		r.mu.Unlock()
		return nil, err
	}
	if len(entries) == 0 {
		r.mu.Unlock()
		return nil, nil
	}
	position := r.nextPositionLocked(entries[0].VenueID)
	now := r.clock.Now()
	for i := range entries {
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
		if entries[i].Status == "" {
			entries[i].Status = queue.StatusWaiting
		}
		entries[i].Position = position
		entries[i].CreatedAt = now
		entries[i].UpdatedAt = now
	}
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	r.mu.Unlock()

	for i := range entries {
		r.publish(ctx, changefeed.EventInsert, nil, &entries[i])
	}
	return entries, nil
}

func (r *Repository) ConditionalUpdate(ctx context.Context, id uuid.UUID, guard queue.Guard, patch queue.Patch) (*queue.QueueEntry, error) {
	r.mu.Lock()
	hook := r.beforeWrite
	r.mu.Unlock()
	if hook != nil {
		hook(id)
	}

	r.mu.Lock()
	if r.updateErr != nil {
		err := r.updateErr
		r.mu.Unlock()
		return nil, err
	}
	before, ok := r.entries[id]
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
	r.entries[id] = after
	r.writes++
	r.mu.Unlock()

	r.publish(ctx, changefeed.EventUpdate, &before, &after)
	return &after, nil
}

func (r *Repository) CancelLinked(ctx context.Context, id, linkedID uuid.UUID, guard queue.Guard, patch queue.Patch) ([]queue.QueueEntry, error) {
	r.mu.Lock()
	if r.updateErr != nil {
		err := r.updateErr
		r.mu.Unlock()
		return nil, err
	}
	target, ok := r.entries[id]
	if !ok || target.LinkedReservationID == nil || *target.LinkedReservationID != linkedID {
		r.mu.Unlock()
		return nil, apperr.ErrNotFound
	}
	if !guard.Matches(target) {
		r.mu.Unlock()
		return nil, apperr.ErrConflict
	}

	var befores, afters []queue.QueueEntry
	for _, e := range r.sortedLocked() {
		if e.LinkedReservationID == nil || *e.LinkedReservationID != linkedID || e.Status.IsTerminal() {
			continue
		}
		after := patch.Apply(e)
		after.UpdatedAt = r.clock.Now()
		r.entries[e.ID] = after
		befores = append(befores, e)
		afters = append(afters, after)
	}
	r.writes++
	r.mu.Unlock()

	for i := range afters {
		r.publish(ctx, changefeed.EventUpdate, &befores[i], &afters[i])
	}
	return afters, nil
}

func (r *Repository) GetByID(_ context.Context, id uuid.UUID) (*queue.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &e, nil
}

func (r *Repository) ListWaiting(ctx context.Context, venueID uuid.UUID) ([]queue.QueueEntry, error) {
	return r.ListByVenue(ctx, venueID, queue.StatusWaiting)
}

func (r *Repository) ListByVenue(_ context.Context, venueID uuid.UUID, statuses ...queue.Status) ([]queue.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []queue.QueueEntry
	for _, e := range r.sortedLocked() {
		if e.VenueID != venueID || !hasStatus(statuses, e.Status) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Repository) ListCountingDown(_ context.Context) ([]queue.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []queue.QueueEntry
	for _, e := range r.sortedLocked() {
		if e.IsCountingDown() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repository) ListExpiredReady(_ context.Context, now time.Time, limit int) ([]queue.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []queue.QueueEntry
	for _, e := range r.sortedLocked() {
		if e.ExpiryDue(now) {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *Repository) publish(ctx context.Context, typ changefeed.EventType, before, after *queue.QueueEntry) {
	ref := after
	var oldRecord, newRecord interface{}
	if before != nil {
		oldRecord = before
		if ref == nil {
			ref = before
		}
	}
	if after != nil {
		newRecord = after
	}
	ev, err := changefeed.NewEvent(typ, changefeed.TableQueueEntries, ref.VenueID, ref.ID, oldRecord, newRecord, r.clock.Now())
	if err != nil {
		return
	}
	_ = r.publisher.Publish(ctx, ev)
}

func (r *Repository) nextPositionLocked(venueID uuid.UUID) int {
	last := 0
	for _, e := range r.entries {
		if e.VenueID == venueID && e.Status == queue.StatusWaiting && e.Position > last {
			last = e.Position
		}
	}
	return last + 1
}

// sortedLocked orders entries by position then creation for stable output
func (r *Repository) sortedLocked() []queue.QueueEntry {
	out := make([]queue.QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func hasStatus(statuses []queue.Status, s queue.Status) bool {
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
