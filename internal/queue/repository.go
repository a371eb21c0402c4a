package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"seatnext/internal/changefeed"
	"seatnext/internal/shared/apperr"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

// Repository is the source of truth for queue entries. Every write is
// conditional or transactional and is published on the change feed after
// commit.
type Repository interface {
	// Writes
	Create(ctx context.Context, entry *QueueEntry) error
	CreateLinked(ctx context.Context, entries []QueueEntry) ([]QueueEntry, error)
	ConditionalUpdate(ctx context.Context, id uuid.UUID, guard Guard, patch Patch) (*QueueEntry, error)
	CancelLinked(ctx context.Context, id, linkedID uuid.UUID, guard Guard, patch Patch) ([]QueueEntry, error)

	// Reads
	GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	ListWaiting(ctx context.Context, venueID uuid.UUID) ([]QueueEntry, error)
	ListByVenue(ctx context.Context, venueID uuid.UUID, statuses ...Status) ([]QueueEntry, error)
	ListCountingDown(ctx context.Context) ([]QueueEntry, error)
	ListExpiredReady(ctx context.Context, now time.Time, limit int) ([]QueueEntry, error)
}

type repository struct {
	db        *gorm.DB
	publisher changefeed.Publisher
	clock     clock.Clock
	log       *logger.Logger
}

// NewRepository creates a new queue repository
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
		log:       log.WithComponent("queue-repository"),
	}
}

// Create inserts a waiting entry at the back of its venue queue
func (r *repository) Create(ctx context.Context, entry *QueueEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		position, err := nextPosition(tx, entry.VenueID)
		if err != nil {
			return err
		}
		prepareInsert(entry, position, r.clock.Now())
		return tx.Create(entry).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create queue entry: %w", err)
	}

	r.publish(ctx, changefeed.EventInsert, nil, entry)
	return nil
}

// CreateLinked inserts every entry of a multi-table reservation in one
// transaction; either all rows exist afterwards or none do
func (r *repository) CreateLinked(ctx context.Context, entries []QueueEntry) ([]QueueEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	venueID := entries[0].VenueID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		position, err := nextPosition(tx, venueID)
		if err != nil {
			return err
		}
		now := r.clock.Now()
		for i := range entries {
			if entries[i].VenueID != venueID {
				return fmt.Errorf("linked entries span venues %s and %s", venueID, entries[i].VenueID)
			}
			prepareInsert(&entries[i], position, now)
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create linked entries: %w", err)
	}

	for i := range entries {
		r.publish(ctx, changefeed.EventInsert, nil, &entries[i])
	}
	return entries, nil
}

// ConditionalUpdate writes patch only if the stored row still satisfies
// guard. It returns apperr.ErrConflict when the guard no longer holds.
func (r *repository) ConditionalUpdate(ctx context.Context, id uuid.UUID, guard Guard, patch Patch) (*QueueEntry, error) {
	var before, after QueueEntry

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
		return nil, translate(err, "update queue entry")
	}

	r.publish(ctx, changefeed.EventUpdate, &before, &after)
	return &after, nil
}

// CancelLinked cancels every active entry sharing linkedID. The entry the
// caller acted on must still satisfy guard, otherwise nothing is written.
func (r *repository) CancelLinked(ctx context.Context, id, linkedID uuid.UUID, guard Guard, patch Patch) ([]QueueEntry, error) {
	var befores, afters []QueueEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("linked_reservation_id = ?", linkedID).
			Order("id").
			Find(&befores).Error; err != nil {
			return err
		}

		target := findEntry(befores, id)
		if target == nil {
			return gorm.ErrRecordNotFound
		}
		if !guard.Matches(*target) {
			return apperr.ErrConflict
		}

		return cancelActive(tx, &afters, linkedID, patch.Columns(r.clock.Now())).Error
	})
	if err != nil {
		return nil, translate(err, "cancel linked entries")
	}

	sort.Slice(afters, func(i, j int) bool { return afters[i].ID.String() < afters[j].ID.String() })
	for i := range afters {
		r.publish(ctx, changefeed.EventUpdate, findEntry(befores, afters[i].ID), &afters[i])
	}
	return afters, nil
}

// GetByID gets a queue entry by ID
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	var entry QueueEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, translate(err, "get queue entry")
	}
	return &entry, nil
}

// ListWaiting lists a venue's waiting entries in rank order
func (r *repository) ListWaiting(ctx context.Context, venueID uuid.UUID) ([]QueueEntry, error) {
	var entries []QueueEntry
	err := r.db.WithContext(ctx).
		Where("venue_id = ? AND status = ?", venueID, StatusWaiting).
		Order("position ASC, created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}
	return entries, nil
}

// ListByVenue lists a venue's entries with an optional status filter
func (r *repository) ListByVenue(ctx context.Context, venueID uuid.UUID, statuses ...Status) ([]QueueEntry, error) {
	var entries []QueueEntry
	query := r.db.WithContext(ctx).Where("venue_id = ?", venueID)

	if len(statuses) > 0 {
		query = query.Where("status IN ?", statusStrings(statuses))
	}

	if err := query.Order("position ASC, created_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	return entries, nil
}

// ListCountingDown returns every entry whose ready deadline is running
func (r *repository) ListCountingDown(ctx context.Context) ([]QueueEntry, error) {
	var entries []QueueEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND awaiting_merchant_confirmation = ? AND ready_deadline IS NOT NULL", StatusReady, false).
		Order("ready_deadline ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ready entries: %w", err)
	}
	return entries, nil
}

// ListExpiredReady returns ready entries whose deadline is at or before now
func (r *repository) ListExpiredReady(ctx context.Context, now time.Time, limit int) ([]QueueEntry, error) {
	var entries []QueueEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND awaiting_merchant_confirmation = ? AND ready_deadline IS NOT NULL AND ready_deadline <= ?",
			StatusReady, false, now).
		Order("ready_deadline ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get expired entries: %w", err)
	}
	return entries, nil
}

func (r *repository) publish(ctx context.Context, typ changefeed.EventType, before, after *QueueEntry) {
	var (
		oldRecord, newRecord interface{}
		ref                  *QueueEntry
	)
	if before != nil {
		oldRecord, ref = before, before
	}
	if after != nil {
		newRecord, ref = after, after
	}

	ev, err := changefeed.NewEvent(typ, changefeed.TableQueueEntries, ref.VenueID, ref.ID, oldRecord, newRecord, r.clock.Now())
	if err != nil {
		r.log.ErrorWithContext(ctx, "failed to build change event", err, map[string]interface{}{"entry_id": ref.ID.String()})
		return
	}
	// The write is committed; a lost event is repaired by the expiry sweep
	// and the next event for the record
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.log.WarnContext(ctx, "failed to publish change event", "entry_id", ref.ID.String(), "error", err)
	}
}

// nextPosition serialises inserts per venue with a transaction-scoped
// advisory lock and returns the rank for a new waiting entry
func nextPosition(tx *gorm.DB, venueID uuid.UUID) (int, error) {
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", venueID.String()).Error; err != nil {
		return 0, fmt.Errorf("failed to lock venue queue: %w", err)
	}

	var last int
	err := tx.Model(&QueueEntry{}).
		Select("COALESCE(MAX(position), 0)").
		Where("venue_id = ? AND status = ?", venueID, StatusWaiting).
		Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute queue position: %w", err)
	}
	return last + 1, nil
}

func prepareInsert(entry *QueueEntry, position int, now time.Time) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = StatusWaiting
	}
	if entry.ReservationType == "" {
		entry.ReservationType = ReservationWalkIn
	}
	entry.Position = position
	entry.CreatedAt = now
	entry.UpdatedAt = now
}

// guardedUpdate writes cols to one entry only while guard still holds and
// scans the updated row into dest
func guardedUpdate(tx *gorm.DB, dest *QueueEntry, id uuid.UUID, guard Guard, cols map[string]interface{}) *gorm.DB {
	return applyGuard(tx.Model(dest).Clauses(clause.Returning{}).Where("id = ?", id), guard).Updates(cols)
}

// cancelActive writes cols to the still active entries of a linked
// reservation. Seated and already cancelled tables keep their state.
func cancelActive(tx *gorm.DB, dest *[]QueueEntry, linkedID uuid.UUID, cols map[string]interface{}) *gorm.DB {
	return tx.Model(dest).
		Clauses(clause.Returning{}).
		Where("linked_reservation_id = ? AND status IN ?", linkedID, statusStrings(activeStatuses)).
		Updates(cols)
}

func applyGuard(db *gorm.DB, g Guard) *gorm.DB {
	if len(g.Statuses) > 0 {
		db = db.Where("status IN ?", statusStrings(g.Statuses))
	}
	if g.AwaitingConfirmation != nil {
		db = db.Where("awaiting_merchant_confirmation = ?", *g.AwaitingConfirmation)
	}
	if g.PatronDelayed != nil {
		db = db.Where("patron_delayed = ?", *g.PatronDelayed)
	}
	if g.ReadyDeadline != nil {
		db = db.Where("ready_deadline = ?", *g.ReadyDeadline)
	}
	if g.DeadlineAtOrBefore != nil {
		db = db.Where("ready_deadline IS NOT NULL AND ready_deadline <= ?", *g.DeadlineAtOrBefore)
	}
	return db
}

func translate(err error, op string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.ErrNotFound
	case errors.Is(err, apperr.ErrConflict):
		return apperr.ErrConflict
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

func findEntry(entries []QueueEntry, id uuid.UUID) *QueueEntry {
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i]
		}
	}
	return nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
