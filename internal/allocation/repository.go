package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository stores venue tables and answers which of them are held
type Repository interface {
	CreateTable(ctx context.Context, table *VenueTable) error
	ListTables(ctx context.Context, venueID uuid.UUID) ([]VenueTable, error)

	// HeldTables returns the tables held by a live booking overlapping the
	// slot starting at at
	HeldTables(ctx context.Context, venueID uuid.UUID, at time.Time, slot time.Duration) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new allocation repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateTable(ctx context.Context, table *VenueTable) error {
	if err := r.db.WithContext(ctx).Create(table).Error; err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (r *repository) ListTables(ctx context.Context, venueID uuid.UUID) ([]VenueTable, error) {
	var tables []VenueTable
	err := r.db.WithContext(ctx).
		Where("venue_id = ? AND active = ?", venueID, true).
		Order("capacity ASC, label ASC").
		Find(&tables).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (r *repository) HeldTables(ctx context.Context, venueID uuid.UUID, at time.Time, slot time.Duration) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	// a booking starting at s holds [s, s+slot); it overlaps [at, at+slot)
	// when at-slot < s < at+slot
	err := r.db.WithContext(ctx).
		Table("queue_entries").
		Distinct("table_id").
		Where("venue_id = ? AND table_id IS NOT NULL", venueID).
		Where("status IN ?", []string{"waiting", "ready", "awaiting_confirmation", "seated"}).
		Where("COALESCE(reservation_time, created_at) > ? AND COALESCE(reservation_time, created_at) < ?", at.Add(-slot), at.Add(slot)).
		Pluck("table_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load held tables: %w", err)
	}
	return ids, nil
}
