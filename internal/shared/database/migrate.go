package database

import (
	"gorm.io/gorm"

	"seatnext/internal/allocation"
	"seatnext/internal/orders"
	"seatnext/internal/queue"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&queue.QueueEntry{},
		&orders.Order{},
		&allocation.VenueTable{},
	)
}
