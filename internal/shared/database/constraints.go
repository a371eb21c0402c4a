package database

import (
	"fmt"

	"gorm.io/gorm"
)

type constraint struct {
	table string
	name  string
	check string
}

var constraints = []constraint{
	{
		table: "queue_entries",
		name:  "chk_queue_entries_status",
		check: "status IN ('waiting','ready','awaiting_confirmation','seated','cancelled','no_show')",
	},
	{
		// a deadline only exists while the patron is expected
		table: "queue_entries",
		name:  "chk_queue_entries_deadline",
		check: "ready_deadline IS NULL OR (status = 'ready' AND awaiting_merchant_confirmation = false)",
	},
	{
		table: "queue_entries",
		name:  "chk_queue_entries_party_size",
		check: "party_size BETWEEN 1 AND 12",
	},
	{
		table: "orders",
		name:  "chk_orders_status",
		check: "status IN ('awaiting_verification','placed','in_prep','ready','collected','cancelled','rejected','no_show')",
	},
	{
		table: "venue_tables",
		name:  "chk_venue_tables_capacity",
		check: "capacity > 0",
	},
}

var indexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_venue_tables_label ON venue_tables (venue_id, label)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_entries_waiting_position ON queue_entries (venue_id, position) WHERE status = 'waiting'`,
	`CREATE INDEX IF NOT EXISTS idx_orders_alerting ON orders (venue_id) WHERE status IN ('placed','in_prep') AND eta IS NOT NULL`,
}

// MigrateConstraints adds the check constraints and partial indexes that
// AutoMigrate cannot express
func MigrateConstraints(db *gorm.DB) error {
	for _, c := range constraints {
		drop := fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, c.table, c.name)
		add := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)`, c.table, c.name, c.check)
		for _, stmt := range []string{drop, add} {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("constraint %s: %w", c.name, err)
			}
		}
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}
	return nil
}
