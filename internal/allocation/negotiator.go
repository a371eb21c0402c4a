package allocation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/queue"
	"seatnext/internal/shared/apperr"
)

// Negotiator answers whether a party can be seated at a given time
type Negotiator interface {
	RequestAllocation(ctx context.Context, venueID uuid.UUID, at time.Time, partySize int) (*Result, error)
	// TablesFree reports whether none of tableIDs is held in the slot at at
	TablesFree(ctx context.Context, venueID uuid.UUID, at time.Time, tableIDs []uuid.UUID) (bool, error)
}

// NegotiatorConfig contains the slot search settings
type NegotiatorConfig struct {
	SlotLength    time.Duration
	SearchHorizon time.Duration
	SearchStep    time.Duration
}

// DefaultNegotiatorConfig returns default negotiator configuration
func DefaultNegotiatorConfig() *NegotiatorConfig {
	return &NegotiatorConfig{
		SlotLength:    SlotLength,
		SearchHorizon: SearchHorizon,
		SearchStep:    SearchStep,
	}
}

// TableNegotiator allocates from a venue's own tables
type TableNegotiator struct {
	repo   Repository
	config *NegotiatorConfig
}

// NewTableNegotiator creates a negotiator over the table repository
func NewTableNegotiator(repo Repository, config *NegotiatorConfig) *TableNegotiator {
	if config == nil {
		config = DefaultNegotiatorConfig()
	}
	return &TableNegotiator{repo: repo, config: config}
}

// RequestAllocation prefers the smallest single table that fits, then a
// combination of free tables, and otherwise reports the next slot that
// could seat the party
func (n *TableNegotiator) RequestAllocation(ctx context.Context, venueID uuid.UUID, at time.Time, partySize int) (*Result, error) {
	const op = "request_allocation"

	if partySize < queue.MinPartySize || partySize > queue.MaxPartySize {
		return nil, apperr.Validation(op, fmt.Sprintf("party size must be between %d and %d", queue.MinPartySize, queue.MaxPartySize))
	}

	tables, err := n.repo.ListTables(ctx, venueID)
	if err != nil {
		return nil, apperr.External(op, err)
	}
	if len(tables) == 0 {
		return &Result{Reason: "This venue has no tables configured"}, nil
	}

	result, err := n.allocateAt(ctx, venueID, tables, at, partySize)
	if err != nil {
		return nil, apperr.External(op, err)
	}
	if result.Available {
		return result, nil
	}

	if capacityOf(tables) < partySize {
		return &Result{Reason: fmt.Sprintf("This venue cannot seat a party of %d", partySize)}, nil
	}

	for slot := at.Add(n.config.SearchStep); !slot.After(at.Add(n.config.SearchHorizon)); slot = slot.Add(n.config.SearchStep) {
		next, err := n.allocateAt(ctx, venueID, tables, slot, partySize)
		if err != nil {
			return nil, apperr.External(op, err)
		}
		if next.Available {
			s := slot
			return &Result{
				NextAvailableSlot: &s,
				Reason:            "No tables are free at the requested time",
			}, nil
		}
	}

	return &Result{Reason: "No tables are free at the requested time"}, nil
}

func (n *TableNegotiator) TablesFree(ctx context.Context, venueID uuid.UUID, at time.Time, tableIDs []uuid.UUID) (bool, error) {
	held, err := n.repo.HeldTables(ctx, venueID, at, n.config.SlotLength)
	if err != nil {
		return false, err
	}
	wanted := make(map[uuid.UUID]bool, len(tableIDs))
	for _, id := range tableIDs {
		wanted[id] = true
	}
	for _, id := range held {
		if wanted[id] {
			return false, nil
		}
	}
	return true, nil
}

func (n *TableNegotiator) allocateAt(ctx context.Context, venueID uuid.UUID, tables []VenueTable, at time.Time, partySize int) (*Result, error) {
	held, err := n.repo.HeldTables(ctx, venueID, at, n.config.SlotLength)
	if err != nil {
		return nil, err
	}
	return Allocate(freeTables(tables, held), partySize), nil
}

// Allocate picks tables for a party from the free set. It never fails; an
// unavailable result carries no reason.
func Allocate(free []VenueTable, partySize int) *Result {
	sort.SliceStable(free, func(i, j int) bool { return free[i].Capacity < free[j].Capacity })

	for _, t := range free {
		if t.Capacity >= partySize {
			ref := refOf(t)
			return &Result{Available: true, MatchedTable: &ref, TotalCapacity: t.Capacity}
		}
	}

	// largest first keeps the number of tables low
	var picked []TableRef
	total := 0
	for i := len(free) - 1; i >= 0 && total < partySize; i-- {
		picked = append(picked, refOf(free[i]))
		total += free[i].Capacity
	}
	if total < partySize {
		return &Result{}
	}

	return &Result{
		Available:              true,
		RequiresMultipleTables: true,
		TablesNeeded:           picked,
		TotalCapacity:          total,
		Warning:                fmt.Sprintf("Your party will be seated across %d tables", len(picked)),
	}
}

func freeTables(tables []VenueTable, held []uuid.UUID) []VenueTable {
	busy := make(map[uuid.UUID]struct{}, len(held))
	for _, id := range held {
		busy[id] = struct{}{}
	}

	free := make([]VenueTable, 0, len(tables))
	for _, t := range tables {
		if _, ok := busy[t.ID]; !ok {
			free = append(free, t)
		}
	}
	return free
}

func capacityOf(tables []VenueTable) int {
	total := 0
	for _, t := range tables {
		total += t.Capacity
	}
	return total
}
