package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/queue"
	"seatnext/internal/shared/apperr"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

// LinkedCreator creates a set of linked queue entries in one transaction
type LinkedCreator interface {
	CreateLinked(ctx context.Context, entries []queue.QueueEntry) ([]queue.QueueEntry, error)
}

// ProposeRequest is a patron's booking request
type ProposeRequest struct {
	PatronID        *uuid.UUID
	PartySize       int
	ReservationTime time.Time
	ETA             *time.Time
}

// Offer is the answer to a booking request. Proposal is set only when the
// party needs more than one table.
type Offer struct {
	Result   *Result   `json:"result"`
	Proposal *Proposal `json:"proposal,omitempty"`
}

// Coordinator turns split proposals into linked queue entries
type Coordinator struct {
	negotiator Negotiator
	store      ProposalStore
	entries    LinkedCreator
	clock      clock.Clock
	ttl        time.Duration
	log        *logger.Logger
}

// NewCoordinator creates a multi-table coordinator
func NewCoordinator(negotiator Negotiator, store ProposalStore, entries LinkedCreator, clk clock.Clock, ttl time.Duration, log *logger.Logger) *Coordinator {
	if clk == nil {
		clk = clock.Real{}
	}
	if ttl <= 0 {
		ttl = ProposalTTL
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Coordinator{
		negotiator: negotiator,
		store:      store,
		entries:    entries,
		clock:      clk,
		ttl:        ttl,
		log:        log.WithComponent("allocation"),
	}
}

// Propose asks the negotiator for tables. A split result is stored as a
// proposal for the patron to confirm or discard; nothing is booked yet.
func (c *Coordinator) Propose(ctx context.Context, venueID uuid.UUID, req ProposeRequest) (*Offer, error) {
	const op = "propose"

	result, err := c.negotiator.RequestAllocation(ctx, venueID, req.ReservationTime, req.PartySize)
	if err != nil {
		return nil, err
	}
	offer := &Offer{Result: result}
	if !result.Available || !result.RequiresMultipleTables {
		return offer, nil
	}

	now := c.clock.Now()
	p := &Proposal{
		ID:               uuid.New(),
		VenueID:          venueID,
		PatronID:         req.PatronID,
		PartySize:        req.PartySize,
		ReservationTime:  req.ReservationTime,
		ETA:              req.ETA,
		Tables:           result.TablesNeeded,
		RequiredCapacity: req.PartySize,
		TotalCapacity:    result.TotalCapacity,
		CreatedAt:        now,
		ExpiresAt:        now.Add(c.ttl),
	}
	if err := c.store.Save(ctx, p, c.ttl); err != nil {
		return nil, apperr.External(op, err)
	}

	c.log.InfoContext(ctx, "split proposal created", "proposal_id", p.ID.String(), "venue_id", venueID.String(), "tables", len(p.Tables))
	offer.Proposal = p
	return offer, nil
}

// GetProposal returns a pending proposal
func (c *Coordinator) GetProposal(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	p, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, proposalError("get_proposal", err)
	}
	return p, nil
}

// Confirm books every table of the proposal as one linked set. The proposal
// is consumed first, so a second confirmation is rejected. Tables booked by
// someone else since the proposal was made reject it for good. If the batch
// insert fails nothing is created and the proposal is restored for a retry.
func (c *Coordinator) Confirm(ctx context.Context, id uuid.UUID, patronID *uuid.UUID) ([]queue.QueueEntry, error) {
	const op = "confirm_proposal"

	p, err := c.store.Take(ctx, id)
	if err != nil {
		return nil, proposalError(op, err)
	}
	if p.PatronID != nil && (patronID == nil || *p.PatronID != *patronID) {
		c.restore(ctx, p)
		return nil, apperr.Policy(op, "this proposal belongs to another patron")
	}
	if len(p.Tables) < 2 {
		return nil, apperr.Policy(op, "proposal does not describe a multi-table booking")
	}

	tableIDs := make([]uuid.UUID, len(p.Tables))
	for i, t := range p.Tables {
		tableIDs[i] = t.ID
	}
	free, err := c.negotiator.TablesFree(ctx, p.VenueID, p.ReservationTime, tableIDs)
	if err != nil {
		c.restore(ctx, p)
		return nil, apperr.External(op, err)
	}
	if !free {
		c.log.InfoContext(ctx, "split proposal went stale", "proposal_id", id.String(), "venue_id", p.VenueID.String())
		return nil, apperr.Policy(op, "some tables in this proposal are no longer free")
	}

	linkID := uuid.New()
	reservationTime := p.ReservationTime
	batch := make([]queue.QueueEntry, 0, len(p.Tables))
	for _, t := range p.Tables {
		tableID := t.ID
		batch = append(batch, queue.QueueEntry{
			VenueID:             p.VenueID,
			PatronID:            p.PatronID,
			TableID:             &tableID,
			PartySize:           p.PartySize,
			Status:              queue.StatusWaiting,
			ETA:                 p.ETA,
			ReservationType:     queue.ReservationReservation,
			ReservationTime:     &reservationTime,
			LinkedReservationID: &linkID,
		})
	}

	created, err := c.entries.CreateLinked(ctx, batch)
	if err != nil {
		c.restore(ctx, p)
		return nil, apperr.External(op, err)
	}

	c.log.InfoContext(ctx, "split proposal confirmed", "proposal_id", id.String(), "linked_reservation_id", linkID.String(), "entries", len(created))
	return created, nil
}

// Discard drops a proposal; no entries are created. Discarding an unknown
// or expired proposal is not an error.
func (c *Coordinator) Discard(ctx context.Context, id uuid.UUID) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return apperr.External("discard_proposal", err)
	}
	return nil
}

func (c *Coordinator) restore(ctx context.Context, p *Proposal) {
	ttl := p.ExpiresAt.Sub(c.clock.Now())
	if ttl <= 0 {
		return
	}
	if err := c.store.Save(ctx, p, ttl); err != nil {
		c.log.WarnContext(ctx, "failed to restore proposal", "proposal_id", p.ID.String(), "error", err)
	}
}

func proposalError(op string, err error) error {
	if errors.Is(err, ErrProposalGone) {
		return apperr.Policy(op, "proposal has expired or was already used")
	}
	return apperr.External(op, fmt.Errorf("proposal store: %w", err))
}
