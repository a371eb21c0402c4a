package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/feedback"
	"seatnext/internal/notifications"
	"seatnext/internal/shared/apperr"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
	"seatnext/pkg/metrics"
)

// Outcome tells a caller how a conditional write ended. Losing a race is
// not an error: the store already holds a valid state written by someone
// else, and the change feed will deliver it.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeRaceLost Outcome = "race_lost"
	OutcomeNoop     Outcome = "noop"
)

// Result carries the entry as the store last reported it
type Result struct {
	Entry   *QueueEntry
	Outcome Outcome
}

// Service interface defines the queue entry operations
type Service interface {
	Join(ctx context.Context, venueID uuid.UUID, patronID *uuid.UUID, request *JoinQueueRequest) (*QueueEntry, error)
	Get(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	ListWaiting(ctx context.Context, venueID uuid.UUID) ([]QueueEntry, error)
	ListVenue(ctx context.Context, venueID uuid.UUID, statuses ...Status) ([]QueueEntry, error)

	MarkReady(ctx context.Context, id uuid.UUID, deadline *time.Time) (*QueueEntry, error)
	ConfirmArrival(ctx context.Context, id uuid.UUID) (Result, error)
	MerchantSeats(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) ([]QueueEntry, error)
	Expire(ctx context.Context, id uuid.UUID) (Result, error)
	GrantExtension(ctx context.Context, id uuid.UUID) (*QueueEntry, error)

	// ProcessExpiredReady expires every ready entry past its deadline
	ProcessExpiredReady(ctx context.Context) (int, error)
}

// ServiceConfig contains configuration for the queue service
type ServiceConfig struct {
	ReadyWindow    time.Duration
	ExtensionDelta time.Duration
	SweepBatchSize int
}

// DefaultServiceConfig returns default service configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		ReadyWindow:    ReadyWindow,
		ExtensionDelta: ExtensionDelta,
		SweepBatchSize: 100,
	}
}

type service struct {
	repo     Repository
	notifier notifications.Notifier
	feedback feedback.Trigger
	clock    clock.Clock
	config   *ServiceConfig
	log      *logger.Logger
}

// NewService creates a new queue service
func NewService(repo Repository, notifier notifications.Notifier, trigger feedback.Trigger, clk clock.Clock, config *ServiceConfig, log *logger.Logger) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	if trigger == nil {
		trigger = feedback.NoopTrigger{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &service{
		repo:     repo,
		notifier: notifier,
		feedback: trigger,
		clock:    clk,
		config:   config,
		log:      log.WithComponent("queue"),
	}
}

// Join adds a walk-in or reservation entry to the back of a venue queue
func (s *service) Join(ctx context.Context, venueID uuid.UUID, patronID *uuid.UUID, request *JoinQueueRequest) (*QueueEntry, error) {
	const op = "join"

	if request.PartySize < MinPartySize || request.PartySize > MaxPartySize {
		return nil, apperr.Validation(op, fmt.Sprintf("party size must be between %d and %d", MinPartySize, MaxPartySize))
	}

	entry := &QueueEntry{
		VenueID:         venueID,
		PatronID:        patronID,
		TableID:         request.TableID,
		PartySize:       request.PartySize,
		Status:          StatusWaiting,
		ETA:             request.ETA,
		ReservationType: ReservationWalkIn,
		ReservationTime: request.ReservationTime,
	}
	if request.ReservationTime != nil {
		entry.ReservationType = ReservationReservation
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, apperr.External(op, err)
	}

	s.log.LogTransition(ctx, "queue_entry", entry.ID.String(), "", string(entry.Status))
	return entry, nil
}

// Get returns a queue entry
func (s *service) Get(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	return s.load(ctx, "get", id)
}

// ListWaiting returns the venue's waiting entries in rank order
func (s *service) ListWaiting(ctx context.Context, venueID uuid.UUID) ([]QueueEntry, error) {
	entries, err := s.repo.ListWaiting(ctx, venueID)
	if err != nil {
		return nil, apperr.External("list_waiting", err)
	}
	return entries, nil
}

func (s *service) ListVenue(ctx context.Context, venueID uuid.UUID, statuses ...Status) ([]QueueEntry, error) {
	entries, err := s.repo.ListByVenue(ctx, venueID, statuses...)
	if err != nil {
		return nil, apperr.External("list_venue", err)
	}
	return entries, nil
}

// MarkReady starts the arrival window. A nil deadline uses the configured
// ready window from now.
func (s *service) MarkReady(ctx context.Context, id uuid.UUID, deadline *time.Time) (*QueueEntry, error) {
	now := s.clock.Now()
	d := now.Add(s.config.ReadyWindow)
	if deadline != nil {
		d = *deadline
	}

	entry, outcome, err := s.apply(ctx, id, Command{Op: OpMarkReady, Deadline: d})
	if err != nil {
		return nil, err
	}
	if outcome == OutcomeRaceLost {
		return nil, apperr.Validation(string(OpMarkReady), fmt.Sprintf("entry is now %s", entry.PatronStatus()))
	}

	s.notify(ctx, "Your table is ready", fmt.Sprintf("Please arrive by %s to keep your table", entry.ReadyDeadline.Format("15:04")),
		notifications.Options{
			Channel:            notifications.PatronChannel(entry.ID),
			Tag:                "ready-" + entry.ID.String(),
			Priority:           notifications.PriorityHigh,
			RequireInteraction: true,
		})
	s.vibrate(ctx, notifications.PatronChannel(entry.ID), []int{300, 100, 300})
	return entry, nil
}

// ConfirmArrival records that the patron is at the venue. If the expiry
// write reached the store first the result reports the lost race.
func (s *service) ConfirmArrival(ctx context.Context, id uuid.UUID) (Result, error) {
	entry, outcome, err := s.apply(ctx, id, Command{Op: OpConfirmArrival})
	if err != nil {
		return Result{Entry: entry}, err
	}
	if outcome == OutcomeApplied {
		s.notify(ctx, "Guest has arrived", fmt.Sprintf("Party of %d is waiting to be seated", entry.PartySize),
			notifications.Options{
				Channel:  notifications.VenueChannel(entry.VenueID),
				Tag:      "arrival-" + entry.ID.String(),
				Priority: notifications.PriorityHigh,
				Data:     map[string]interface{}{"entry_id": entry.ID.String()},
			})
	}
	return Result{Entry: entry, Outcome: outcome}, nil
}

// MerchantSeats completes the entry and triggers feedback collection
func (s *service) MerchantSeats(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	entry, outcome, err := s.apply(ctx, id, Command{Op: OpMerchantSeats})
	if err != nil {
		return nil, err
	}
	if outcome == OutcomeRaceLost {
		return nil, apperr.Validation(string(OpMerchantSeats), fmt.Sprintf("entry is now %s", entry.PatronStatus()))
	}

	req := feedback.Request{
		EntryID:   entry.ID,
		VenueID:   entry.VenueID,
		PatronID:  entry.PatronID,
		PartySize: entry.PartySize,
		SeatedAt:  entry.UpdatedAt,
	}
	if err := s.feedback.RequestFeedback(ctx, req); err != nil {
		s.log.WarnContext(ctx, "feedback trigger failed", "entry_id", entry.ID.String(), "error", err)
	}
	return entry, nil
}

// Cancel cancels an active entry. A linked entry takes every active sibling
// with it in the same transaction.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) ([]QueueEntry, error) {
	op := string(OpCancel)

	entry, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}

	cmd := Command{Op: OpCancel, Reason: reason, Actor: actor}
	guard, patch, err := Transition(*entry, cmd, s.clock.Now())
	if err != nil {
		metrics.TrackTransition(op, "rejected")
		return nil, err
	}

	var cancelled []QueueEntry
	if entry.IsLinked() {
		cancelled, err = s.repo.CancelLinked(ctx, id, *entry.LinkedReservationID, guard, patch)
	} else {
		var updated *QueueEntry
		updated, err = s.repo.ConditionalUpdate(ctx, id, guard, patch)
		if updated != nil {
			cancelled = []QueueEntry{*updated}
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrConflict):
		metrics.TrackTransition(op, string(OutcomeRaceLost))
		s.log.LogRaceOutcome(ctx, op, id.String())
		current, rerr := s.load(ctx, op, id)
		if rerr != nil {
			return nil, rerr
		}
		return nil, apperr.Validation(op, fmt.Sprintf("entry is now %s", current.PatronStatus()))
	case errors.Is(err, apperr.ErrNotFound):
		return nil, apperr.NotFound(op, "queue entry not found")
	default:
		metrics.TrackTransition(op, "failed")
		return nil, apperr.External(op, err)
	}

	metrics.TrackTransition(op, string(OutcomeApplied))
	for i := range cancelled {
		s.log.LogTransition(ctx, "queue_entry", cancelled[i].ID.String(), string(entry.Status), string(cancelled[i].Status))
	}

	if actor != ActorPatron {
		for i := range cancelled {
			s.notify(ctx, "Your booking was cancelled", *cancelled[i].CancellationReason, notifications.Options{
				Channel: notifications.PatronChannel(cancelled[i].ID),
				Tag:     "cancelled-" + cancelled[i].ID.String(),
			})
		}
	}
	if actor != ActorVenue {
		s.notify(ctx, "Booking cancelled", fmt.Sprintf("Party of %d cancelled", entry.PartySize), notifications.Options{
			Channel: notifications.VenueChannel(entry.VenueID),
			Tag:     "cancelled-" + entry.ID.String(),
		})
	}
	return cancelled, nil
}

// Expire cancels a ready entry whose deadline passed. Calling it on an
// entry that is not due (already resolved, arrived, or still in time) is a
// no-op, so repeated ticks are safe.
func (s *service) Expire(ctx context.Context, id uuid.UUID) (Result, error) {
	op := string(OpExpire)

	entry, err := s.load(ctx, op, id)
	if err != nil {
		return Result{}, err
	}
	if !entry.ExpiryDue(s.clock.Now()) {
		return Result{Entry: entry, Outcome: OutcomeNoop}, nil
	}

	entry, outcome, err := s.write(ctx, entry, Command{Op: OpExpire})
	if err != nil {
		return Result{Entry: entry}, err
	}
	if outcome != OutcomeApplied {
		return Result{Entry: entry, Outcome: outcome}, nil
	}

	metrics.TrackExpiry()
	s.notify(ctx, "Reservation cancelled", ExpiryReason, notifications.Options{
		Channel:            notifications.PatronChannel(entry.ID),
		Tag:                "expired-" + entry.ID.String(),
		Priority:           notifications.PriorityHigh,
		RequireInteraction: true,
	})
	s.vibrate(ctx, notifications.PatronChannel(entry.ID), []int{500, 200, 500})
	return Result{Entry: entry, Outcome: outcome}, nil
}

// GrantExtension moves the deadline once by the configured delta. The store
// only accepts the write while patron_delayed is still false, so two
// concurrent requests cannot both succeed.
func (s *service) GrantExtension(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	op := string(OpGrantExtension)

	entry, outcome, err := s.apply(ctx, id, Command{Op: OpGrantExtension, Delta: s.config.ExtensionDelta})
	if err != nil {
		if apperr.Is(err, apperr.KindPolicy) {
			metrics.TrackExtension("already_used")
		}
		return nil, err
	}
	if outcome == OutcomeRaceLost {
		if entry.PatronDelayed {
			metrics.TrackExtension("already_used")
			return nil, apperr.Policy(op, "the grace extension has already been used")
		}
		return nil, apperr.Validation(op, fmt.Sprintf("entry is now %s", entry.PatronStatus()))
	}

	metrics.TrackExtension("granted")
	s.notify(ctx, "Extra time granted", fmt.Sprintf("We'll hold your table until %s", entry.ReadyDeadline.Format("15:04")),
		notifications.Options{
			Channel: notifications.PatronChannel(entry.ID),
			Tag:     "ready-" + entry.ID.String(),
		})
	return entry, nil
}

// ProcessExpiredReady is the sweep run by the job processor and the CLI.
// Individual failures are logged and left for the next run.
func (s *service) ProcessExpiredReady(ctx context.Context) (int, error) {
	entries, err := s.repo.ListExpiredReady(ctx, s.clock.Now(), s.config.SweepBatchSize)
	if err != nil {
		return 0, apperr.External("sweep", err)
	}

	processed := 0
	for _, e := range entries {
		res, err := s.Expire(ctx, e.ID)
		if err != nil {
			s.log.WarnContext(ctx, "failed to expire entry", "entry_id", e.ID.String(), "error", err)
			continue
		}
		if res.Outcome == OutcomeApplied {
			processed++
		}
	}
	return processed, nil
}

// apply loads the entry and runs cmd against it
func (s *service) apply(ctx context.Context, id uuid.UUID, cmd Command) (*QueueEntry, Outcome, error) {
	entry, err := s.load(ctx, string(cmd.Op), id)
	if err != nil {
		return nil, "", err
	}
	return s.write(ctx, entry, cmd)
}

// write performs one conditional write. On conflict the entry is re-read so
// the caller sees the state that won.
func (s *service) write(ctx context.Context, entry *QueueEntry, cmd Command) (*QueueEntry, Outcome, error) {
	op := string(cmd.Op)

	guard, patch, err := Transition(*entry, cmd, s.clock.Now())
	if err != nil {
		metrics.TrackTransition(op, "rejected")
		return entry, "", err
	}

	updated, err := s.repo.ConditionalUpdate(ctx, entry.ID, guard, patch)
	switch {
	case err == nil:
		metrics.TrackTransition(op, string(OutcomeApplied))
		s.log.LogTransition(ctx, "queue_entry", entry.ID.String(), string(entry.Status), string(updated.Status))
		return updated, OutcomeApplied, nil

	case errors.Is(err, apperr.ErrConflict):
		metrics.TrackTransition(op, string(OutcomeRaceLost))
		s.log.LogRaceOutcome(ctx, op, entry.ID.String())
		current, rerr := s.load(ctx, op, entry.ID)
		if rerr != nil {
			return entry, "", rerr
		}
		return current, OutcomeRaceLost, nil

	case errors.Is(err, apperr.ErrNotFound):
		return entry, "", apperr.NotFound(op, "queue entry not found")

	default:
		metrics.TrackTransition(op, "failed")
		return entry, "", apperr.External(op, err)
	}
}

func (s *service) load(ctx context.Context, op string, id uuid.UUID) (*QueueEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound(op, "queue entry not found")
		}
		return nil, apperr.External(op, err)
	}
	return entry, nil
}

func (s *service) notify(ctx context.Context, title, body string, opts notifications.Options) {
	if err := s.notifier.Notify(ctx, title, body, opts); err != nil {
		s.log.WarnContext(ctx, "notification failed", "channel", opts.Channel, "error", err)
	}
}

func (s *service) vibrate(ctx context.Context, channel string, pattern []int) {
	if err := s.notifier.Vibrate(ctx, channel, pattern); err != nil {
		s.log.WarnContext(ctx, "vibration failed", "channel", channel, "error", err)
	}
}
