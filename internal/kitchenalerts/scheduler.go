package kitchenalerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/notifications"
	"seatnext/internal/orders"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
	"seatnext/pkg/metrics"
)

// Config contains configuration for kitchen alerts
type Config struct {
	Tick         time.Duration
	LateInterval time.Duration
	Thresholds   Thresholds
}

// DefaultConfig returns default kitchen alert configuration
func DefaultConfig() *Config {
	return &Config{
		Tick:         5 * time.Second,
		LateInterval: 10 * time.Second,
		Thresholds:   DefaultThresholds(),
	}
}

var latePattern = []int{400, 150, 400, 150, 400}

// tombstoneTTL bounds how long a resolved order's last version is kept to
// reject older snapshots that arrive after it
const tombstoneTTL = 5 * time.Minute

type tombstone struct {
	updatedAt time.Time
	deleted   bool
	until     time.Time
}

type announcement struct {
	order orders.Order
	phase Phase
}

// Scheduler tracks the warning phase of every active order at one venue.
// The phase and stop maps belong to the scheduler alone.
type Scheduler struct {
	venueID  uuid.UUID
	clock    clock.Clock
	notifier notifications.Notifier
	repeater Repeater
	config   *Config
	log      *logger.Logger

	mu     sync.Mutex
	orders map[uuid.UUID]orders.Order
	phases map[uuid.UUID]Phase
	stops  map[uuid.UUID]func()
	gone   map[uuid.UUID]tombstone
}

// NewScheduler creates the scheduler for one venue
func NewScheduler(venueID uuid.UUID, clk clock.Clock, notifier notifications.Notifier, repeater Repeater, config *Config, log *logger.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	if repeater == nil {
		repeater = TickerRepeater{}
	}
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Scheduler{
		venueID:  venueID,
		clock:    clk,
		notifier: notifier,
		repeater: repeater,
		config:   config,
		log:      log.WithComponent("kitchen-alerts"),
		orders:   make(map[uuid.UUID]orders.Order),
		phases:   make(map[uuid.UUID]Phase),
		stops:    make(map[uuid.UUID]func()),
		gone:     make(map[uuid.UUID]tombstone),
	}
}

// Observe records the latest stored state of an order. An order leaving
// the kitchen is forgotten; a changed ETA restarts its warnings. A snapshot
// older than the last one seen for the order is ignored and false is
// returned.
func (s *Scheduler) Observe(o orders.Order) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staleLocked(o) {
		return false
	}

	if !o.IsAlerting() {
		s.forgetLocked(o.ID)
		s.gone[o.ID] = tombstone{updatedAt: o.UpdatedAt, until: s.clock.Now().Add(tombstoneTTL)}
		return true
	}
	delete(s.gone, o.ID)

	if prev, ok := s.orders[o.ID]; ok && !sameTime(prev.ETA, o.ETA) {
		s.resetLocked(o.ID)
	}
	s.orders[o.ID] = o
	if _, ok := s.phases[o.ID]; !ok {
		s.phases[o.ID] = PhaseNone
	}
	return true
}

// Forget drops a deleted order and stops its alarm. Later snapshots of it
// are ignored.
func (s *Scheduler) Forget(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgetLocked(id)
	s.gone[id] = tombstone{deleted: true, until: s.clock.Now().Add(tombstoneTTL)}
}

// Tick re-evaluates every order against the clock. Notices are sent after
// the lock is released.
func (s *Scheduler) Tick(ctx context.Context) {
	var due []announcement

	s.mu.Lock()
	now := s.clock.Now()
	for id, o := range s.orders {
		untilDue, ok := o.UntilDue(now)
		if !ok {
			continue
		}

		next, moved := s.config.Thresholds.Next(untilDue, s.phases[id])
		if !moved {
			continue
		}
		s.phases[id] = next
		due = append(due, announcement{order: o, phase: next})

		if next == PhaseLate {
			s.startAlarmLocked(o)
		}
	}
	for id, t := range s.gone {
		if !now.Before(t.until) {
			delete(s.gone, id)
		}
	}
	s.mu.Unlock()

	for _, a := range due {
		s.announce(ctx, a.order, a.phase)
	}
}

// Phase returns the current phase of an order
func (s *Scheduler) Phase(id uuid.UUID) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.phases[id]; ok {
		return p
	}
	return PhaseNone
}

// Len returns the number of tracked orders
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// LateAlarms returns the number of running late alarms
func (s *Scheduler) LateAlarms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stops)
}

// Idle reports whether the scheduler tracks nothing, tombstones included
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders) == 0 && len(s.gone) == 0
}

// Close stops every alarm and forgets every order
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.orders {
		s.forgetLocked(id)
	}
	clear(s.gone)
}

func (s *Scheduler) staleLocked(o orders.Order) bool {
	if prev, ok := s.orders[o.ID]; ok {
		return o.UpdatedAt.Before(prev.UpdatedAt)
	}
	if t, ok := s.gone[o.ID]; ok {
		return t.deleted || o.UpdatedAt.Before(t.updatedAt)
	}
	return false
}

func (s *Scheduler) forgetLocked(id uuid.UUID) {
	s.stopAlarmLocked(id)
	delete(s.orders, id)
	delete(s.phases, id)
}

func (s *Scheduler) resetLocked(id uuid.UUID) {
	s.stopAlarmLocked(id)
	s.phases[id] = PhaseNone
}

func (s *Scheduler) startAlarmLocked(o orders.Order) {
	s.stopAlarmLocked(o.ID)

	channel := notifications.KitchenChannel(s.venueID)
	title := fmt.Sprintf("Order %s is late", o.OrderNumber)
	tag := "order-" + o.ID.String()

	s.stops[o.ID] = s.repeater.Start(s.config.LateInterval, func() {
		ctx := context.Background()
		_ = s.notifier.Vibrate(ctx, channel, latePattern)
		_ = s.notifier.Notify(ctx, title, "Still waiting to be served", notifications.Options{
			Channel:  channel,
			Tag:      tag,
			Priority: notifications.PriorityCritical,
		})
	})
	metrics.LateAlarmStarted()
}

func (s *Scheduler) stopAlarmLocked(id uuid.UUID) {
	stop, ok := s.stops[id]
	if !ok {
		return
	}
	stop()
	delete(s.stops, id)
	metrics.LateAlarmStopped()
}

func (s *Scheduler) announce(ctx context.Context, o orders.Order, p Phase) {
	var (
		title    string
		priority notifications.Priority
	)
	switch p {
	case PhaseOneMin:
		title, priority = fmt.Sprintf("Order %s due in 1 minute", o.OrderNumber), notifications.PriorityMedium
	case PhaseThirtySec:
		title, priority = fmt.Sprintf("Order %s due in 30 seconds", o.OrderNumber), notifications.PriorityHigh
	case PhaseLate:
		title, priority = fmt.Sprintf("Order %s is late", o.OrderNumber), notifications.PriorityCritical
	default:
		return
	}

	metrics.TrackKitchenAlert(string(p))
	s.log.LogAlert(ctx, s.venueID.String(), o.ID.String(), string(p))

	err := s.notifier.Notify(ctx, title, o.Notes, notifications.Options{
		Channel:            notifications.KitchenChannel(s.venueID),
		Tag:                "order-" + o.ID.String(),
		Priority:           priority,
		RequireInteraction: p == PhaseLate,
		Data:               map[string]interface{}{"order_id": o.ID.String(), "phase": string(p)},
	})
	if err != nil {
		s.log.WarnContext(ctx, "kitchen alert failed", "order_id", o.ID.String(), "error", err)
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
