package kitchenalerts

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"seatnext/internal/changefeed"
	"seatnext/internal/notifications"
	"seatnext/internal/orders"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

// Source lists the orders that should currently be alerting
type Source interface {
	ListAlerting(ctx context.Context) ([]orders.Order, error)
}

// Manager keeps one scheduler per venue with active orders and drives them
// from the order change feed and a periodic tick
type Manager struct {
	source   Source
	feed     changefeed.Subscriber
	clock    clock.Clock
	notifier notifications.Notifier
	repeater Repeater
	config   *Config
	log      *logger.Logger

	schedulers map[uuid.UUID]*Scheduler
	sub        *changefeed.Subscription
	venues     atomic.Int64

	newTicker func() (<-chan struct{}, func())
}

// NewManager creates a kitchen alert manager
func NewManager(source Source, feed changefeed.Subscriber, clk clock.Clock, notifier notifications.Notifier, repeater Repeater, config *Config, log *logger.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.GetDefault()
	}

	m := &Manager{
		source:     source,
		feed:       feed,
		clock:      clk,
		notifier:   notifier,
		repeater:   repeater,
		config:     config,
		log:        log.WithComponent("kitchen-alerts"),
		schedulers: make(map[uuid.UUID]*Scheduler),
	}
	m.newTicker = func() (<-chan struct{}, func()) {
		return tickerChan(config.Tick)
	}
	return m
}

// Venues returns the number of venues with orders in the kitchen
func (m *Manager) Venues() int {
	return int(m.venues.Load())
}

// Run drives every scheduler until ctx is cancelled
func (m *Manager) Run(ctx context.Context) error {
	ticks, stop := m.newTicker()
	defer stop()
	defer m.teardown()

	m.connect(ctx)
	m.log.Info("kitchen alert manager started", "tick", m.config.Tick.String())

	for {
		var events <-chan changefeed.Event
		if m.sub != nil {
			events = m.sub.C
		}

		select {
		case <-ctx.Done():
			m.log.Info("kitchen alert manager stopped")
			return ctx.Err()

		case <-ticks:
			if m.sub == nil {
				m.connect(ctx)
			}
			m.tick(ctx)

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.log.Warn("order feed closed, resubscribing on next tick")
				m.sub = nil
				continue
			}
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) connect(ctx context.Context) {
	sub, err := m.feed.Subscribe(ctx, changefeed.Filter{Table: changefeed.TableOrders})
	if err != nil {
		m.log.WarnContext(ctx, "failed to subscribe to order changes", "error", err)
		return
	}

	active, err := m.source.ListAlerting(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "failed to load active orders", "error", err)
		_ = sub.Close()
		return
	}

	m.sub = sub
	for _, o := range active {
		m.observe(o)
	}
	m.prune()
}

func (m *Manager) teardown() {
	if m.sub != nil {
		_ = m.sub.Close()
		m.sub = nil
	}
	for venueID, s := range m.schedulers {
		s.Close()
		delete(m.schedulers, venueID)
	}
	m.venues.Store(0)
}

func (m *Manager) tick(ctx context.Context) {
	for _, s := range m.schedulers {
		s.Tick(ctx)
	}
	m.prune()
}

func (m *Manager) handleEvent(ev changefeed.Event) {
	if ev.Type == changefeed.EventDelete {
		if s, ok := m.schedulers[ev.VenueID]; ok {
			s.Forget(ev.RecordID)
		}
		m.prune()
		return
	}

	o, err := orders.Merge(nil, ev)
	if err != nil || o == nil {
		m.log.Warn("undecodable order change", "record_id", ev.RecordID.String(), "error", err)
		return
	}
	m.observe(*o)
	m.prune()
}

func (m *Manager) observe(o orders.Order) {
	s, ok := m.schedulers[o.VenueID]
	if !ok {
		if !o.IsAlerting() {
			return
		}
		s = NewScheduler(o.VenueID, m.clock, m.notifier, m.repeater, m.config, m.log)
		m.schedulers[o.VenueID] = s
	}
	s.Observe(o)
}

// prune closes schedulers that no longer track any order or tombstone and
// counts the venues with orders in the kitchen
func (m *Manager) prune() {
	var active int64
	for venueID, s := range m.schedulers {
		if s.Idle() {
			s.Close()
			delete(m.schedulers, venueID)
			continue
		}
		if s.Len() > 0 {
			active++
		}
	}
	m.venues.Store(active)
}
