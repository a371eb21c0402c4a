package kitchenalerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatnext/internal/changefeed"
	"seatnext/internal/notifications"
	"seatnext/internal/notifications/notificationstest"
	"seatnext/internal/orders"
	"seatnext/internal/orders/orderstest"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

var start = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type manualRepeater struct {
	mu        sync.Mutex
	next      int
	running   map[int]func()
	intervals []time.Duration
}

func newManualRepeater() *manualRepeater {
	return &manualRepeater{running: make(map[int]func())}
}

func (r *manualRepeater) Start(interval time.Duration, fn func()) func() {
	r.mu.Lock()
	id := r.next
	r.next++
	r.running[id] = fn
	r.intervals = append(r.intervals, interval)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.running, id)
		r.mu.Unlock()
	}
}

func (r *manualRepeater) Fire() {
	r.mu.Lock()
	fns := make([]func(), 0, len(r.running))
	for _, fn := range r.running {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (r *manualRepeater) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

func TestNextPhase(t *testing.T) {
	tests := []struct {
		name     string
		untilDue time.Duration
		current  Phase
		want     Phase
		moved    bool
	}{
		{"far off", 5 * time.Minute, PhaseNone, PhaseNone, false},
		{"one minute", 60 * time.Second, PhaseNone, PhaseOneMin, true},
		{"one minute again", 45 * time.Second, PhaseOneMin, PhaseOneMin, false},
		{"thirty seconds from none", 20 * time.Second, PhaseNone, PhaseThirtySec, true},
		{"thirty seconds from one minute", 30 * time.Second, PhaseOneMin, PhaseThirtySec, true},
		{"thirty seconds again", 10 * time.Second, PhaseThirtySec, PhaseThirtySec, false},
		{"late from none", 0, PhaseNone, PhaseLate, true},
		{"late from thirty seconds", -time.Second, PhaseThirtySec, PhaseLate, true},
		{"late again", -time.Minute, PhaseLate, PhaseLate, false},
		{"late never drops back", 45 * time.Second, PhaseLate, PhaseLate, false},
		{"thirty seconds never drops back", 45 * time.Second, PhaseThirtySec, PhaseThirtySec, false},
		{"empty is none", 50 * time.Second, "", PhaseOneMin, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, moved := NextPhase(tt.untilDue, tt.current)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.moved, moved)
		})
	}
}

type schedulerHarness struct {
	clock     *clock.Fake
	recorder  *notificationstest.Recorder
	repeater  *manualRepeater
	scheduler *Scheduler
	venueID   uuid.UUID
}

func newSchedulerHarness() *schedulerHarness {
	h := &schedulerHarness{
		clock:    clock.NewFake(start),
		recorder: notificationstest.NewRecorder(),
		repeater: newManualRepeater(),
		venueID:  uuid.New(),
	}
	h.scheduler = NewScheduler(h.venueID, h.clock, h.recorder, h.repeater, DefaultConfig(), logger.Discard())
	return h
}

func (h *schedulerHarness) order(eta time.Time) orders.Order {
	return orders.Order{
		ID:          uuid.New(),
		VenueID:     h.venueID,
		OrderNumber: "A12",
		Status:      orders.StatusInPrep,
		ETA:         &eta,
	}
}

func (h *schedulerHarness) tickAt(untilDue time.Duration, o orders.Order) {
	h.clock.Set(o.ETA.Add(-untilDue))
	h.scheduler.Tick(context.Background())
}

func TestScheduler_OneNoticePerPhase(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(2 * time.Minute))
	h.scheduler.Observe(o)

	h.tickAt(50*time.Second, o)
	h.tickAt(45*time.Second, o)
	h.tickAt(40*time.Second, o)

	notices := h.recorder.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "Order A12 due in 1 minute", notices[0].Title)
	assert.Equal(t, notifications.KitchenChannel(h.venueID), notices[0].Options.Channel)
	assert.Equal(t, notifications.PriorityMedium, notices[0].Options.Priority)
	assert.Equal(t, PhaseOneMin, h.scheduler.Phase(o.ID))
}

func TestScheduler_StaysInOneMinuteAbove30Seconds(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(2 * time.Minute))
	h.scheduler.Observe(o)

	h.tickAt(45*time.Second, o)
	h.tickAt(35*time.Second, o)

	require.Len(t, h.recorder.Notices(), 1)
	assert.Equal(t, PhaseOneMin, h.scheduler.Phase(o.ID))

	h.tickAt(30*time.Second, o)
	notices := h.recorder.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "Order A12 due in 30 seconds", notices[1].Title)
}

func TestScheduler_LateAlarmIsContinuous(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(time.Minute))
	h.scheduler.Observe(o)

	h.tickAt(-time.Second, o)
	require.Len(t, h.recorder.Notices(), 1)
	assert.Equal(t, PhaseLate, h.scheduler.Phase(o.ID))
	assert.True(t, h.recorder.Notices()[0].Options.RequireInteraction)
	assert.Equal(t, 1, h.repeater.Running())
	assert.Equal(t, []time.Duration{10 * time.Second}, h.repeater.intervals)

	h.repeater.Fire()
	h.repeater.Fire()
	h.repeater.Fire()
	assert.Len(t, h.recorder.Vibrations(), 3)

	// a later tick neither re-announces nor starts a second alarm
	h.tickAt(-time.Minute, o)
	assert.Len(t, h.recorder.Notices(), 4)
	assert.Equal(t, 1, h.repeater.Running())
	assert.Equal(t, 1, h.scheduler.LateAlarms())
}

func TestScheduler_ResetOnExtend(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(time.Minute))
	h.scheduler.Observe(o)
	h.tickAt(-5*time.Second, o)
	require.Equal(t, 1, h.repeater.Running())

	extended := o
	eta := o.ETA.Add(5 * time.Minute)
	extended.ETA = &eta
	h.scheduler.Observe(extended)

	assert.Equal(t, PhaseNone, h.scheduler.Phase(o.ID))
	assert.Equal(t, 0, h.repeater.Running())

	h.recorder.Reset()
	h.tickAt(50*time.Second, extended)
	require.Len(t, h.recorder.Notices(), 1)
	assert.Equal(t, "Order A12 due in 1 minute", h.recorder.Notices()[0].Title)
}

func TestScheduler_ResetOnResolve(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(time.Minute))
	h.scheduler.Observe(o)
	h.tickAt(-5*time.Second, o)
	require.Equal(t, 1, h.repeater.Running())

	ready := o
	ready.Status = orders.StatusReady
	h.scheduler.Observe(ready)

	assert.Equal(t, 0, h.repeater.Running())
	assert.Equal(t, 0, h.scheduler.Len())
	assert.Equal(t, PhaseNone, h.scheduler.Phase(o.ID))

	h.recorder.Reset()
	h.tickAt(-time.Minute, o)
	assert.Empty(t, h.recorder.Notices())
}

func TestScheduler_CloseStopsEveryAlarm(t *testing.T) {
	h := newSchedulerHarness()
	for i := 0; i < 3; i++ {
		h.scheduler.Observe(h.order(start.Add(time.Duration(i+1) * time.Second)))
	}
	h.clock.Set(start.Add(time.Minute))
	h.scheduler.Tick(context.Background())
	require.Equal(t, 3, h.repeater.Running())

	h.scheduler.Close()
	assert.Equal(t, 0, h.repeater.Running())
	assert.Equal(t, 0, h.scheduler.LateAlarms())
	assert.Equal(t, 0, h.scheduler.Len())
}

func TestScheduler_IgnoresOrdersOutsideKitchen(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(time.Minute))
	o.Status = orders.StatusAwaitingVerification
	h.scheduler.Observe(o)

	noETA := h.order(start)
	noETA.ETA = nil
	h.scheduler.Observe(noETA)

	assert.Equal(t, 0, h.scheduler.Len())
}

func TestManager_FollowsOrderFeed(t *testing.T) {
	clk := clock.NewFake(start)
	hub := changefeed.NewLocalHub()
	repo := orderstest.New(hub, clk)
	svc := orders.NewService(repo, clk, logger.Discard())
	recorder := notificationstest.NewRecorder()
	repeater := newManualRepeater()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eta := start.Add(50 * time.Second)
	existing := &orders.Order{VenueID: uuid.New(), OrderNumber: "B7", Status: orders.StatusPlaced, ETA: &eta}
	require.NoError(t, repo.Create(ctx, existing))

	m := NewManager(repo, hub, clk, recorder, repeater, DefaultConfig(), logger.Discard())
	ticks := make(chan struct{})
	m.newTicker = func() (<-chan struct{}, func()) { return ticks, func() {} }

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Venues() == 1 }, time.Second, 5*time.Millisecond)

	ticks <- struct{}{}
	require.Eventually(t, func() bool { return len(recorder.Notices()) == 1 }, time.Second, 5*time.Millisecond)

	clk.Advance(time.Minute)
	ticks <- struct{}{}
	require.Eventually(t, func() bool { return repeater.Running() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Order B7 is late", recorder.Notices()[1].Title)

	_, err := svc.UpdateStatus(ctx, existing.ID, orders.StatusReady)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return repeater.Running() == 0 && m.Venues() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestManager_DeleteStopsAlarm(t *testing.T) {
	clk := clock.NewFake(start)
	hub := changefeed.NewLocalHub()
	repo := orderstest.New(hub, clk)
	repeater := newManualRepeater()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(repo, hub, clk, notificationstest.NewRecorder(), repeater, DefaultConfig(), logger.Discard())
	ticks := make(chan struct{})
	m.newTicker = func() (<-chan struct{}, func()) { return ticks, func() {} }
	go func() { _ = m.Run(ctx) }()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	eta := start.Add(-time.Second)
	o := &orders.Order{VenueID: uuid.New(), OrderNumber: "C3", Status: orders.StatusInPrep, ETA: &eta}
	require.NoError(t, repo.Create(ctx, o))
	require.Eventually(t, func() bool { return m.Venues() == 1 }, time.Second, 5*time.Millisecond)

	ticks <- struct{}{}
	require.Eventually(t, func() bool { return repeater.Running() == 1 }, time.Second, 5*time.Millisecond)

	repo.Delete(ctx, o.ID)
	require.Eventually(t, func() bool {
		return repeater.Running() == 0 && m.Venues() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_IgnoresStaleSnapshot(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(time.Minute))
	o.UpdatedAt = start
	require.True(t, h.scheduler.Observe(o))

	ready := o
	ready.Status = orders.StatusReady
	ready.UpdatedAt = start.Add(2 * time.Second)
	require.True(t, h.scheduler.Observe(ready))

	assert.False(t, h.scheduler.Observe(o))
	h.tickAt(-5*time.Second, o)

	assert.Equal(t, 0, h.scheduler.Len())
	assert.Equal(t, 0, h.scheduler.LateAlarms())
	assert.Empty(t, h.recorder.Notices())
}

func TestScheduler_IgnoresOlderUpdateOfTrackedOrder(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(time.Minute))
	o.UpdatedAt = start

	extended := o
	eta := o.ETA.Add(5 * time.Minute)
	extended.ETA = &eta
	extended.UpdatedAt = start.Add(time.Second)
	require.True(t, h.scheduler.Observe(extended))

	assert.False(t, h.scheduler.Observe(o))
	h.tickAt(-5*time.Second, o)
	assert.Equal(t, PhaseNone, h.scheduler.Phase(o.ID))
	assert.Equal(t, 0, h.repeater.Running())
}

func TestScheduler_ForgetRejectsLaterSnapshots(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(time.Minute))
	o.UpdatedAt = start.Add(time.Hour)

	h.scheduler.Forget(o.ID)
	assert.False(t, h.scheduler.Observe(o))
	assert.False(t, h.scheduler.Idle())
}

func TestScheduler_TombstonesExpire(t *testing.T) {
	h := newSchedulerHarness()
	o := h.order(start.Add(time.Hour))
	o.UpdatedAt = start.Add(time.Second)
	h.scheduler.Observe(o)

	resolved := o
	resolved.Status = orders.StatusCollected
	resolved.UpdatedAt = start.Add(2 * time.Second)
	h.scheduler.Observe(resolved)
	require.False(t, h.scheduler.Idle())

	h.clock.Set(start.Add(tombstoneTTL + time.Second))
	h.scheduler.Tick(context.Background())
	assert.True(t, h.scheduler.Idle())
}

type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingNotifier) Notify(context.Context, string, string, notifications.Options) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func (b *blockingNotifier) Vibrate(context.Context, string, []int) error { return nil }

func TestScheduler_TickSendsOutsideLock(t *testing.T) {
	clk := clock.NewFake(start)
	notifier := &blockingNotifier{entered: make(chan struct{}, 1), release: make(chan struct{})}
	venueID := uuid.New()
	s := NewScheduler(venueID, clk, notifier, newManualRepeater(), DefaultConfig(), logger.Discard())

	eta := start.Add(45 * time.Second)
	s.Observe(orders.Order{ID: uuid.New(), VenueID: venueID, OrderNumber: "D1", Status: orders.StatusInPrep, ETA: &eta})

	ticked := make(chan struct{})
	go func() {
		s.Tick(context.Background())
		close(ticked)
	}()
	<-notifier.entered

	observed := make(chan struct{})
	go func() {
		later := start.Add(10 * time.Minute)
		s.Observe(orders.Order{ID: uuid.New(), VenueID: venueID, OrderNumber: "D2", Status: orders.StatusPlaced, ETA: &later})
		close(observed)
	}()

	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("observe blocked behind a slow notifier")
	}
	assert.Equal(t, 2, s.Len())

	close(notifier.release)
	<-ticked
}

func TestManager_IgnoresStaleFeedEvent(t *testing.T) {
	clk := clock.NewFake(start)
	hub := changefeed.NewLocalHub()
	repo := orderstest.New(hub, clk)
	svc := orders.NewService(repo, clk, logger.Discard())
	repeater := newManualRepeater()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(repo, hub, clk, notificationstest.NewRecorder(), repeater, DefaultConfig(), logger.Discard())
	ticks := make(chan struct{})
	m.newTicker = func() (<-chan struct{}, func()) { return ticks, func() {} }
	go func() { _ = m.Run(ctx) }()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	eta := start.Add(30 * time.Second)
	o := &orders.Order{VenueID: uuid.New(), OrderNumber: "E4", Status: orders.StatusInPrep, ETA: &eta}
	require.NoError(t, repo.Create(ctx, o))
	stale := *o
	require.Eventually(t, func() bool { return m.Venues() == 1 }, time.Second, 5*time.Millisecond)

	clk.Advance(2 * time.Second)
	_, err := svc.UpdateStatus(ctx, o.ID, orders.StatusReady)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Venues() == 0 }, time.Second, 5*time.Millisecond)

	ev, err := changefeed.NewEvent(changefeed.EventUpdate, changefeed.TableOrders, stale.VenueID, stale.ID, nil, stale, start)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(ctx, ev))

	// events reach the manager in order, so once this one is applied the
	// stale update has been handled
	far := start.Add(time.Hour)
	sentinel := &orders.Order{VenueID: uuid.New(), OrderNumber: "F9", Status: orders.StatusPlaced, ETA: &far}
	require.NoError(t, repo.Create(ctx, sentinel))
	require.Eventually(t, func() bool { return m.Venues() == 1 }, time.Second, 5*time.Millisecond)

	clk.Advance(time.Minute)
	ticks <- struct{}{}
	ticks <- struct{}{}
	assert.Equal(t, 1, m.Venues())
	assert.Equal(t, 0, repeater.Running())
}
