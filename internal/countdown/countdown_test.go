package countdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatnext/internal/changefeed"
	"seatnext/internal/notifications/notificationstest"
	"seatnext/internal/queue"
	"seatnext/internal/queue/queuetest"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

var start = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func TestCompute(t *testing.T) {
	deadline := start.Add(2*time.Minute + 5*time.Second)

	r := Compute(start, deadline)
	assert.Equal(t, 2, r.Minutes)
	assert.Equal(t, 5, r.Seconds)
	assert.Equal(t, "02:05", r.String())
	assert.False(t, r.Elapsed())

	r = Compute(deadline.Add(-500*time.Millisecond), deadline)
	assert.Equal(t, "00:01", r.String())

	r = Compute(deadline.Add(time.Minute), deadline)
	assert.Equal(t, time.Duration(0), r.Total)
	assert.True(t, r.Elapsed())
	assert.Equal(t, "00:00", r.String())
}

func TestStep_ExpiresOnce(t *testing.T) {
	c := Countdown{EntryID: uuid.New(), Deadline: start, Active: true}

	c, effect := Step(start.Add(-time.Second), c)
	assert.Equal(t, EffectNone, effect)
	assert.Equal(t, 1, c.Remaining.Seconds)

	c, effect = Step(start, c)
	assert.Equal(t, EffectExpire, effect)
	assert.True(t, c.Fired)

	for i := 1; i <= 3; i++ {
		c, effect = Step(start.Add(time.Duration(i)*time.Second), c)
		assert.Equal(t, EffectNone, effect)
	}
}

func TestStep_StopsInactive(t *testing.T) {
	_, effect := Step(start, Countdown{Deadline: start})
	assert.Equal(t, EffectStop, effect)
}

func TestFromEntryAndRebase(t *testing.T) {
	deadline := start.Add(time.Minute)
	entry := queue.QueueEntry{ID: uuid.New(), Status: queue.StatusReady, ReadyDeadline: &deadline}

	c := FromEntry(entry)
	assert.True(t, c.Active)
	c.Fired = true

	// same deadline keeps the fired guard
	assert.True(t, Rebase(c, entry).Fired)

	extended := deadline.Add(queue.ExtensionDelta)
	entry.ReadyDeadline = &extended
	entry.PatronDelayed = true
	rebased := Rebase(c, entry)
	assert.False(t, rebased.Fired)
	assert.Equal(t, extended, rebased.Deadline)

	entry.Status = queue.StatusAwaitingConfirmation
	entry.AwaitingMerchantConfirmation = true
	entry.ReadyDeadline = nil
	assert.False(t, Rebase(c, entry).Active)
}

type countingExpirer struct {
	next  Expirer
	calls atomic.Int32
	fails atomic.Int32
}

func (c *countingExpirer) Expire(ctx context.Context, id uuid.UUID) (queue.Result, error) {
	c.calls.Add(1)
	if c.fails.Load() > 0 {
		c.fails.Add(-1)
		return queue.Result{}, errors.New("store unavailable")
	}
	return c.next.Expire(ctx, id)
}

type harness struct {
	clock    *clock.Fake
	repo     *queuetest.Repository
	service  queue.Service
	notifier *notificationstest.Recorder
	expirer  *countingExpirer
	engine   *Engine
	ticks    chan time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

func startHarness(t *testing.T, setup func(h *harness)) *harness {
	t.Helper()
	hub := changefeed.NewLocalHub()
	h := &harness{
		clock:    clock.NewFake(start),
		notifier: notificationstest.NewRecorder(),
		ticks:    make(chan time.Time),
		done:     make(chan struct{}),
	}
	h.repo = queuetest.New(hub, h.clock)
	h.service = queue.NewService(h.repo, h.notifier, nil, h.clock, nil, logger.Discard())
	h.expirer = &countingExpirer{next: h.service}
	h.engine = NewEngine(h.expirer, h.repo, hub, h.clock, nil, logger.Discard())
	h.engine.newTicker = func(time.Duration) (<-chan time.Time, func()) {
		return h.ticks, func() {}
	}

	if setup != nil {
		setup(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		_ = h.engine.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) readyEntry(t *testing.T) uuid.UUID {
	t.Helper()
	entry, err := h.service.Join(context.Background(), uuid.New(), nil, &queue.JoinQueueRequest{PartySize: 2})
	require.NoError(t, err)
	_, err = h.service.MarkReady(context.Background(), entry.ID, nil)
	require.NoError(t, err)
	return entry.ID
}

func (h *harness) status(id uuid.UUID) queue.Status {
	e, _ := h.repo.Entry(id)
	return e.Status
}

func TestEngine_ExpiresExactlyOnce(t *testing.T) {
	var id uuid.UUID
	h := startHarness(t, func(h *harness) { id = h.readyEntry(t) })
	require.Eventually(t, func() bool { return h.engine.Active() == 1 }, time.Second, 5*time.Millisecond)

	h.clock.Advance(queue.ReadyWindow + time.Second)
	h.ticks <- h.clock.Now()

	require.Eventually(t, func() bool { return h.status(id) == queue.StatusNoShow }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.engine.Active() == 0 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		h.ticks <- h.clock.Advance(time.Second)
	}
	assert.Equal(t, int32(1), h.expirer.calls.Load())

	var expiryNotices int
	for _, n := range h.notifier.Notices() {
		if n.Body == queue.ExpiryReason {
			expiryNotices++
		}
	}
	assert.Equal(t, 1, expiryNotices)
}

func TestEngine_StopsOnArrival(t *testing.T) {
	var id uuid.UUID
	h := startHarness(t, func(h *harness) { id = h.readyEntry(t) })
	require.Eventually(t, func() bool { return h.engine.Active() == 1 }, time.Second, 5*time.Millisecond)

	h.clock.Advance(queue.ReadyWindow - time.Second)
	_, err := h.service.ConfirmArrival(context.Background(), id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.engine.Active() == 0 }, time.Second, 5*time.Millisecond)

	h.clock.Advance(2 * time.Second)
	h.ticks <- h.clock.Now()
	h.ticks <- h.clock.Advance(time.Second)

	assert.Equal(t, int32(0), h.expirer.calls.Load())
	assert.Equal(t, queue.StatusAwaitingConfirmation, h.status(id))
}

func TestEngine_RetriesFailedExpiry(t *testing.T) {
	var id uuid.UUID
	h := startHarness(t, func(h *harness) {
		id = h.readyEntry(t)
		h.expirer.fails.Store(1)
	})
	require.Eventually(t, func() bool { return h.engine.Active() == 1 }, time.Second, 5*time.Millisecond)

	h.clock.Advance(queue.ReadyWindow)
	require.Eventually(t, func() bool {
		h.ticks <- h.clock.Advance(time.Second)
		return h.status(id) == queue.StatusNoShow
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(2), h.expirer.calls.Load())
}

func TestEngine_FollowsExtension(t *testing.T) {
	var id uuid.UUID
	h := startHarness(t, func(h *harness) { id = h.readyEntry(t) })
	require.Eventually(t, func() bool { return h.engine.Active() == 1 }, time.Second, 5*time.Millisecond)

	h.clock.Advance(8 * time.Minute)
	extended, err := h.service.GrantExtension(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, start.Add(15*time.Minute), *extended.ReadyDeadline)

	// past the original deadline, inside the extended one; a tick that
	// still holds the old deadline is turned away by the store
	h.clock.Set(start.Add(12 * time.Minute))
	h.ticks <- h.clock.Now()
	h.ticks <- h.clock.Advance(time.Second)
	assert.Equal(t, queue.StatusReady, h.status(id))

	h.clock.Set(start.Add(15 * time.Minute))
	h.ticks <- h.clock.Now()
	require.Eventually(t, func() bool { return h.status(id) == queue.StatusNoShow }, time.Second, 5*time.Millisecond)
}

func TestEngine_TracksEntriesReadiedAfterStart(t *testing.T) {
	h := startHarness(t, nil)
	require.Eventually(t, func() bool { return h.engine.Active() == 0 }, time.Second, 5*time.Millisecond)

	id := h.readyEntry(t)
	require.Eventually(t, func() bool { return h.engine.Active() == 1 }, time.Second, 5*time.Millisecond)

	_, err := h.service.Cancel(context.Background(), id, "", queue.ActorPatron)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.engine.Active() == 0 }, time.Second, 5*time.Millisecond)
}
