package countdown

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/changefeed"
	"seatnext/internal/queue"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
	"seatnext/pkg/metrics"
)

// Expirer performs the conditional expiry write
type Expirer interface {
	Expire(ctx context.Context, id uuid.UUID) (queue.Result, error)
}

// Source lists the entries that should be counting down
type Source interface {
	ListCountingDown(ctx context.Context) ([]queue.QueueEntry, error)
}

// Config contains configuration for the countdown engine
type Config struct {
	Tick          time.Duration
	ExpiryTimeout time.Duration
}

// DefaultConfig returns default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Tick:          time.Second,
		ExpiryTimeout: 5 * time.Second,
	}
}

type expiryResult struct {
	id     uuid.UUID
	result queue.Result
	err    error
}

// Engine owns every countdown. All state lives in the Run goroutine; expiry
// writes run asynchronously and report back through a channel so a slow
// store never blocks the tick.
type Engine struct {
	expirer Expirer
	source  Source
	feed    changefeed.Subscriber
	clock   clock.Clock
	config  *Config
	log     *logger.Logger

	countdowns map[uuid.UUID]Countdown
	results    chan expiryResult
	sub        *changefeed.Subscription
	active     atomic.Int64

	newTicker func(time.Duration) (<-chan time.Time, func())
}

// NewEngine creates a countdown engine
func NewEngine(expirer Expirer, source Source, feed changefeed.Subscriber, clk clock.Clock, config *Config, log *logger.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Engine{
		expirer:    expirer,
		source:     source,
		feed:       feed,
		clock:      clk,
		config:     config,
		log:        log.WithComponent("countdown"),
		countdowns: make(map[uuid.UUID]Countdown),
		results:    make(chan expiryResult, 64),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Active returns the number of running countdowns
func (e *Engine) Active() int {
	return int(e.active.Load())
}

// Run drives the engine until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	ticks, stop := e.newTicker(e.config.Tick)
	defer stop()
	defer e.teardown()

	e.connect(ctx)
	e.log.Info("countdown engine started", "tick", e.config.Tick.String())

	for {
		var events <-chan changefeed.Event
		if e.sub != nil {
			events = e.sub.C
		}

		select {
		case <-ctx.Done():
			e.log.Info("countdown engine stopped")
			return ctx.Err()

		case <-ticks:
			if e.sub == nil {
				e.connect(ctx)
			}
			e.tick(ctx)

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.log.Warn("change feed closed, resubscribing on next tick")
				e.sub = nil
				continue
			}
			e.handleEvent(ev)

		case res := <-e.results:
			e.handleResult(res)
		}
	}
}

// connect subscribes to queue entry changes and then loads the current
// countdown set, so no change between the two is missed
func (e *Engine) connect(ctx context.Context) {
	sub, err := e.feed.Subscribe(ctx, changefeed.Filter{Table: changefeed.TableQueueEntries})
	if err != nil {
		e.log.WarnContext(ctx, "failed to subscribe to queue changes", "error", err)
		return
	}

	entries, err := e.source.ListCountingDown(ctx)
	if err != nil {
		e.log.WarnContext(ctx, "failed to load ready entries", "error", err)
		_ = sub.Close()
		return
	}

	e.sub = sub
	for _, entry := range entries {
		e.track(entry)
	}
	e.publishActive()
}

func (e *Engine) teardown() {
	if e.sub != nil {
		_ = e.sub.Close()
		e.sub = nil
	}
	for id := range e.countdowns {
		delete(e.countdowns, id)
	}
	e.publishActive()
}

func (e *Engine) tick(ctx context.Context) {
	now := e.clock.Now()
	for id, c := range e.countdowns {
		next, effect := Step(now, c)
		switch effect {
		case EffectStop:
			delete(e.countdowns, id)
		case EffectExpire:
			e.countdowns[id] = next
			e.expire(ctx, id)
		default:
			e.countdowns[id] = next
		}
	}
	e.publishActive()
}

func (e *Engine) expire(ctx context.Context, id uuid.UUID) {
	go func() {
		wctx, cancel := context.WithTimeout(ctx, e.config.ExpiryTimeout)
		defer cancel()

		res, err := e.expirer.Expire(wctx, id)
		select {
		case e.results <- expiryResult{id: id, result: res, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) handleResult(r expiryResult) {
	c, ok := e.countdowns[r.id]
	if !ok {
		return
	}

	if r.err != nil {
		// rearm so the next tick retries; the write is idempotent
		c.Fired = false
		e.countdowns[r.id] = c
		if !errors.Is(r.err, context.Canceled) {
			e.log.Warn("expiry write failed", "entry_id", r.id.String(), "error", r.err)
		}
		return
	}

	if r.result.Entry != nil {
		e.apply(*r.result.Entry)
	}
	// still counting in the store (a moved deadline, or not yet due by the
	// store's reading): allow the next elapsed tick to try again
	if c, ok := e.countdowns[r.id]; ok {
		c.Fired = false
		e.countdowns[r.id] = c
	}
	if r.result.Outcome == queue.OutcomeRaceLost {
		e.log.Info("expiry lost to a concurrent write", "entry_id", r.id.String())
	}
	e.publishActive()
}

func (e *Engine) handleEvent(ev changefeed.Event) {
	if ev.Type == changefeed.EventDelete {
		delete(e.countdowns, ev.RecordID)
		e.publishActive()
		return
	}

	entry, err := queue.EntryFromEvent(ev)
	if err != nil || entry == nil {
		e.log.Warn("undecodable queue change", "record_id", ev.RecordID.String(), "error", err)
		return
	}
	e.apply(*entry)
	e.publishActive()
}

// apply reconciles a stored entry into the countdown set. Older snapshots
// than the one already held are ignored.
func (e *Engine) apply(entry queue.QueueEntry) {
	c, ok := e.countdowns[entry.ID]
	if ok && entry.UpdatedAt.Before(c.UpdatedAt) {
		return
	}
	if !entry.IsCountingDown() {
		delete(e.countdowns, entry.ID)
		return
	}
	if ok {
		e.countdowns[entry.ID] = Rebase(c, entry)
		return
	}
	e.track(entry)
}

func (e *Engine) track(entry queue.QueueEntry) {
	c := FromEntry(entry)
	if !c.Active {
		return
	}
	c.Remaining = Compute(e.clock.Now(), c.Deadline)
	e.countdowns[entry.ID] = c
}

func (e *Engine) publishActive() {
	n := len(e.countdowns)
	e.active.Store(int64(n))
	metrics.SetCountdownsActive(n)
}
