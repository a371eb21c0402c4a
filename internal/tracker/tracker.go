package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"seatnext/internal/changefeed"
	"seatnext/internal/queue"
	"seatnext/pkg/cache"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

const waitingTTL = 30 * time.Second

// WaitingKey is the cache key of a venue's waiting list
func WaitingKey(venueID uuid.UUID) string {
	return fmt.Sprintf("seatnext:queue:waiting:%s", venueID)
}

// Source reads authoritative entries
type Source interface {
	Get(ctx context.Context, id uuid.UUID) (*queue.QueueEntry, error)
	ListWaiting(ctx context.Context, venueID uuid.UUID) ([]queue.QueueEntry, error)
}

// Tracker serves position views. The waiting list cache is optional.
type Tracker struct {
	source Source
	cache  cache.Service
	feed   changefeed.Subscriber
	clock  clock.Clock
	log    *logger.Logger
}

// New creates a tracker; c may be nil when Redis is disabled
func New(source Source, c cache.Service, feed changefeed.Subscriber, clk clock.Clock, log *logger.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Tracker{
		source: source,
		cache:  c,
		feed:   feed,
		clock:  clk,
		log:    log.WithComponent("tracker"),
	}
}

// View returns the current view of an entry, reading the waiting list
// through the cache
func (t *Tracker) View(ctx context.Context, entryID uuid.UUID) (*View, error) {
	entry, err := t.source.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	waiting, err := t.cachedWaiting(ctx, entry.VenueID)
	if err != nil {
		return nil, err
	}

	v := Derive(*entry, waiting, t.clock.Now())
	return &v, nil
}

// Watch streams a fresh view of the entry after every change at its venue.
// The channel closes once the entry is resolved or deleted, or ctx ends.
func (t *Tracker) Watch(ctx context.Context, entryID uuid.UUID) (<-chan View, error) {
	entry, err := t.source.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	sub, err := t.feed.Subscribe(ctx, changefeed.Filter{
		Table:   changefeed.TableQueueEntries,
		VenueID: entry.VenueID,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to venue changes: %w", err)
	}

	initial, err := t.derive(ctx, entryID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan View, 1)
	out <- *initial
	if initial.Done() {
		_ = sub.Close()
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if ev.Type == changefeed.EventDelete && ev.RecordID == entryID {
					return
				}

				v, err := t.derive(ctx, entryID)
				if err != nil {
					if ctx.Err() == nil {
						t.log.WarnContext(ctx, "failed to refresh position", "entry_id", entryID.String(), "error", err)
					}
					continue
				}

				select {
				case out <- *v:
				case <-ctx.Done():
					return
				}
				if v.Done() {
					return
				}
			}
		}
	}()

	return out, nil
}

// Run drops cached waiting lists whenever a venue's queue changes
func (t *Tracker) Run(ctx context.Context) error {
	if t.cache == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	sub, err := t.feed.Subscribe(ctx, changefeed.Filter{Table: changefeed.TableQueueEntries})
	if err != nil {
		return fmt.Errorf("subscribe to queue changes: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return ctx.Err()
			}
			t.Invalidate(ctx, ev.VenueID)
		}
	}
}

// Invalidate drops the cached waiting list of a venue
func (t *Tracker) Invalidate(ctx context.Context, venueID uuid.UUID) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Delete(ctx, WaitingKey(venueID)); err != nil {
		t.log.WarnContext(ctx, "failed to drop waiting list cache", "venue_id", venueID.String(), "error", err)
	}
}

// derive reads both the entry and the waiting list from the store and
// refreshes the cache with what it read
func (t *Tracker) derive(ctx context.Context, entryID uuid.UUID) (*View, error) {
	entry, err := t.source.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	waiting, err := t.source.ListWaiting(ctx, entry.VenueID)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		if err := t.cache.Set(ctx, WaitingKey(entry.VenueID), waiting, waitingTTL); err != nil {
			t.log.WarnContext(ctx, "failed to cache waiting list", "venue_id", entry.VenueID.String(), "error", err)
		}
	}

	v := Derive(*entry, waiting, t.clock.Now())
	return &v, nil
}

func (t *Tracker) cachedWaiting(ctx context.Context, venueID uuid.UUID) ([]queue.QueueEntry, error) {
	if t.cache == nil {
		return t.source.ListWaiting(ctx, venueID)
	}

	var waiting []queue.QueueEntry
	err := t.cache.GetOrSet(ctx, WaitingKey(venueID), waitingTTL, func() (interface{}, error) {
		return t.source.ListWaiting(ctx, venueID)
	}, &waiting)
	if err != nil {
		return nil, err
	}
	return waiting, nil
}
