package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"seatnext/pkg/logger"
)

const channelPrefix = "changes"

// ChannelFor returns the pub/sub channel for a table and venue
func ChannelFor(table Table, venueID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", channelPrefix, table, venueID)
}

// PatternFor returns the pattern matching every venue of a table
func PatternFor(table Table) string {
	return fmt.Sprintf("%s:%s:*", channelPrefix, table)
}

// RedisFeed transports events over Redis pub/sub
type RedisFeed struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisFeed creates a Redis-backed feed
func NewRedisFeed(client *redis.Client, log *logger.Logger) *RedisFeed {
	if log == nil {
		log = logger.GetDefault()
	}
	return &RedisFeed{client: client, log: log.WithComponent("changefeed")}
}

// Publish sends ev to its venue channel
func (f *RedisFeed) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := f.client.Publish(ctx, ChannelFor(ev.Table, ev.VenueID), string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe opens a stream for filter. Without a venue the whole table is
// pattern-subscribed.
func (f *RedisFeed) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	if filter.Table == "" {
		return nil, fmt.Errorf("change feed subscription requires a table")
	}

	var ps *redis.PubSub
	if filter.VenueID == uuid.Nil {
		ps = f.client.PSubscribe(ctx, PatternFor(filter.Table))
	} else {
		ps = f.client.Subscribe(ctx, ChannelFor(filter.Table, filter.VenueID))
	}

	// Wait for the subscription to be confirmed before reporting success
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to change feed: %w", err)
	}

	out := make(chan Event, defaultLocalBuffer)
	sub := newSubscription(out, ps.Close)

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					f.log.Warn("dropping malformed change event", "channel", msg.Channel, "error", err)
					continue
				}
				if !filter.Match(ev) {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					_ = sub.Close()
					return
				}
			}
		}
	}()

	return sub, nil
}
