package notifications

import (
	"context"
	"time"

	"seatnext/pkg/logger"
)

// Options shape how a notice is presented
type Options struct {
	Channel            string
	Tag                string
	Priority           Priority
	RequireInteraction bool
	TTL                time.Duration
	Data               map[string]interface{}
}

// Notifier is the outbound notification contract used by the queue, the
// countdown engine and the kitchen alert scheduler
type Notifier interface {
	Notify(ctx context.Context, title, body string, opts Options) error
	Vibrate(ctx context.Context, channel string, pattern []int) error
}

// Deliverer pushes a built notification to its channel
type Deliverer interface {
	Deliver(ctx context.Context, notification *PushNotification) error
}

// DirectNotifier builds notifications and hands them straight to a
// deliverer, used when Kafka is disabled
type DirectNotifier struct {
	deliverer Deliverer
}

func NewDirectNotifier(deliverer Deliverer) *DirectNotifier {
	return &DirectNotifier{deliverer: deliverer}
}

func (d *DirectNotifier) Notify(ctx context.Context, title, body string, opts Options) error {
	n := NewNotificationBuilder(KindNotify, opts.Channel).
		WithContent(title, body).
		WithOptions(opts).
		Build()
	return d.deliverer.Deliver(ctx, n)
}

func (d *DirectNotifier) Vibrate(ctx context.Context, channel string, pattern []int) error {
	n := NewNotificationBuilder(KindVibrate, channel).WithPattern(pattern).Build()
	return d.deliverer.Deliver(ctx, n)
}

// LogDeliverer writes notifications to the log instead of a push transport
type LogDeliverer struct {
	log *logger.Logger
}

func NewLogDeliverer(log *logger.Logger) *LogDeliverer {
	if log == nil {
		log = logger.GetDefault()
	}
	return &LogDeliverer{log: log.WithComponent("notifications")}
}

func (l *LogDeliverer) Deliver(ctx context.Context, n *PushNotification) error {
	l.log.InfoContext(ctx, "notification delivered to log",
		"id", n.ID.String(),
		"kind", string(n.Kind),
		"channel", n.Channel,
		"title", n.Title,
	)
	n.MarkSent()
	return nil
}

// BestEffort swallows delivery failures. Notifications are fire-and-forget
// so a failing transport never aborts a state transition.
type BestEffort struct {
	next    Notifier
	timeout time.Duration
	log     *logger.Logger
}

func NewBestEffort(next Notifier, timeout time.Duration, log *logger.Logger) *BestEffort {
	if log == nil {
		log = logger.GetDefault()
	}
	return &BestEffort{next: next, timeout: timeout, log: log.WithComponent("notifications")}
}

func (b *BestEffort) Notify(ctx context.Context, title, body string, opts Options) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	if err := b.next.Notify(ctx, title, body, opts); err != nil {
		b.log.WarnContext(ctx, "notification dropped", "channel", opts.Channel, "title", title, "error", err)
	}
	return nil
}

func (b *BestEffort) Vibrate(ctx context.Context, channel string, pattern []int) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()

	if err := b.next.Vibrate(ctx, channel, pattern); err != nil {
		b.log.WarnContext(ctx, "vibration dropped", "channel", channel, "error", err)
	}
	return nil
}

func (b *BestEffort) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// Nop discards every notification
type Nop struct{}

func (Nop) Notify(context.Context, string, string, Options) error { return nil }
func (Nop) Vibrate(context.Context, string, []int) error { return nil }
