// Package feedback hands seated parties to the downstream feedback
// collection pipeline. Only the trigger lives here.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"seatnext/pkg/logger"
)

const DefaultQueueName = "feedback.requested"

// Request is the message published when a party is seated
type Request struct {
	EntryID   uuid.UUID  `json:"entry_id"`
	VenueID   uuid.UUID  `json:"venue_id"`
	PatronID  *uuid.UUID `json:"patron_id,omitempty"`
	PartySize int        `json:"party_size"`
	SeatedAt  time.Time  `json:"seated_at"`
}

// Trigger requests feedback collection for a seated party
type Trigger interface {
	RequestFeedback(ctx context.Context, req Request) error
}

// NoopTrigger is used when RabbitMQ is disabled
type NoopTrigger struct{}

func (NoopTrigger) RequestFeedback(context.Context, Request) error { return nil }

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}

// RabbitPublisher publishes persistent JSON messages to a durable queue on
// the default exchange
type RabbitPublisher struct {
	url   string
	queue string
	dial  dialFunc
	log   *logger.Logger
}

func NewRabbitPublisher(url, queue string, log *logger.Logger) *RabbitPublisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &RabbitPublisher{url: url, queue: queue, dial: dialAMQP, log: log.WithComponent("feedback")}
}

func (p *RabbitPublisher) RequestFeedback(ctx context.Context, req Request) error {
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	defer func() {
		_ = ch.Close()
		_ = conn.Close()
	}()

	// Idempotent; durable so requests survive a broker restart
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: queue declare: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal feedback request: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    req.EntryID.String(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	p.log.DebugContext(ctx, "feedback requested", "entry_id", req.EntryID.String(), "queue", p.queue)
	return nil
}
