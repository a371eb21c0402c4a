package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"seatnext/pkg/logger"
)

type ConsumerConfig struct {
	Brokers              []string
	GroupID              string
	Topics               []string
	SessionTimeoutMs     int
	HeartbeatMs          int
	RetryBackoffMs       int
	MaxProcessingTime    time.Duration
	AutoCommit           bool
	OffsetOldest         bool
	MaxRetries           int
	RetryBackoffDuration time.Duration
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:              []string{"localhost:9092"},
		GroupID:              "seatnext-push-workers",
		Topics:               []string{"push-notifications"},
		SessionTimeoutMs:     30000,
		HeartbeatMs:          3000,
		RetryBackoffMs:       100,
		MaxProcessingTime:    time.Minute,
		AutoCommit:           true,
		OffsetOldest:         false,
		MaxRetries:           3,
		RetryBackoffDuration: 500 * time.Millisecond,
	}
}

// DeliveryConsumer reads published notifications and hands them to a
// Deliverer
type DeliveryConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *ConsumerConfig
	deliverer     Deliverer
	log           *logger.Logger
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewDeliveryConsumer(config *ConsumerConfig, deliverer Deliverer, log *logger.Logger) (*DeliveryConsumer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatMs) * time.Millisecond
	saramaConfig.Consumer.Retry.Backoff = time.Duration(config.RetryBackoffMs) * time.Millisecond
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true

	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	if config.AutoCommit {
		saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
		saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return newDeliveryConsumer(consumerGroup, config, deliverer, log), nil
}

func newDeliveryConsumer(group sarama.ConsumerGroup, config *ConsumerConfig, deliverer Deliverer, log *logger.Logger) *DeliveryConsumer {
	if log == nil {
		log = logger.GetDefault()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DeliveryConsumer{
		consumerGroup: group,
		config:        config,
		deliverer:     deliverer,
		log:           log.WithComponent("notification-consumer"),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches numWorkers consume loops
func (dc *DeliveryConsumer) Start(ctx context.Context, numWorkers int) error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	dc.log.Info("starting notification delivery workers", "workers", numWorkers, "topics", dc.config.Topics)

	go dc.handleErrors()

	for i := 0; i < numWorkers; i++ {
		dc.wg.Add(1)
		go func(workerID int) {
			defer dc.wg.Done()
			dc.runWorker(ctx, workerID)
		}(i)
	}
	return nil
}

func (dc *DeliveryConsumer) runWorker(ctx context.Context, workerID int) {
	handler := &ConsumerGroupHandler{consumer: dc, workerID: workerID}

	for {
		select {
		case <-ctx.Done():
			return
		case <-dc.ctx.Done():
			return
		default:
			if err := dc.consumerGroup.Consume(ctx, dc.config.Topics, handler); err != nil {
				dc.log.Warn("error consuming notifications", "worker", workerID, "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (dc *DeliveryConsumer) handleErrors() {
	for err := range dc.consumerGroup.Errors() {
		dc.log.Warn("consumer group error", "error", err)
	}
}

func (dc *DeliveryConsumer) Stop() error {
	dc.cancel()

	if err := dc.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	dc.wg.Wait()
	return nil
}

func (dc *DeliveryConsumer) HealthCheck(ctx context.Context) error {
	select {
	case <-dc.ctx.Done():
		return fmt.Errorf("consumer context is cancelled")
	default:
		if dc.deliverer == nil {
			return fmt.Errorf("deliverer not configured")
		}
		return nil
	}
}

// process decodes one record and delivers it with retry. Expired and
// malformed records are dropped.
func (dc *DeliveryConsumer) process(ctx context.Context, value []byte) error {
	var notification PushNotification
	if err := json.Unmarshal(value, &notification); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}

	if notification.IsExpired() {
		dc.log.Debug("notification expired, skipping", "id", notification.ID.String())
		return nil
	}

	notification.Status = StatusSending

	if err := dc.executeWithRetry(ctx, &notification); err != nil {
		notification.MarkFailed(err)
		return err
	}

	notification.MarkSent()
	return nil
}

func (dc *DeliveryConsumer) executeWithRetry(ctx context.Context, notification *PushNotification) error {
	maxRetries := dc.config.MaxRetries
	backoff := dc.config.RetryBackoffDuration

	for attempt := 0; ; attempt++ {
		err := dc.deliverer.Deliver(ctx, notification)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return fmt.Errorf("delivery failed after %d attempts: %w", attempt+1, err)
		}

		notification.RetryCount++
		delay := backoff * time.Duration(1<<attempt)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type ConsumerGroupHandler struct {
	consumer *DeliveryConsumer
	workerID int
}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.log.Debug("consumer group session started", "worker", h.workerID)
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.consumer.log.Debug("consumer group session ended", "worker", h.workerID)
	return nil
}

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := h.consumer.process(session.Context(), message.Value); err != nil {
				h.consumer.log.Warn("failed to deliver notification",
					"worker", h.workerID,
					"partition", message.Partition,
					"offset", message.Offset,
					"error", err,
				)
			}
			// Push is best-effort; a failed record is not redelivered
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
