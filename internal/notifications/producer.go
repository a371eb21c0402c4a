package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"seatnext/pkg/logger"
)

// KafkaProducerConfig contains configuration for the Kafka notification producer
type KafkaProducerConfig struct {
	Brokers           []string
	NotificationTopic string
	RetryMax          int
	TimeoutMs         int
	RequiredAcks      sarama.RequiredAcks
	CompressionType   sarama.CompressionCodec
	IdempotentWrites  bool
	MaxMessageBytes   int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:           []string{"localhost:9092"},
		NotificationTopic: "push-notifications",
		RetryMax:          3,
		TimeoutMs:         10000,
		RequiredAcks:      sarama.WaitForAll,
		CompressionType:   sarama.CompressionSnappy,
		IdempotentWrites:  true,
		MaxMessageBytes:   1000000,
	}
}

// KafkaNotifier publishes notifications to Kafka; the DeliveryConsumer
// picks them up and pushes them to devices
type KafkaNotifier struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
	log      *logger.Logger
}

// NewKafkaNotifier creates a notifier backed by a Kafka sync producer
func NewKafkaNotifier(config *KafkaProducerConfig, log *logger.Logger) (*KafkaNotifier, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites
	saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes

	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash on channel so one recipient sees notices in order
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewKafkaNotifierWithProducer(producer, config, log), nil
}

// NewKafkaNotifierWithProducer wraps an existing producer
func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, config *KafkaProducerConfig, log *logger.Logger) *KafkaNotifier {
	if log == nil {
		log = logger.GetDefault()
	}
	return &KafkaNotifier{
		producer: producer,
		config:   config,
		log:      log.WithComponent("notification-producer"),
	}
}

// Notify publishes a visible notice
func (kn *KafkaNotifier) Notify(ctx context.Context, title, body string, opts Options) error {
	n := NewNotificationBuilder(KindNotify, opts.Channel).
		WithContent(title, body).
		WithOptions(opts).
		Build()
	return kn.Publish(ctx, n)
}

// Vibrate publishes a haptic pattern in milliseconds
func (kn *KafkaNotifier) Vibrate(ctx context.Context, channel string, pattern []int) error {
	n := NewNotificationBuilder(KindVibrate, channel).
		WithPattern(pattern).
		Build()
	return kn.Publish(ctx, n)
}

// Publish sends a single notification to the notification topic
func (kn *KafkaNotifier) Publish(ctx context.Context, notification *PushNotification) error {
	if notification.Channel == "" {
		return fmt.Errorf("notification %s has no channel", notification.ID)
	}

	notification.Status = StatusQueued
	notification.UpdatedAt = time.Now()

	messageBytes, err := notification.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     kn.config.NotificationTopic,
		Key:       sarama.StringEncoder(notification.GetPartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   kn.createHeaders(notification),
		Timestamp: notification.CreatedAt,
	}

	partition, offset, err := kn.producer.SendMessage(message)
	if err != nil {
		notification.MarkFailed(err)
		return fmt.Errorf("failed to send notification to Kafka: %w", err)
	}

	kn.log.DebugContext(ctx, "notification published",
		"topic", kn.config.NotificationTopic,
		"partition", partition,
		"offset", offset,
		"kind", string(notification.Kind),
		"channel", notification.Channel,
	)
	return nil
}

func (kn *KafkaNotifier) createHeaders(notification *PushNotification) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte("notification_id"), Value: []byte(notification.ID.String())},
		{Key: []byte("kind"), Value: []byte(notification.Kind)},
		{Key: []byte("priority"), Value: []byte(notification.Priority)},
		{Key: []byte("channel"), Value: []byte(notification.Channel)},
		{Key: []byte("producer"), Value: []byte("seatnext-notifications")},
		{Key: []byte("created_at"), Value: []byte(notification.CreatedAt.Format(time.RFC3339))},
	}

	if notification.ExpiresAt != nil {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte("expires_at"),
			Value: []byte(notification.ExpiresAt.Format(time.RFC3339)),
		})
	}

	return headers
}

// Close closes the Kafka producer
func (kn *KafkaNotifier) Close() error {
	if kn.producer != nil {
		if err := kn.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}

// HealthCheck validates producer configuration
func (kn *KafkaNotifier) HealthCheck(ctx context.Context) error {
	if kn.producer == nil {
		return fmt.Errorf("health check failed - producer is nil")
	}
	if kn.config.NotificationTopic == "" {
		return fmt.Errorf("health check failed - notification topic not configured")
	}
	return nil
}
