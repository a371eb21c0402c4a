package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"seatnext/pkg/logger"
)

type ServiceConfig struct {
	KafkaEnabled       bool
	KafkaBrokers       []string
	NotificationTopic  string
	ConsumerGroupID    string
	NumConsumerWorkers int

	PubNubEnabled bool
	PubNub        PubNubConfig

	// SendTimeout bounds each best-effort notify call
	SendTimeout time.Duration
}

// Service wires the notification pipeline:
//
//	Notifier -> Kafka topic -> DeliveryConsumer -> PubNub
//
// Without Kafka the notifier delivers directly; without PubNub delivery
// goes to the log.
type Service struct {
	config   *ServiceConfig
	log      *logger.Logger
	notifier Notifier
	producer *KafkaNotifier
	consumer *DeliveryConsumer

	isRunning bool
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewService(config *ServiceConfig, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	var deliverer Deliverer
	if config.PubNubEnabled {
		deliverer = NewPubNubDeliverer(config.PubNub)
	} else {
		deliverer = NewLogDeliverer(log)
	}

	svc := &Service{config: config, log: log.WithComponent("notifications")}
	svc.ctx, svc.cancel = context.WithCancel(context.Background())

	var inner Notifier
	if config.KafkaEnabled {
		producerConfig := DefaultKafkaProducerConfig()
		producerConfig.Brokers = config.KafkaBrokers
		producerConfig.NotificationTopic = config.NotificationTopic

		producer, err := NewKafkaNotifier(producerConfig, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create notification producer: %w", err)
		}

		consumerConfig := DefaultConsumerConfig()
		consumerConfig.Brokers = config.KafkaBrokers
		consumerConfig.Topics = []string{config.NotificationTopic}
		consumerConfig.GroupID = config.ConsumerGroupID

		consumer, err := NewDeliveryConsumer(consumerConfig, deliverer, log)
		if err != nil {
			_ = producer.Close()
			return nil, fmt.Errorf("failed to create notification consumer: %w", err)
		}

		svc.producer = producer
		svc.consumer = consumer
		inner = producer
	} else {
		inner = NewDirectNotifier(deliverer)
	}

	svc.notifier = NewBestEffort(inner, config.SendTimeout, log)
	return svc, nil
}

// Notifier returns the best-effort notifier handed to domain services
func (s *Service) Notifier() Notifier {
	return s.notifier
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("notification service is already running")
	}

	if s.consumer != nil {
		if err := s.consumer.Start(s.ctx, s.config.NumConsumerWorkers); err != nil {
			return fmt.Errorf("failed to start consumers: %w", err)
		}
	}

	s.isRunning = true
	s.log.Info("notification service started", "kafka", s.config.KafkaEnabled, "pubnub", s.config.PubNubEnabled)
	return nil
}

func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return fmt.Errorf("notification service is not running")
	}

	s.cancel()

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.log.Warn("error stopping consumer", "error", err)
		}
	}
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.log.Warn("error closing producer", "error", err)
		}
	}

	s.isRunning = false
	s.log.Info("notification service stopped")
	return nil
}

func (s *Service) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	isRunning := s.isRunning
	s.mu.RUnlock()

	if !isRunning {
		return fmt.Errorf("notification service is not running")
	}

	if s.producer != nil {
		if err := s.producer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("producer health check failed: %w", err)
		}
	}
	if s.consumer != nil {
		if err := s.consumer.HealthCheck(ctx); err != nil {
			return fmt.Errorf("consumer health check failed: %w", err)
		}
	}
	return nil
}
