package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatnext/pkg/logger"
)

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []*PushNotification
	failures  int
}

func (r *recordingDeliverer) Deliver(_ context.Context, n *PushNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("transport unavailable")
	}
	r.delivered = append(r.delivered, n)
	return nil
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, string, string, Options) error {
	f.calls++
	return errors.New("boom")
}

func (f *failingNotifier) Vibrate(context.Context, string, []int) error {
	f.calls++
	return errors.New("boom")
}

func TestKafkaNotifierPublishesNotice(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var n PushNotification
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if n.Kind != KindNotify || n.Title != "Your table is ready" || n.Channel != "patron-1" {
			return errors.New("unexpected notification payload")
		}
		if n.Status != StatusQueued {
			return errors.New("notification not marked queued")
		}
		return nil
	})

	kn := NewKafkaNotifierWithProducer(producer, DefaultKafkaProducerConfig(), logger.Discard())
	err := kn.Notify(context.Background(), "Your table is ready", "Please head to the host stand", Options{
		Channel:  "patron-1",
		Priority: PriorityHigh,
	})
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestKafkaNotifierPublishesVibration(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var n PushNotification
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if n.Kind != KindVibrate || len(n.Pattern) != 3 {
			return errors.New("unexpected vibration payload")
		}
		return nil
	})

	kn := NewKafkaNotifierWithProducer(producer, DefaultKafkaProducerConfig(), logger.Discard())
	require.NoError(t, kn.Vibrate(context.Background(), "kitchen-1", []int{200, 100, 200}))
	require.NoError(t, producer.Close())
}

func TestKafkaNotifierSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	kn := NewKafkaNotifierWithProducer(producer, DefaultKafkaProducerConfig(), logger.Discard())
	n := NewNotificationBuilder(KindNotify, "venue-1").WithContent("Arrived", "Party of 4").Build()

	err := kn.Publish(context.Background(), n)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, n.Status)
	assert.NotNil(t, n.LastError)
	require.NoError(t, producer.Close())
}

func TestKafkaNotifierRejectsMissingChannel(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	kn := NewKafkaNotifierWithProducer(producer, DefaultKafkaProducerConfig(), logger.Discard())

	err := kn.Notify(context.Background(), "t", "b", Options{})
	assert.Error(t, err)
	require.NoError(t, producer.Close())
}

func TestDeliveryConsumerProcessRetries(t *testing.T) {
	deliverer := &recordingDeliverer{failures: 2}
	cfg := DefaultConsumerConfig()
	cfg.RetryBackoffDuration = time.Millisecond
	dc := &DeliveryConsumer{config: cfg, deliverer: deliverer, log: logger.Discard()}

	n := NewNotificationBuilder(KindNotify, "patron-2").WithContent("Ready", "Come in").Build()
	raw, err := n.ToJSON()
	require.NoError(t, err)

	require.NoError(t, dc.process(context.Background(), raw))
	require.Len(t, deliverer.delivered, 1)
	assert.Equal(t, 2, deliverer.delivered[0].RetryCount)
}

func TestDeliveryConsumerGivesUp(t *testing.T) {
	deliverer := &recordingDeliverer{failures: 10}
	cfg := DefaultConsumerConfig()
	cfg.MaxRetries = 1
	cfg.RetryBackoffDuration = time.Millisecond
	dc := &DeliveryConsumer{config: cfg, deliverer: deliverer, log: logger.Discard()}

	raw, err := NewNotificationBuilder(KindNotify, "patron-3").Build().ToJSON()
	require.NoError(t, err)

	assert.Error(t, dc.process(context.Background(), raw))
	assert.Empty(t, deliverer.delivered)
}

func TestDeliveryConsumerSkipsExpired(t *testing.T) {
	deliverer := &recordingDeliverer{}
	dc := &DeliveryConsumer{config: DefaultConsumerConfig(), deliverer: deliverer, log: logger.Discard()}

	n := NewNotificationBuilder(KindNotify, "patron-4").Build()
	past := time.Now().Add(-time.Minute)
	n.ExpiresAt = &past
	raw, err := n.ToJSON()
	require.NoError(t, err)

	require.NoError(t, dc.process(context.Background(), raw))
	assert.Empty(t, deliverer.delivered)
}

func TestDeliveryConsumerRejectsMalformed(t *testing.T) {
	dc := &DeliveryConsumer{config: DefaultConsumerConfig(), deliverer: &recordingDeliverer{}, log: logger.Discard()}
	assert.Error(t, dc.process(context.Background(), []byte("{not json")))
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	inner := &failingNotifier{}
	be := NewBestEffort(inner, time.Second, logger.Discard())

	assert.NoError(t, be.Notify(context.Background(), "t", "b", Options{Channel: "c"}))
	assert.NoError(t, be.Vibrate(context.Background(), "c", []int{100}))
	assert.Equal(t, 2, inner.calls)
}

func TestDirectNotifierBuildsPayload(t *testing.T) {
	deliverer := &recordingDeliverer{}
	dn := NewDirectNotifier(deliverer)

	require.NoError(t, dn.Notify(context.Background(), "Order 12 is late", "Due 30s ago", Options{
		Channel:            KitchenChannel(uuid.Nil),
		Tag:                "order-12",
		Priority:           PriorityCritical,
		RequireInteraction: true,
	}))

	require.Len(t, deliverer.delivered, 1)
	payload := deliverer.delivered[0].Payload()
	assert.Equal(t, "Order 12 is late", payload["title"])
	assert.Equal(t, "order-12", payload["tag"])
	assert.Equal(t, true, payload["require_interaction"])
	assert.Equal(t, string(PriorityCritical), payload["priority"])
}

func TestRetryBookkeeping(t *testing.T) {
	n := NewNotificationBuilder(KindNotify, "c").WithMaxRetries(1).Build()
	n.MarkFailed(errors.New("x"))
	assert.True(t, n.ShouldRetry())

	n.IncrementRetry()
	assert.Equal(t, StatusExpired, n.Status)
}

func TestServiceWithoutKafka(t *testing.T) {
	svc, err := NewService(&ServiceConfig{SendTimeout: time.Second}, logger.Discard())
	require.NoError(t, err)

	assert.Error(t, svc.HealthCheck(context.Background()))
	require.NoError(t, svc.Start(context.Background()))
	assert.Error(t, svc.Start(context.Background()))
	assert.NoError(t, svc.HealthCheck(context.Background()))

	assert.NoError(t, svc.Notifier().Notify(context.Background(), "t", "b", Options{Channel: "c"}))
	require.NoError(t, svc.Stop())
}
