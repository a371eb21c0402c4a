// Package app assembles the queue core from configuration: the store, the
// change feed, notifications and every background worker.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"seatnext/internal/allocation"
	"seatnext/internal/changefeed"
	"seatnext/internal/countdown"
	"seatnext/internal/feedback"
	"seatnext/internal/kitchenalerts"
	"seatnext/internal/notifications"
	"seatnext/internal/orders"
	"seatnext/internal/queue"
	"seatnext/internal/shared/config"
	"seatnext/internal/shared/database"
	"seatnext/internal/tracker"
	"seatnext/pkg/cache"
	"seatnext/pkg/clock"
	"seatnext/pkg/logger"
)

// App holds every wired component
type App struct {
	Config *config.Config
	DB     *database.DB
	Clock  clock.Clock
	Feed   changefeed.Feed
	Cache  cache.Service

	Notifications *notifications.Service
	Notifier      notifications.Notifier

	QueueRepo   queue.Repository
	Queue       queue.Service
	OrdersRepo  orders.Repository
	Orders      orders.Service
	Tables      allocation.Repository
	Coordinator *allocation.Coordinator
	Tracker     *tracker.Tracker
	Engine      *countdown.Engine
	Kitchen     *kitchenalerts.Manager
	Jobs        *queue.JobProcessor

	log *logger.Logger
	wg  sync.WaitGroup
}

// Build wires the components. Redis-backed pieces fall back to in-process
// ones when Redis is unavailable; the allocation coordinator needs Redis
// and stays nil without it.
func Build(cfg *config.Config, db *database.DB, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	a := &App{
		Config: cfg,
		DB:     db,
		Clock:  clock.Real{},
		log:    log.WithComponent("app"),
	}

	if db.Redis != nil && cfg.Redis.FeedEnabled {
		a.Feed = changefeed.NewRedisFeed(db.Redis, log)
	} else {
		a.Feed = changefeed.NewLocalHub()
	}
	if db.Redis != nil {
		a.Cache = cache.NewService(db.Redis, log)
	}

	a.buildNotifications(log)

	var trigger feedback.Trigger = feedback.NoopTrigger{}
	if cfg.RabbitMQ.Enabled {
		trigger = feedback.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.FeedbackQueue, log)
	}

	a.QueueRepo = queue.NewRepository(db.PostgreSQL, a.Feed, a.Clock, log)
	a.Queue = queue.NewService(a.QueueRepo, a.Notifier, trigger, a.Clock, &queue.ServiceConfig{
		ReadyWindow:    cfg.Queue.ReadyWindow,
		ExtensionDelta: cfg.Queue.ExtensionDelta,
		SweepBatchSize: cfg.Queue.SweepBatch,
	}, log)

	a.OrdersRepo = orders.NewRepository(db.PostgreSQL, a.Feed, a.Clock, log)
	a.Orders = orders.NewService(a.OrdersRepo, a.Clock, log)

	a.Tables = allocation.NewRepository(db.PostgreSQL)
	if a.Cache != nil {
		negotiator := allocation.NewTableNegotiator(a.Tables, &allocation.NegotiatorConfig{
			SlotLength:    cfg.Allocation.SlotLength,
			SearchHorizon: cfg.Allocation.SearchHorizon,
			SearchStep:    cfg.Allocation.SearchStep,
		})
		a.Coordinator = allocation.NewCoordinator(negotiator, allocation.NewCacheStore(a.Cache), a.QueueRepo, a.Clock, cfg.Allocation.ProposalTTL, log)
	} else {
		a.log.Warn("allocation proposals disabled without Redis")
	}

	a.Tracker = tracker.New(a.Queue, a.Cache, a.Feed, a.Clock, log)

	a.Engine = countdown.NewEngine(a.Queue, a.QueueRepo, a.Feed, a.Clock, &countdown.Config{
		Tick:          cfg.Queue.CountdownTick,
		ExpiryTimeout: 5 * time.Second,
	}, log)

	a.Kitchen = kitchenalerts.NewManager(a.OrdersRepo, a.Feed, a.Clock, a.Notifier, kitchenalerts.TickerRepeater{}, &kitchenalerts.Config{
		Tick:         cfg.Kitchen.Tick,
		LateInterval: cfg.Kitchen.LateAlertInterval,
		Thresholds: kitchenalerts.Thresholds{
			OneMin:    cfg.Kitchen.OneMinThreshold,
			ThirtySec: cfg.Kitchen.ThirtySecThreshold,
		},
	}, log)

	a.Jobs = queue.NewJobProcessor(a.Queue, &queue.JobConfig{ExpiryCheckInterval: cfg.Queue.SweepInterval}, log)

	return a, nil
}

func (a *App) buildNotifications(log *logger.Logger) {
	cfg := a.Config
	svc, err := notifications.NewService(&notifications.ServiceConfig{
		KafkaEnabled:       cfg.Kafka.Enabled,
		KafkaBrokers:       cfg.Kafka.Brokers,
		NotificationTopic:  cfg.Kafka.NotificationTopic,
		ConsumerGroupID:    cfg.Kafka.ConsumerGroupID,
		NumConsumerWorkers: cfg.Kafka.Workers,
		PubNubEnabled:      cfg.PubNub.Enabled,
		PubNub: notifications.PubNubConfig{
			PublishKey:   cfg.PubNub.PublishKey,
			SubscribeKey: cfg.PubNub.SubscribeKey,
			SecretKey:    cfg.PubNub.SecretKey,
			UserID:       cfg.PubNub.UserID,
		},
		SendTimeout: cfg.Kafka.SendTimeout,
	}, log)
	if err != nil {
		a.log.Warn("notification pipeline unavailable, logging notifications instead", "error", err)
		a.Notifier = notifications.NewBestEffort(notifications.NewDirectNotifier(notifications.NewLogDeliverer(log)), cfg.Kafka.SendTimeout, log)
		return
	}
	a.Notifications = svc
	a.Notifier = svc.Notifier()
}

// Start launches the background workers; they stop when ctx ends
func (a *App) Start(ctx context.Context) {
	if a.Notifications != nil {
		if err := a.Notifications.Start(ctx); err != nil {
			a.log.Warn("failed to start notification service", "error", err)
		}
	}

	a.Jobs.Start(ctx)

	a.run(ctx, "countdown engine", a.Engine.Run)
	a.run(ctx, "kitchen alerts", a.Kitchen.Run)
	a.run(ctx, "position cache", a.Tracker.Run)
}

func (a *App) run(ctx context.Context, name string, fn func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("worker stopped", "worker", name, "error", err)
		}
	}()
}

// Stop waits for the workers started by Start after their context ended
func (a *App) Stop() {
	a.Jobs.Stop()
	a.wg.Wait()

	if a.Notifications != nil {
		if err := a.Notifications.Stop(); err != nil {
			a.log.Warn("error stopping notification service", "error", err)
		}
	}
}

// HealthCheck reports the store and the notification pipeline
func (a *App) HealthCheck(ctx context.Context) error {
	if err := a.DB.HealthCheck(ctx); err != nil {
		return err
	}
	if a.Notifications != nil {
		return a.Notifications.HealthCheck(ctx)
	}
	return nil
}
