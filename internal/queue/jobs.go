package queue

import (
	"context"
	"sync"
	"time"

	"seatnext/pkg/logger"
)

// JobProcessor runs the periodic expiry sweep. The countdown engine expires
// entries on time; the sweep catches anything it missed (a restart, a lost
// change event, a failed write).
type JobProcessor struct {
	service Service
	config  *JobConfig
	log     *logger.Logger
	done    chan struct{}
	once    sync.Once
}

// JobConfig contains configuration for background jobs
type JobConfig struct {
	ExpiryCheckInterval time.Duration
}

// DefaultJobConfig returns default job configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		ExpiryCheckInterval: time.Minute,
	}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(service Service, config *JobConfig, log *logger.Logger) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &JobProcessor{
		service: service,
		config:  config,
		log:     log.WithComponent("queue-jobs"),
		done:    make(chan struct{}),
	}
}

// Start starts the sweep loop
func (jp *JobProcessor) Start(ctx context.Context) {
	go jp.startExpiryProcessor(ctx)
	jp.log.Info("queue expiry sweep started", "interval", jp.config.ExpiryCheckInterval.String())
}

// Stop stops the sweep loop
func (jp *JobProcessor) Stop() {
	jp.once.Do(func() { close(jp.done) })
}

func (jp *JobProcessor) startExpiryProcessor(ctx context.Context) {
	ticker := time.NewTicker(jp.config.ExpiryCheckInterval)
	defer ticker.Stop()

	// Catch up on anything that expired while the process was down
	jp.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			jp.RunOnce(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single sweep
func (jp *JobProcessor) RunOnce(ctx context.Context) int {
	processed, err := jp.service.ProcessExpiredReady(ctx)
	if err != nil {
		jp.log.WarnContext(ctx, "expiry sweep failed", "error", err)
		return 0
	}

	if processed > 0 {
		jp.log.InfoContext(ctx, "expired ready entries", "count", processed)
	}
	return processed
}

// GetJobStatus returns the status of background jobs
func (jp *JobProcessor) GetJobStatus() map[string]interface{} {
	return map[string]interface{}{
		"expiry_check_interval": jp.config.ExpiryCheckInterval.String(),
		"status":                "running",
	}
}
