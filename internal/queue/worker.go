package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/interfaces"
	"github.com/veoflow/veoflow/internal/models"
)

// TaskHandler runs one claimed render task to a terminal status
type TaskHandler func(ctx context.Context, task *models.RenderTask) error

// WorkerPool polls the task store for pending work and runs tasks
// concurrently. The store's lease-based claim keeps two workers off the
// same task; a crashed worker's lease expires and the task is redelivered.
type WorkerPool struct {
	config  common.QueueConfig
	storage interfaces.TaskStorage
	handler TaskHandler
	logger  arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a worker pool
func NewWorkerPool(config common.QueueConfig, storage interfaces.TaskStorage, handler TaskHandler, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		config:  config,
		storage: storage,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.config.Concurrency).
		Dur("poll_interval", wp.config.PollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	return nil
}

// Stop stops polling and waits for in-flight tasks to reach a terminal
// status. Task execution carries its own hard budget, so the wait is
// bounded.
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
	return nil
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts to spread claim transactions across the poll
	// interval
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			wp.processOne(workerID)
		}
	}
}

// processOne claims and runs a single task if one is pending
func (wp *WorkerPool) processOne(workerID int) {
	task, err := wp.storage.ClaimPending(wp.ctx, wp.config.VisibilityTimeout)
	if err != nil {
		wp.logger.Warn().
			Err(err).
			Int("worker_id", workerID).
			Msg("Failed to claim pending task")
		return
	}
	if task == nil {
		return
	}

	wp.logger.Info().
		Str("task_id", task.ID).
		Str("scene_id", task.SceneID).
		Int("worker_id", workerID).
		Msg("Processing render task")

	startTime := time.Now()
	if err := wp.handler(wp.ctx, task); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Dur("duration", time.Since(startTime)).
			Int("worker_id", workerID).
			Msg("Render task finished with failure")
		return
	}

	wp.logger.Info().
		Str("task_id", task.ID).
		Dur("duration", time.Since(startTime)).
		Int("worker_id", workerID).
		Msg("Render task finished")
}
