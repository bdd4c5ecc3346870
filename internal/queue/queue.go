// internal/queue/queue.go
package queue

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	apperrors "quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
	"quote-service/internal/common/metrics"
	"quote-service/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue: maximum depth reached")
	ErrQueueClosed = errors.New("queue: stopped")
)

const DefaultMaxDepth = 100

// HandlerFunc processes one job. A returned error is logged and the job dropped.
type HandlerFunc func(ctx context.Context, job *models.Job) error

// Recorder receives per-job telemetry. *observability.Observability satisfies it.
type Recorder interface {
	RecordJobProcessed(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

type Options struct {
	// MaxDepth bounds the number of waiting jobs. Zero means DefaultMaxDepth.
	MaxDepth int
	Recorder Recorder
}

// Queue is an in-process FIFO with at most one worker goroutine. The worker
// starts on the first Enqueue into an idle queue and exits once the queue is empty.
type Queue struct {
	handler  HandlerFunc
	maxDepth int
	logger   logger.Logger
	errors   *apperrors.ErrorHandler
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    []*models.Job
	running bool
	closed  bool
	idle    chan struct{}
}

func New(handler HandlerFunc, opts Options, log logger.Logger) *Queue {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		handler:  handler,
		maxDepth: opts.MaxDepth,
		logger:   log,
		errors:   apperrors.NewErrorHandler(log),
		recorder: opts.Recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue appends job and starts the worker if none is running. It never
// blocks on job processing.
func (q *Queue) Enqueue(job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.jobs) >= q.maxDepth {
		return ErrQueueFull
	}

	q.jobs = append(q.jobs, job)
	metrics.QueueDepth.Set(float64(len(q.jobs)))

	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.work(q.idle)
	}
	return nil
}

// Len returns the number of jobs waiting, excluding one being processed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Drain waits until every queued job has been processed and the worker has exited.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.running && len(q.jobs) == 0 {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop refuses new jobs and drains the rest. If ctx ends first, the running
// job's context is cancelled and the remaining jobs are abandoned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	if err := q.Drain(ctx); err != nil {
		q.cancel()
		q.mu.Lock()
		dropped := len(q.jobs)
		q.jobs = nil
		metrics.QueueDepth.Set(0)
		q.mu.Unlock()
		q.logger.Warn("Queue stopped before draining", map[string]interface{}{
			"dropped": dropped,
			"error":   err.Error(),
		})
		return err
	}
	q.cancel()
	return nil
}

func (q *Queue) work(idle chan struct{}) {
	defer close(idle)
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		q.mu.Unlock()

		q.process(job)
	}
}

func (q *Queue) process(job *models.Job) {
	start := time.Now()
	status := "success"

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			q.errors.HandlePanic(job.ID, r, debug.Stack())
		}
		elapsed := time.Since(start)
		metrics.JobsProcessed.WithLabelValues(status).Inc()
		metrics.JobDuration.WithLabelValues(status).Observe(elapsed.Seconds())
		q.recorder.RecordJobProcessed(q.ctx, status)
		q.recorder.RecordJobDuration(q.ctx, elapsed, status)
	}()

	if err := q.handler(q.ctx, job); err != nil {
		status = "failed"
		q.errors.HandleJobError(job.ID, err)
		return
	}

	q.logger.Debug("Job processed", map[string]interface{}{
		"jobId":      job.ID,
		"durationMs": time.Since(start).Milliseconds(),
	})
}

type noopRecorder struct{}

func (noopRecorder) RecordJobProcessed(context.Context, string)                {}
func (noopRecorder) RecordJobDuration(context.Context, time.Duration, string) {}
