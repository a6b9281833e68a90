package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/doc-intake-relay/internal/apperrors"
	"gitlab.com/timkado/api/doc-intake-relay/internal/config"
	"gitlab.com/timkado/api/doc-intake-relay/internal/model"
	"gitlab.com/timkado/api/doc-intake-relay/internal/observer"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/logger"
	"gitlab.com/timkado/api/doc-intake-relay/pkg/utils"
)

const (
	defaultDispatchQueueSize = 1000
	stopTimeout              = 30 * time.Second
)

// JobRunner runs one reconcile job. Implemented by Reconciler.
type JobRunner interface {
	Reconcile(ctx context.Context, job model.ReconcileJob) (*model.Intake, error)
}

// IReconcileWorker defines the interface for the reconcile worker pool.
type IReconcileWorker interface {
	JobSubmitter
	Dispatcher
	Stop()
}

// ReconcileWorker runs reconcile jobs on an ants pool. Jobs use a background
// context with no overall deadline; only the individual HTTP calls time out.
//
// Dispatch never waits for a worker: jobs go into a bounded buffer that a
// single goroutine feeds into the pool. SubmitJob hands jobs to the pool
// directly and blocks while it is saturated.
type ReconcileWorker struct {
	pool       *ants.PoolWithFunc
	runner     JobRunner
	cfg        config.WorkerPoolConfig
	baseLogger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan model.ReconcileJob
	drained chan struct{}
}

var _ IReconcileWorker = (*ReconcileWorker)(nil)

// NewReconcileWorker creates and initializes the reconcile worker pool.
func NewReconcileWorker(cfg config.WorkerPoolConfig, runner JobRunner, baseLogger *zap.Logger) (*ReconcileWorker, error) {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	worker := &ReconcileWorker{
		runner:     runner,
		cfg:        cfg,
		baseLogger: baseLogger.Named("reconcile_worker"),
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	pool, err := ants.NewPoolWithFunc(poolSize, func(i interface{}) {
		job, ok := i.(model.ReconcileJob)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processJob(job)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(p interface{}) {
			worker.baseLogger.Error("Panic recovered in reconcile worker", zap.Any("panic_error", p), zap.Stack("stack"))
			observer.IncReconcileTasksProcessed("panic")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile worker pool: %w", err)
	}
	worker.pool = pool

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultDispatchQueueSize
	}
	worker.queue = make(chan model.ReconcileJob, queueSize)
	worker.drained = make(chan struct{})
	go worker.drain()

	worker.baseLogger.Info("Reconcile worker pool initialized",
		zap.Int("pool_size", poolSize),
		zap.Int("queue_size", queueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// Dispatch buffers the job for the pool and returns at once. Used when no
// external queue is configured. A full buffer yields ErrQueue.
func (w *ReconcileWorker) Dispatch(_ context.Context, job model.ReconcileJob) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return fmt.Errorf("%w: reconcile worker is stopped", apperrors.ErrQueue)
	}

	select {
	case w.queue <- job:
		observer.SetReconcileQueueLength(len(w.queue) + w.pool.Waiting())
		return nil
	default:
		w.baseLogger.Warn("Reconcile dispatch queue is full",
			zap.String("intake_id", job.IntakeID),
			zap.Int("capacity", cap(w.queue)),
		)
		observer.IncReconcileTasksProcessed("queue_full")
		return fmt.Errorf("%w: reconcile queue is full", apperrors.ErrQueue)
	}
}

// drain feeds buffered jobs into the pool until the buffer is closed.
func (w *ReconcileWorker) drain() {
	defer close(w.drained)
	ctx := logger.WithLogger(context.Background(), w.baseLogger)
	for job := range w.queue {
		w.submitBuffered(ctx, job)
	}
}

func (w *ReconcileWorker) submitBuffered(ctx context.Context, job model.ReconcileJob) {
	defer utils.RecoverWithLog(ctx, "reconcile dispatch")
	if err := w.SubmitJob(job); err != nil {
		w.baseLogger.Error("Dropping dispatched reconcile job", zap.String("intake_id", job.IntakeID), zap.Error(err))
	}
}

// SubmitJob hands a job to the pool. It blocks while the pool is saturated
// and fails once QueueSize callers are already waiting.
func (w *ReconcileWorker) SubmitJob(job model.ReconcileJob) error {
	source := job.RequestedBy
	if source == "" {
		source = "unknown"
	}
	observer.IncReconcileTasksSubmitted(source)
	observer.SetReconcileQueueLength(w.pool.Waiting())

	if err := w.pool.Invoke(job); err != nil {
		w.baseLogger.Warn("Failed to submit reconcile job to pool",
			zap.String("intake_id", job.IntakeID),
			zap.Error(err),
		)
		observer.IncReconcileTasksProcessed("submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("%w: reconcile pool overload: %w", apperrors.ErrQueue, err)
		}
		return fmt.Errorf("%w: failed to invoke reconcile job: %w", apperrors.ErrQueue, err)
	}
	observer.SetReconcileWorkersActive(w.pool.Running())
	return nil
}

// processJob is executed by a worker goroutine.
func (w *ReconcileWorker) processJob(job model.ReconcileJob) {
	ctx := logger.WithLogger(context.Background(), w.baseLogger)
	log := w.baseLogger.With(zap.String("intake_id", job.IntakeID), zap.String("requested_by", job.RequestedBy))

	start := time.Now()
	log.Debug("Processing reconcile job")

	intake, err := w.runner.Reconcile(ctx, job)
	duration := time.Since(start)
	observer.ObserveReconcileDuration(duration)

	status := "load_error"
	if intake != nil {
		status = intake.LeadStatus
	}
	observer.IncReconcileTasksProcessed(status)
	observer.SetReconcileWorkersActive(w.pool.Running() - 1)

	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Error("Dropping reconcile job: intake not found", zap.Error(err))
			return
		}
		log.Error("Reconcile job failed",
			zap.Duration("duration", duration),
			zap.Bool("retryable", apperrors.IsRetryable(err)),
			zap.Error(err),
		)
		return
	}
	log.Debug("Finished reconcile job", zap.Duration("duration", duration), zap.String("final_status", status))
}

// Running returns the number of busy workers.
func (w *ReconcileWorker) Running() int {
	return w.pool.Running()
}

// Stop closes the dispatch buffer, waits for it to drain into the pool and
// then releases the pool. Each wait is bounded by 30s.
func (w *ReconcileWorker) Stop() {
	if w.pool == nil {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.baseLogger.Info("Releasing reconcile worker pool")
	start := time.Now()
	select {
	case <-w.drained:
	case <-time.After(stopTimeout):
		w.baseLogger.Warn("Reconcile dispatch queue did not drain in time", zap.Int("pending", len(w.queue)))
	}
	if err := w.pool.ReleaseTimeout(stopTimeout); err != nil {
		w.baseLogger.Warn("Reconcile worker pool did not drain in time", zap.Error(err))
	}
	w.baseLogger.Info("Reconcile worker pool released", zap.Duration("duration", time.Since(start)))
}
