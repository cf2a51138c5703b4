// Package jobqueue runs slow side effects off the request path on a fixed
// number of workers.
package jobqueue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grafana/pyroscope-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shipfunnel/backend/internal/infrastructure/logger"
)

// Func is a job body
type Func func(ctx context.Context, payload any) error

// Job is a unit of queued work
type Job struct {
	ID         string
	Name       string
	Payload    any
	EnqueuedAt time.Time

	fn Func
}

// Config holds queue configuration
type Config struct {
	Concurrency int
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{Concurrency: 2}
}

// FinishHook observes every finished job. err is nil on success.
type FinishHook func(ctx context.Context, job *Job, err error)

// Option configures a Queue
type Option func(*Queue)

// WithFinishHook registers a hook called after each job
func WithFinishHook(hook FinishHook) Option {
	return func(q *Queue) {
		q.onFinish = hook
	}
}

// Queue is a FIFO job queue with bounded concurrency and an unbounded backlog.
// Failed jobs are logged and dropped.
type Queue struct {
	config Config
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	onFinish FinishHook

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []*Job
	inFlight int
	started  bool
	stopped  bool
	baseCtx  context.Context
	wg       sync.WaitGroup
}

// New creates a queue. Jobs enqueued before Start wait for it.
func New(config Config, log *zap.Logger, opts ...Option) *Queue {
	if config.Concurrency < 1 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	q := &Queue{
		config: config,
		logger: log.Named("jobqueue"),
		tracer: otel.Tracer("github.com/shipfunnel/backend/jobqueue"),
		now:    time.Now,
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the workers. Job contexts derive from ctx but are not
// cancelled with it.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.baseCtx = context.WithoutCancel(ctx)
	q.mu.Unlock()

	for i := 0; i < q.config.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.logger.Info("Job queue started", zap.Int("workers", q.config.Concurrency))
}

// Stop refuses new jobs and waits for the backlog to drain or ctx to end
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Job queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Job queue stop timed out", zap.Int("depth", q.Depth()))
		return ctx.Err()
	}
}

// Enqueue adds a job and returns its id without waiting for it to run
func (q *Queue) Enqueue(name string, fn Func, payload any) (string, error) {
	now := q.now()
	job := &Job{
		ID:         newJobID(name, now),
		Name:       name,
		Payload:    payload,
		EnqueuedAt: now,
		fn:         fn,
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrQueueStopped
	}
	q.pending = append(q.pending, job)
	depth := len(q.pending) + q.inFlight
	q.cond.Signal()
	q.mu.Unlock()

	q.logger.Debug("Job enqueued",
		zap.String("job_id", job.ID),
		zap.String("job_name", name),
		zap.Int("depth", depth),
	)
	return job.ID, nil
}

// Depth returns queued plus in-flight jobs
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + q.inFlight
}

// Wait blocks until the queue is empty or ctx ends
func (q *Queue) Wait(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if q.Depth() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()

	for {
		job, ok := q.next()
		if !ok {
			q.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		}
		q.run(job, workerID)

		q.mu.Lock()
		q.inFlight--
		q.mu.Unlock()
	}
}

// next blocks for the oldest pending job. Returns false once stopped and drained.
func (q *Queue) next() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 {
		if q.stopped {
			return nil, false
		}
		q.cond.Wait()
	}
	job := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.inFlight++
	return job, true
}

func (q *Queue) run(job *Job, workerID int) {
	ctx, span := q.tracer.Start(q.baseCtx, "job "+job.Name,
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.name", job.Name),
		),
	)
	defer span.End()

	jobLogger := logger.WithTrace(ctx, q.logger).With(
		zap.String("job_id", job.ID),
		zap.String("job_name", job.Name),
	)
	ctx = logger.WithContext(ctx, jobLogger)

	start := q.now()
	err := q.invoke(ctx, job)
	if q.onFinish != nil {
		q.onFinish(ctx, job, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobLogger.Error("Job failed",
			zap.Int("worker_id", workerID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	jobLogger.Info("Job completed",
		zap.Int("worker_id", workerID),
		zap.Duration("queued_for", start.Sub(job.EnqueuedAt)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (q *Queue) invoke(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	// CPU samples taken while the job runs carry its name
	pyroscope.TagWrapper(ctx, pyroscope.Labels("job_name", job.Name), func(ctx context.Context) {
		err = job.fn(ctx, job.Payload)
	})
	return err
}

// newJobID builds name-<unix millis>-<random suffix>
func newJobID(name string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", name, now.UnixMilli(), suffix)
}
