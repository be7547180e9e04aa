// Package worker runs the generation queue: a pool of processors claiming
// jobs, dispatching them to webhook handlers, retrying with backoff and
// settling credits when a job finishes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// Handler processes a job and returns the result stored on the job row.
type Handler func(ctx context.Context, job *models.Job) (models.JSONB, error)

// Handlers maps job types to their handlers
type Handlers map[string]Handler

// Queue is the persistence the worker needs. *store.JobStore satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, job *models.Job) error
	ClaimNextJob(ctx context.Context, workerID string) (*models.Job, error)
	MarkCompleted(ctx context.Context, job *models.Job, result models.JSONB) error
	MarkFailed(ctx context.Context, job *models.Job, errorMsg string) error
	ScheduleRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error
	ReleaseJob(ctx context.Context, id int64) error
	CancelJob(ctx context.Context, id int64) (*models.Job, error)
	GetStats(ctx context.Context) (*models.JobStats, error)
}

// Instrumentation provides hooks for monitoring job lifecycle
type Instrumentation struct {
	OnEnqueue   func(job *models.Job)
	OnStart     func(job *models.Job)
	OnComplete  func(job *models.Job, duration time.Duration)
	OnFail      func(job *models.Job, err error, duration time.Duration)
	OnRetry     func(job *models.Job, retryAfter time.Duration)
	OnCancel    func(job *models.Job)
	OnHeartbeat func(workerID string, stats Stats)
}

// Stats holds worker statistics
type Stats struct {
	JobsProcessed   int64     `json:"jobsProcessed"`
	JobsSucceeded   int64     `json:"jobsSucceeded"`
	JobsFailed      int64     `json:"jobsFailed"`
	JobsRetried     int64     `json:"jobsRetried"`
	ActiveWorkers   int       `json:"activeWorkers"`
	LastProcessedAt time.Time `json:"lastProcessedAt"`
}

// Config holds worker configuration
type Config struct {
	// MaxConcurrent is the maximum number of concurrent job processors
	MaxConcurrent int
	// PollInterval is the time between polling for new jobs
	PollInterval time.Duration
	// RetryBaseDelay is the base delay for exponential backoff
	RetryBaseDelay time.Duration
	// RetryMaxDelay is the maximum delay between retries
	RetryMaxDelay time.Duration
	// RetryBackoffMultiplier is the multiplier for exponential backoff
	RetryBackoffMultiplier float64
	// JobTimeout bounds a single webhook dispatch
	JobTimeout time.Duration
	// ShutdownTimeout is the maximum time to wait for jobs to complete during shutdown
	ShutdownTimeout time.Duration
	// HeartbeatInterval is the interval for sending heartbeat metrics
	HeartbeatInterval time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:          5,
		PollInterval:           time.Second,
		RetryBaseDelay:         5 * time.Second,
		RetryMaxDelay:          2 * time.Minute,
		RetryBackoffMultiplier: 2.0,
		JobTimeout:             3 * time.Minute,
		ShutdownTimeout:        30 * time.Second,
		HeartbeatInterval:      time.Minute,
	}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the job fails without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Worker is the async job queue processor
type Worker struct {
	config          Config
	queue           Queue
	handlers        Handlers
	instrumentation *Instrumentation

	workerID string
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopped  bool
	mu       sync.RWMutex

	// activeJobs tracks currently processing job IDs for graceful shutdown
	activeJobs map[int64]context.CancelFunc

	statsMu         sync.RWMutex
	jobsProcessed   int64
	jobsSucceeded   int64
	jobsFailed      int64
	jobsRetried     int64
	lastProcessedAt time.Time
}

// New creates a new Worker instance
func New(config Config, queue Queue, handlers Handlers) *Worker {
	def := DefaultConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = def.RetryBaseDelay
	}
	if config.RetryMaxDelay <= 0 {
		config.RetryMaxDelay = def.RetryMaxDelay
	}
	if config.RetryBackoffMultiplier <= 1 {
		config.RetryBackoffMultiplier = def.RetryBackoffMultiplier
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = def.HeartbeatInterval
	}
	if handlers == nil {
		handlers = Handlers{}
	}

	return &Worker{
		config:          config,
		queue:           queue,
		handlers:        handlers,
		workerID:        generateWorkerID(),
		stopCh:          make(chan struct{}),
		activeJobs:      make(map[int64]context.CancelFunc),
		instrumentation: &Instrumentation{},
	}
}

// RegisterHandler adds or replaces the handler for a job type. Call before Start.
func (w *Worker) RegisterHandler(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

// SetInstrumentation sets the instrumentation hooks
func (w *Worker) SetInstrumentation(inst *Instrumentation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.instrumentation = inst
}

// Start begins the worker loop
func (w *Worker) Start(ctx context.Context) {
	log.Printf("[worker] Starting with ID: %s, max concurrent: %d", w.workerID, w.config.MaxConcurrent)

	if w.instrumentation.OnHeartbeat != nil {
		w.wg.Add(1)
		go w.heartbeat(ctx)
	}

	for i := 0; i < w.config.MaxConcurrent; i++ {
		w.wg.Add(1)
		go w.processor(ctx, i)
	}

	log.Printf("[worker] Started %d processors", w.config.MaxConcurrent)
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop(ctx context.Context) error {
	log.Printf("[worker] Initiating graceful shutdown...")

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, w.config.ShutdownTimeout)
	defer cancel()

	w.releaseActiveJobs(shutdownCtx)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[worker] Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Printf("[worker] Shutdown timeout exceeded, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// processor is the main loop for a single worker goroutine
func (w *Worker) processor(ctx context.Context, id int) {
	defer w.wg.Done()

	processorID := fmt.Sprintf("%s-processor-%d", w.workerID, id)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[worker] Processor %s shutting down (context cancelled)", processorID)
			return
		case <-w.stopCh:
			log.Printf("[worker] Processor %s shutting down (stop signal)", processorID)
			return
		default:
			if err := w.processNextJob(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					log.Printf("[worker] Processor %s error: %v", processorID, err)
					w.sleep(ctx, w.config.PollInterval)
				}
			}
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// processNextJob attempts to claim and process the next available job
func (w *Worker) processNextJob(ctx context.Context) error {
	job, err := w.queue.ClaimNextJob(ctx, w.workerID)
	if err != nil {
		return err
	}
	if job == nil {
		w.sleep(ctx, w.config.PollInterval)
		return ctx.Err()
	}

	w.processJob(ctx, job)
	return nil
}

// processJob handles the execution of a single job
func (w *Worker) processJob(ctx context.Context, job *models.Job) {
	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	w.trackActiveJob(job.ID, cancel)
	defer w.untrackActiveJob(job.ID)

	if w.instrumentation.OnStart != nil {
		w.instrumentation.OnStart(job)
	}

	log.Printf("[worker] Processing job %d (type: %s, attempt: %d/%d)",
		job.ID, job.JobType, job.Attempts, job.MaxAttempts)

	w.mu.RLock()
	handler, ok := w.handlers[job.JobType]
	w.mu.RUnlock()
	if !ok {
		w.handleError(ctx, job, Permanent(fmt.Errorf("no handler registered for job type: %s", job.JobType)), start)
		return
	}

	result, err := handler(jobCtx, job)

	// A released job belongs to the next claimant; do not settle it here.
	if w.isStopping() && errors.Is(jobCtx.Err(), context.Canceled) {
		return
	}

	// Settlement runs on the parent context so a timed-out dispatch can
	// still be recorded.
	if err != nil {
		w.handleError(ctx, job, err, start)
	} else {
		w.handleSuccess(ctx, job, result, start)
	}
}

func (w *Worker) isStopping() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

// retryDelay is base * multiplier^(attempt-1), capped, with ±20% jitter.
func (w *Worker) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(w.config.RetryBaseDelay) * math.Pow(w.config.RetryBackoffMultiplier, float64(attempt-1))
	delay := min(base, float64(w.config.RetryMaxDelay))
	return time.Duration(delay * (0.8 + 0.4*rand.Float64()))
}

// handleError handles a job failure, retrying if appropriate
func (w *Worker) handleError(ctx context.Context, job *models.Job, err error, start time.Time) {
	duration := time.Since(start)

	log.Printf("[worker] Job %d failed after %v: %v", job.ID, duration, err)

	w.statsMu.Lock()
	w.jobsProcessed++
	w.jobsFailed++
	w.lastProcessedAt = time.Now()
	w.statsMu.Unlock()

	if w.instrumentation.OnFail != nil {
		w.instrumentation.OnFail(job, err, duration)
	}

	if !job.IsFinalAttempt() && !IsPermanent(err) {
		delay := w.retryDelay(job.Attempts)

		w.statsMu.Lock()
		w.jobsRetried++
		w.statsMu.Unlock()

		if w.instrumentation.OnRetry != nil {
			w.instrumentation.OnRetry(job, delay)
		}

		log.Printf("[worker] Scheduling retry for job %d after %v (attempt %d/%d)",
			job.ID, delay, job.Attempts, job.MaxAttempts)

		if err := w.queue.ScheduleRetry(ctx, job.ID, err.Error(), time.Now().Add(delay)); err != nil {
			log.Printf("[worker] Failed to schedule retry for job %d: %v", job.ID, err)
		}
		return
	}

	log.Printf("[worker] Job %d failed permanently after %d/%d attempts, refunding credits", job.ID, job.Attempts, job.MaxAttempts)
	if err := w.queue.MarkFailed(ctx, job, err.Error()); err != nil {
		log.Printf("[worker] Failed to mark job %d as failed: %v", job.ID, err)
	}
}

// handleSuccess handles a successful job completion
func (w *Worker) handleSuccess(ctx context.Context, job *models.Job, result models.JSONB, start time.Time) {
	duration := time.Since(start)

	log.Printf("[worker] Job %d completed successfully in %v", job.ID, duration)

	w.statsMu.Lock()
	w.jobsProcessed++
	w.jobsSucceeded++
	w.lastProcessedAt = time.Now()
	w.statsMu.Unlock()

	if w.instrumentation.OnComplete != nil {
		w.instrumentation.OnComplete(job, duration)
	}

	if err := w.queue.MarkCompleted(ctx, job, result); err != nil {
		log.Printf("[worker] Failed to mark job %d as completed: %v", job.ID, err)
	}
}

func (w *Worker) trackActiveJob(jobID int64, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeJobs[jobID] = cancel
}

func (w *Worker) untrackActiveJob(jobID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.activeJobs, jobID)
}

// releaseActiveJobs cancels in-flight dispatches and puts their jobs back to pending
func (w *Worker) releaseActiveJobs(ctx context.Context) {
	w.mu.Lock()
	jobIDs := make([]int64, 0, len(w.activeJobs))
	for id, cancel := range w.activeJobs {
		jobIDs = append(jobIDs, id)
		cancel()
	}
	w.mu.Unlock()

	for _, id := range jobIDs {
		if err := w.queue.ReleaseJob(ctx, id); err != nil {
			log.Printf("[worker] Failed to release job %d: %v", id, err)
		} else {
			log.Printf("[worker] Released job %d back to pending", id)
		}
	}
}

// heartbeat periodically sends stats updates
func (w *Worker) heartbeat(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.instrumentation.OnHeartbeat(w.workerID, w.GetStats())
		}
	}
}

// GetStats returns current worker statistics
func (w *Worker) GetStats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	w.mu.RLock()
	activeWorkers := len(w.activeJobs)
	w.mu.RUnlock()

	return Stats{
		JobsProcessed:   w.jobsProcessed,
		JobsSucceeded:   w.jobsSucceeded,
		JobsFailed:      w.jobsFailed,
		JobsRetried:     w.jobsRetried,
		ActiveWorkers:   activeWorkers,
		LastProcessedAt: w.lastProcessedAt,
	}
}

// Enqueue creates a new job in the queue
func (w *Worker) Enqueue(ctx context.Context, job *models.Job) error {
	if err := w.queue.Enqueue(ctx, job); err != nil {
		return err
	}

	if w.instrumentation.OnEnqueue != nil {
		w.instrumentation.OnEnqueue(job)
	}

	log.Printf("[worker] Enqueued job %d (type: %s, priority: %s)", job.ID, job.JobType, job.Priority)
	return nil
}

// CancelJob cancels a pending job; its credits are refunded by the queue.
func (w *Worker) CancelJob(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := w.queue.CancelJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if w.instrumentation.OnCancel != nil {
		w.instrumentation.OnCancel(job)
	}

	log.Printf("[worker] Cancelled job %d", jobID)
	return job, nil
}

// GetQueueStats returns statistics about the job queue
func (w *Worker) GetQueueStats(ctx context.Context) (*models.JobStats, error) {
	return w.queue.GetStats(ctx)
}

func generateWorkerID() string {
	return fmt.Sprintf("worker-%d-%d", time.Now().UnixNano(), rand.Intn(10000))
}
