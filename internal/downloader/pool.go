package downloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"twarchive/pkg/logger"
)

// ErrPoolStopped is returned by Submit after Stop
var ErrPoolStopped = errors.New("worker pool is shutting down")

// Job is one unit of enrichment work, such as fetching an avatar or
// scraping a post page and downloading its images
type Job struct {
	Kind   string
	PostID string
	Run    func(ctx context.Context) error
}

// Stats counts job outcomes since the pool was created
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Dropped   int64
}

// WorkerPool runs jobs on a fixed number of workers. Submit never blocks:
// jobs queue in memory until a worker is free.
type WorkerPool struct {
	numWorkers int
	logger     logger.Logger

	mu      sync.Mutex
	queue   []Job
	closed  bool
	pending int
	idle    chan struct{}

	wake   chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewWorkerPool creates a pool with numWorkers workers (at least one)
func NewWorkerPool(numWorkers int, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	idle := make(chan struct{})
	close(idle)

	return &WorkerPool{
		numWorkers: numWorkers,
		logger:     log,
		idle:       idle,
		wake:       make(chan struct{}, numWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit queues job and returns immediately
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return ErrPoolStopped
	}
	if wp.pending == 0 {
		wp.idle = make(chan struct{})
	}
	wp.pending++
	wp.queue = append(wp.queue, job)
	wp.mu.Unlock()

	wp.submitted.Add(1)
	select {
	case wp.wake <- struct{}{}:
	default:
		// every worker already has a wake-up pending
	}

	wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
		"kind":    job.Kind,
		"post_id": job.PostID,
	})
	return nil
}

// Wait blocks until every submitted job has finished or ctx is done
func (wp *WorkerPool) Wait(ctx context.Context) error {
	wp.mu.Lock()
	idle := wp.idle
	wp.mu.Unlock()

	// an idle pool reports done even when ctx already is
	select {
	case <-idle:
		return nil
	default:
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects further jobs, cancels the context of running jobs, drops
// queued ones and waits for the workers to exit. It is idempotent.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	dropped := len(wp.queue)
	wp.queue = nil
	wp.finish(dropped)
	wp.mu.Unlock()

	wp.dropped.Add(int64(dropped))
	wp.cancel()
	wp.wg.Wait()

	wp.logger.InfoWithFields("Worker pool stopped", map[string]interface{}{
		"completed": wp.completed.Load(),
		"failed":    wp.failed.Load(),
		"dropped":   dropped,
	})
}

// Stats returns a snapshot of the counters
func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Submitted: wp.submitted.Load(),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
		Dropped:   wp.dropped.Load(),
	}
}

// GetQueueSize returns the number of jobs waiting for a worker
func (wp *WorkerPool) GetQueueSize() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.queue)
}

// finish marks n jobs done; callers hold mu
func (wp *WorkerPool) finish(n int) {
	if n == 0 {
		return
	}
	wp.pending -= n
	if wp.pending == 0 {
		close(wp.idle)
	}
}

func (wp *WorkerPool) next() (Job, bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if len(wp.queue) == 0 {
		return Job{}, false
	}
	job := wp.queue[0]
	wp.queue[0] = Job{}
	wp.queue = wp.queue[1:]
	return job, true
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		job, ok := wp.next()
		if !ok {
			select {
			case <-wp.wake:
				continue
			case <-wp.ctx.Done():
				return
			}
		}

		wp.process(job, id)

		wp.mu.Lock()
		wp.finish(1)
		wp.mu.Unlock()
	}
}

func (wp *WorkerPool) process(job Job, workerID int) {
	start := time.Now()
	err := job.Run(wp.ctx)

	fields := map[string]interface{}{
		"worker_id": workerID,
		"kind":      job.Kind,
		"post_id":   job.PostID,
		"duration":  time.Since(start),
	}
	if err != nil {
		wp.failed.Add(1)
		wp.logger.WithError(err).WarnWithFields("Job failed", fields)
		return
	}
	wp.completed.Add(1)
	wp.logger.DebugWithFields("Job completed", fields)
}
