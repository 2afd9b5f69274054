package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"twarchive/pkg/logger"
)

// ErrAlreadyStarted is returned by a second call to Start
var ErrAlreadyStarted = errors.New("poller already started")

// Func is one polling cycle
type Func func(ctx context.Context) error

// Poller invokes a Func once per interval, the first time one full interval
// after Start
type Poller struct {
	interval    time.Duration
	fn          Func
	skipOverlap bool
	logger      logger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	running  atomic.Int32
	cycles   sync.WaitGroup
	errOnce  sync.Once
	errCh    chan error
	stopOnce sync.Once
}

// Option configures a Poller
type Option func(*Poller)

// WithSkipOverlap skips a tick while the previous cycle is still running
func WithSkipOverlap(skip bool) Option {
	return func(p *Poller) { p.skipOverlap = skip }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New creates a Poller
func New(interval time.Duration, fn Func, opts ...Option) *Poller {
	p := &Poller{
		interval: interval,
		fn:       fn,
		logger:   logger.GetLogger(),
		done:     make(chan struct{}),
		errCh:    make(chan error, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins ticking and returns immediately. Ticking stops when ctx is
// done, Stop is called, or a cycle fails.
func (p *Poller) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return errors.New("poll interval must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	logger.LogComponentStart(p.logger, "poller", map[string]interface{}{
		"interval":     p.interval.String(),
		"skip_overlap": p.skipOverlap,
	})
	return nil
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// cycles outlive Stop so a half-processed batch is never abandoned
	cycleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if p.skipOverlap && p.running.Load() > 0 {
				p.logger.Warn("Previous cycle still running, skipping tick")
				continue
			}
			p.running.Add(1)
			p.cycles.Add(1)
			go p.runCycle(cycleCtx)
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	defer p.cycles.Done()
	defer p.running.Add(-1)

	if err := p.fn(ctx); err != nil {
		p.errOnce.Do(func() {
			p.errCh <- err
		})
		p.Stop()
	}
}

// Stop cancels future ticks. Cycles already running continue. Stop is
// idempotent and safe to call before Start.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		started := p.started
		p.started = true
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if !started {
			close(p.done)
		}
		logger.LogComponentStop(p.logger, "poller", "stopped")
	})
}

// Done is closed once ticking has stopped
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until ticking has stopped and every started cycle returned
func (p *Poller) Wait() {
	<-p.done
	p.cycles.Wait()
}

// Err delivers the first cycle error
func (p *Poller) Err() <-chan error {
	return p.errCh
}
