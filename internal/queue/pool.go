// Package queue runs jobs on a fixed set of worker goroutines, at most one
// job per key at a time.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrStopped is returned by Submit when the pool is not running.
	ErrStopped = errors.New("queue is not running")

	// ErrFull is returned by Submit when the job buffer is full.
	ErrFull = errors.New("queue is full")
)

// JobFunc is the body of a job. ctx is cancelled when the pool stops.
type JobFunc func(ctx context.Context, correlationID string)

type job struct {
	key string
	id  string
	fn  JobFunc
}

// Pool is a fixed-size worker pool with per-key exclusion.
type Pool struct {
	workers int
	jobs    chan job
	logger  *slog.Logger

	mu      sync.Mutex
	active  map[string]string // key -> correlation id, queued or running
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a pool with the given number of workers and job buffer.
func New(workers, buffer int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan job, buffer),
		logger:  logger,
		active:  make(map[string]string),
	}
}

// Start launches the worker goroutines. Calling Start on a running pool
// is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	for range p.workers {
		p.wg.Add(1)
		go p.work(p.ctx)
	}
}

// Stop cancels running jobs and waits for every worker to return. Jobs
// still queued are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
drain:
	for {
		select {
		case j := <-p.jobs:
			p.logger.Debug("dropping queued job", "key", j.key, "correlation_id", j.id)
		default:
			break drain
		}
	}
	clear(p.active)
	p.mu.Unlock()
}

// Submit enqueues fn under key and returns its correlation id. When a job
// for key is already queued or running, its id is returned and fn is
// discarded.
func (p *Pool) Submit(key string, fn JobFunc) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return "", ErrStopped
	}
	if id, ok := p.active[key]; ok {
		return id, nil
	}

	j := job{key: key, id: uuid.NewString(), fn: fn}
	select {
	case p.jobs <- j:
	default:
		return "", ErrFull
	}
	p.active[key] = j.id
	return j.id, nil
}

// Active returns the correlation id of the queued or running job for key.
func (p *Pool) Active(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.active[key]
	return id, ok
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.run(ctx, j)
		}
	}
}

func (p *Pool) run(ctx context.Context, j job) {
	defer p.release(j)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "key", j.key, "correlation_id", j.id, "panic", r)
		}
	}()

	if ctx.Err() != nil {
		return
	}
	p.logger.Debug("job started", "key", j.key, "correlation_id", j.id)
	j.fn(ctx, j.id)
}

func (p *Pool) release(j job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[j.key] == j.id {
		delete(p.active, j.key)
	}
}
