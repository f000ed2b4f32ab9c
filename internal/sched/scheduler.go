package sched

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout marks a reconciliation run that exceeded the configured
// timeout and was forcibly finalized.
var ErrTimeout = errors.New("reconciliation timeout")

const (
	// DefaultInterval is the periodic tick driving queued work.
	DefaultInterval = 5 * time.Second
	// DefaultTimeout bounds a single reconciliation run.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxConcurrent is the reconciliation concurrency budget.
	DefaultMaxConcurrent = 4
)

// RunFunc executes one reconciliation for a key. It should honor ctx, but
// the scheduler finalizes the run on timeout regardless.
type RunFunc func(ctx context.Context, key string) error

// DoneFunc observes the completion of a run: err is nil on success,
// ErrTimeout on forced finalization, or the run's own error.
type DoneFunc func(key string, err error, elapsed time.Duration)

// Scheduler drains a two-tier reconciliation queue on a periodic tick,
// running work with bounded concurrency and a per-run timeout. A key can be
// queued at most once and never runs twice concurrently; completion of any
// run immediately pulls the next queued item.
type Scheduler struct {
	mu      sync.Mutex
	queue   *queue
	running map[string]struct{}

	sem      *semaphore.Weighted
	run      RunFunc
	onDone   DoneFunc
	interval time.Duration
	timeout  time.Duration

	kick    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler. Non-positive parameters fall back to defaults.
func New(interval, timeout time.Duration, maxConcurrent int, run RunFunc) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	return &Scheduler{
		queue:    newQueue(),
		running:  make(map[string]struct{}),
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		run:      run,
		interval: interval,
		timeout:  timeout,
		kick:     make(chan struct{}, 1),
	}
}

// SetOnDone registers the completion observer. Must be called before Start.
func (s *Scheduler) SetOnDone(fn DoneFunc) {
	s.onDone = fn
}

// Start launches the tick loop. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.drain()
			case <-s.kick:
				s.drain()
			}
		}
	}()
}

// Stop halts the tick loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Enqueue queues a reconciliation for key. A queued key is merged (priority
// may be raised); a running key is dropped, since the in-flight run is
// authoritative. Returns false when dropped.
func (s *Scheduler) Enqueue(key string, highPriority bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, inFlight := s.running[key]; inFlight {
		return false
	}
	s.queue.push(key, highPriority)
	return true
}

// Kick triggers an immediate drain without waiting for the periodic tick.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// QueueLen returns the number of queued (not running) items.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Active returns the number of in-flight runs.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Position returns the 0-based dequeue position of key, or -1 if unqueued.
func (s *Scheduler) Position(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.position(key)
}

// Running reports whether key has an in-flight run.
func (s *Scheduler) Running(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, inFlight := s.running[key]
	return inFlight
}

// drain pulls queued items while the concurrency budget allows.
func (s *Scheduler) drain() {
	for s.sem.TryAcquire(1) {
		s.mu.Lock()
		item, ok := s.queue.pop()
		if !ok {
			s.mu.Unlock()
			s.sem.Release(1)
			return
		}
		s.running[item.Key] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.execute(item)
	}
}

// execute runs a single item with the configured timeout. A run that
// overruns is finalized as failed with ErrTimeout; its goroutine may linger
// until the RunFunc returns, but cannot block finalization.
func (s *Scheduler) execute(item *Item) {
	defer s.wg.Done()

	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result := make(chan error, 1)
	go func() {
		result <- s.run(runCtx, item.Key)
	}()

	var err error
	select {
	case err = <-result:
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = ErrTimeout
			log.Printf("[sched] reconciliation timed out for key=%s after %s", item.Key, s.timeout)
		} else {
			err = runCtx.Err()
		}
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	delete(s.running, item.Key)
	s.mu.Unlock()
	s.sem.Release(1)

	if s.onDone != nil {
		s.onDone(item.Key, err, elapsed)
	}

	// Self-driving pipeline: pull the next queued item right away.
	s.Kick()
}
