package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TaskFunc is one refresh of a polled read.
type TaskFunc func(ctx context.Context) error

// Observer receives the outcome of every task run.
type Observer interface {
	ObservePoll(key string, err error, d time.Duration)
}

// Config holds scheduler configuration.
type Config struct {
	Timeout time.Duration // Per-run timeout (default: 15s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
	}
}

// Scheduler owns every scope and its tasks.
type Scheduler struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active atomic.Int64

	mu     sync.Mutex
	scopes map[*Scope]struct{}
}

// New creates a new Scheduler.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		scopes: make(map[*Scope]struct{}),
	}
}

// SetObserver sets the task observer. Call before registering tasks.
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
}

// Start binds the scheduler to ctx: cancelling ctx stops every scope.
func (s *Scheduler) Start(ctx context.Context) error {
	context.AfterFunc(ctx, s.cancel)
	s.logger.Info("scheduler started", "timeout", s.cfg.Timeout)
	return nil
}

// Stop cancels every scope and waits for running tasks.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of running tasks across all scopes.
func (s *Scheduler) Active() int {
	return int(s.active.Load())
}

// Scopes returns the number of open scopes.
func (s *Scheduler) Scopes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scopes)
}

// NewScope creates a scope that is closed when owner ends or the scheduler stops.
func (s *Scheduler) NewScope(owner context.Context) *Scope {
	ctx, cancel := context.WithCancel(owner)
	stopWithScheduler := context.AfterFunc(s.ctx, cancel)

	sc := &Scope{
		sched:  s,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}

	s.mu.Lock()
	s.scopes[sc] = struct{}{}
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		stopWithScheduler()
		sc.shutdown()
		s.mu.Lock()
		delete(s.scopes, sc)
		s.mu.Unlock()
	})

	return sc
}

// Scope is a set of tasks sharing one owner.
type Scope struct {
	sched  *Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

type task struct {
	key      string
	interval time.Duration
	fn       TaskFunc
	cancel   context.CancelFunc
	trigger  chan struct{}
}

// Register starts fn under key: once immediately, then every interval.
// An interval of zero or less runs fn once and afterwards only on Trigger.
// It returns false if key is already registered or the scope is closed.
func (sc *Scope) Register(key string, interval time.Duration, fn TaskFunc) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.closed || sc.ctx.Err() != nil {
		return false
	}
	if _, ok := sc.tasks[key]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(sc.ctx)
	t := &task{
		key:      key,
		interval: interval,
		fn:       fn,
		cancel:   cancel,
		trigger:  make(chan struct{}, 1),
	}
	sc.tasks[key] = t

	sc.wg.Add(1)
	sc.sched.wg.Add(1)
	sc.sched.active.Add(1)
	go sc.run(ctx, t)

	return true
}

// Cancel stops the task registered under key.
func (sc *Scope) Cancel(key string) {
	sc.mu.Lock()
	t, ok := sc.tasks[key]
	if ok {
		delete(sc.tasks, key)
	}
	sc.mu.Unlock()

	if ok {
		t.cancel()
	}
}

// Trigger runs the task registered under key as soon as possible.
func (sc *Scope) Trigger(key string) bool {
	sc.mu.Lock()
	t, ok := sc.tasks[key]
	sc.mu.Unlock()

	if !ok {
		return false
	}
	select {
	case t.trigger <- struct{}{}:
	default:
	}
	return true
}

// Keys returns the registered task keys.
func (sc *Scope) Keys() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	keys := make([]string, 0, len(sc.tasks))
	for k := range sc.tasks {
		keys = append(keys, k)
	}
	return keys
}

// Done is closed when the scope is closed.
func (sc *Scope) Done() <-chan struct{} {
	return sc.ctx.Done()
}

// Close stops every task of the scope and waits for them to return.
func (sc *Scope) Close() {
	sc.cancel()
	sc.shutdown()
	sc.wg.Wait()
}

func (sc *Scope) shutdown() {
	sc.mu.Lock()
	sc.closed = true
	for key, t := range sc.tasks {
		t.cancel()
		delete(sc.tasks, key)
	}
	sc.mu.Unlock()
}

// run is the task loop.
func (sc *Scope) run(ctx context.Context, t *task) {
	defer sc.wg.Done()
	defer sc.sched.wg.Done()
	defer sc.sched.active.Add(-1)

	// Poll immediately on start.
	sc.poll(ctx, t)

	var tick <-chan time.Time
	if t.interval > 0 {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			sc.poll(ctx, t)
		case <-t.trigger:
			sc.poll(ctx, t)
		}
	}
}

func (sc *Scope) poll(ctx context.Context, t *task) {
	if ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, sc.sched.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := t.fn(runCtx)
	if err != nil && ctx.Err() == nil {
		sc.sched.logger.Debug("poll task failed", "key", t.key, "err", err)
	}
	if sc.sched.observer != nil {
		sc.sched.observer.ObservePoll(t.key, err, time.Since(start))
	}
}
