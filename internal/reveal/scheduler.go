// Package reveal runs self-rearming timer chains, one per key, with a
// random delay between steps. The timeline uses it to disclose fetched
// replies one at a time and to fire delayed quote-repost attempts.
package reveal

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/logging"
)

// StepFunc runs when a chain's timer fires. Returning true re-arms the
// chain with a fresh delay; false ends it.
type StepFunc func(key string) (more bool)

// Window is the uniform delay range between steps.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clk
	}
}

// WithRand sets the randomness source for delays.
func WithRand(src rand.Source) Option {
	return func(s *Scheduler) {
		s.rng = rand.New(src)
	}
}

// WithName labels the scheduler in logs.
func WithName(name string) Option {
	return func(s *Scheduler) {
		s.logger = logging.Component(name)
	}
}

type task struct {
	timer   *clock.Timer
	running bool
	again   bool
}

// Scheduler owns the timer chains. It is safe for concurrent use.
type Scheduler struct {
	window Window
	step   StepFunc
	clock  clock.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	tasks   map[string]*task
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler that calls step for every fired timer.
func New(window Window, step StepFunc, opts ...Option) *Scheduler {
	if window.Max < window.Min {
		window.Max = window.Min
	}
	s := &Scheduler{
		window: window,
		step:   step,
		clock:  clock.New(),
		logger: logging.Component("reveal"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		tasks:  make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure starts a chain for key unless one is already active. It reports
// whether a new chain was started. Calling Ensure while the chain's step
// is running re-arms the chain even if the step returns false.
func (s *Scheduler) Ensure(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if tk, active := s.tasks[key]; active {
		if tk.running {
			tk.again = true
		}
		return false
	}

	tk := &task{}
	s.tasks[key] = tk
	s.armLocked(key, tk)
	return true
}

// Cancel stops the chain for key. A step that is already running
// completes but does not re-arm.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tk, ok := s.tasks[key]
	if !ok {
		return
	}
	delete(s.tasks, key)
	if tk.timer != nil && tk.timer.Stop() {
		s.wg.Done()
	}
}

// Stop cancels every chain, refuses new ones and waits for running steps
// to return. It must not be called from inside a StepFunc.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, tk := range s.tasks {
		if tk.timer != nil && tk.timer.Stop() {
			s.wg.Done()
		}
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug().Msg("scheduler stopped")
}

// Pending returns the number of active chains.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Active reports whether key has a chain.
func (s *Scheduler) Active(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

func (s *Scheduler) armLocked(key string, tk *task) {
	delay := s.delayLocked()
	s.wg.Add(1)
	tk.timer = s.clock.AfterFunc(delay, func() { s.fire(key, tk) })
	s.logger.Debug().Str("key", key).Dur("delay", delay).Msg("step scheduled")
}

func (s *Scheduler) delayLocked() time.Duration {
	span := s.window.Max - s.window.Min
	if span <= 0 {
		return s.window.Min
	}
	return s.window.Min + time.Duration(s.rng.Int64N(int64(span)+1))
}

func (s *Scheduler) fire(key string, tk *task) {
	defer s.wg.Done()

	s.mu.Lock()
	if s.stopped || s.tasks[key] != tk {
		s.mu.Unlock()
		return
	}
	tk.running = true
	s.mu.Unlock()

	more := s.step(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	tk.running = false
	if s.tasks[key] != tk {
		return
	}
	if (more || tk.again) && !s.stopped {
		tk.again = false
		s.armLocked(key, tk)
		return
	}
	delete(s.tasks, key)
}
