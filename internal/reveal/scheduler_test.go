package reveal

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fast = Window{Min: time.Millisecond, Max: 3 * time.Millisecond}

// counter is a StepFunc that keeps a chain alive until limit steps ran.
type counter struct {
	mu    sync.Mutex
	steps map[string]int
	limit int
}

func newCounter(limit int) *counter {
	return &counter{steps: map[string]int{}, limit: limit}
}

func (c *counter) step(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[key]++
	return c.steps[key] < c.limit
}

func (c *counter) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps[key]
}

func TestChainRunsUntilStepDeclines(t *testing.T) {
	c := newCounter(3)
	s := New(fast, c.step, WithRand(rand.NewPCG(1, 1)))
	defer s.Stop()

	require.True(t, s.Ensure("p1"))
	require.False(t, s.Ensure("p1"), "one chain per key")
	require.True(t, s.Ensure("p2"))
	require.Equal(t, 2, s.Pending())

	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, 3, c.count("p1"))
	require.Equal(t, 3, c.count("p2"))

	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 3, c.count("p1"), "finished chain must not fire again")
}

func TestCancelStopsChain(t *testing.T) {
	c := newCounter(1000)
	s := New(Window{Min: 20 * time.Millisecond, Max: 20 * time.Millisecond}, c.step)
	defer s.Stop()

	s.Ensure("p1")
	s.Cancel("p1")
	s.Cancel("missing")
	require.False(t, s.Active("p1"))

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, c.count("p1"))
}

func TestStopWaitsAndRefusesNewChains(t *testing.T) {
	var running atomic.Int32
	release := make(chan struct{})
	step := func(string) bool {
		running.Add(1)
		<-release
		return true
	}
	s := New(fast, step)
	s.Ensure("p1")

	require.Eventually(t, func() bool { return running.Load() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a step was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	require.False(t, s.Ensure("p2"))
	require.Zero(t, s.Pending())
	require.Equal(t, int32(1), running.Load(), "no re-arm after Stop")
	s.Stop()
}

func TestEnsureDuringStepRearms(t *testing.T) {
	var calls atomic.Int32
	var s *Scheduler
	s = New(fast, func(key string) bool {
		if calls.Add(1) == 1 {
			s.Ensure(key)
		}
		return false
	})
	defer s.Stop()

	s.Ensure("p1")
	require.Eventually(t, func() bool { return calls.Load() == 2 && s.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestDelayStaysInWindow(t *testing.T) {
	s := New(Window{Min: 2 * time.Second, Max: 5 * time.Second}, func(string) bool { return false },
		WithRand(rand.NewPCG(7, 7)))

	for i := 0; i < 1000; i++ {
		d := s.delayLocked()
		require.GreaterOrEqual(t, d, 2*time.Second)
		require.LessOrEqual(t, d, 5*time.Second)
	}

	fixed := New(Window{Min: time.Second, Max: 0}, func(string) bool { return false })
	require.Equal(t, time.Second, fixed.delayLocked())
}
