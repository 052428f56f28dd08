// File: scheduler/scheduler_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/fiber"
	"github.com/momentics/hioload-rt/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Cores:            3,
		CoroutineThreads: 1,
		TaskThreads:      1,
		TimerThreads:     1,
		FiberStackSize:   4 << 10,
		MaxFibers:        16,
		PollTimeout:      20 * time.Millisecond,
		TaskBatch:        8,
		Parallel:         true,
		Memory:           memory.NewFacade(),
	}
}

func startScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s := New()
	require.NoError(t, s.Start(cfg))
	t.Cleanup(s.Stop)
	return s
}

func TestEndToEndFiberTimerScenario(t *testing.T) {
	cfg := testConfig()
	cfg.PollTimeout = 200 * time.Millisecond
	s := startScheduler(t, cfg)

	var counter atomic.Int32
	var lastReturn atomic.Int64
	begin := time.Now()
	s.SetCoroutine(func(f *fiber.Fiber) {
		counter.Add(1)
		f.DeactivateThen(func() {
			s.SetTimeout(50*time.Millisecond, f.Activate)
		})
		counter.Add(1)
		lastReturn.Store(time.Now().UnixNano())
	})

	require.Eventually(t, func() bool { return counter.Load() >= 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, counter.Load())

	require.Eventually(t, func() bool { return counter.Load() == 2 }, 2*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(begin), 50*time.Millisecond)

	s.Stop()
	assert.Less(t, time.Since(time.Unix(0, lastReturn.Load())), cfg.PollTimeout+100*time.Millisecond)
	assert.False(t, s.IsActive())
	assert.False(t, s.HasAnyTasks())
}

func TestStartTwice(t *testing.T) {
	s := startScheduler(t, testConfig())
	assert.ErrorIs(t, s.Start(testConfig()), api.ErrAlreadyStarted)
}

func TestRestartAfterStop(t *testing.T) {
	s := New()
	require.NoError(t, s.Start(testConfig()))
	s.Stop()
	require.NoError(t, s.Start(testConfig()))
	defer s.Stop()

	ran := make(chan struct{})
	s.SetTask(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run after restart")
	}
}

func TestTasksRunInSubmissionOrder(t *testing.T) {
	s := startScheduler(t, testConfig())

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		s.SetTask(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()
	for i, v := range got {
		require.Equal(t, i, v)
	}
	assert.Eventually(t, func() bool { return s.Stats().TasksRun >= 100 }, time.Second, time.Millisecond)
}

func TestTimeoutsFireInExpiryOrder(t *testing.T) {
	s := startScheduler(t, testConfig())

	order := make(chan int, 2)
	s.SetTimeout(60*time.Millisecond, func() { order <- 60 })
	s.SetTimeout(10*time.Millisecond, func() { order <- 10 })
	assert.Equal(t, 10, <-order)
	assert.Equal(t, 60, <-order)
}

func TestClearTimeout(t *testing.T) {
	s := startScheduler(t, testConfig())

	var fired atomic.Bool
	id := s.SetTimeout(40*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, s.ClearTimeout(id))
	assert.False(t, s.ClearTimeout(id))
	assert.False(t, s.ClearTimeout(api.TimerID(999999)))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestIntervalRepeatsUntilCleared(t *testing.T) {
	s := startScheduler(t, testConfig())

	var n atomic.Int32
	id := s.SetInterval(5*time.Millisecond, func() { n.Add(1) })
	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, time.Millisecond)
	s.ClearTimeout(id)
	time.Sleep(20 * time.Millisecond)
	seen := n.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, seen, n.Load())
}

func TestTimeoutFiresOnceNoEarlierThanDelay(t *testing.T) {
	cfg := testConfig()
	cfg.PollTimeout = 5 * time.Millisecond
	s := startScheduler(t, cfg)

	const d = 30 * time.Millisecond
	var n atomic.Int32
	fired := make(chan time.Time, 4)
	submitted := time.Now()
	s.SetTimeout(d, func() {
		n.Add(1)
		fired <- time.Now()
	})

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(submitted), d)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
	// Several poll rounds later the one-shot is still spent.
	time.Sleep(10 * cfg.PollTimeout)
	assert.EqualValues(t, 1, n.Load())
	assert.Zero(t, s.Stats().PendingTimers)
}

func TestIntervalSpacingIsAtLeastPeriod(t *testing.T) {
	s := startScheduler(t, testConfig())

	const d = 10 * time.Millisecond
	const rounds = 5
	fired := make(chan time.Time, rounds*4)
	submitted := time.Now()
	id := s.SetInterval(d, func() { fired <- time.Now() })

	// Round k is handed off no earlier than k periods after submission,
	// so its callback cannot run earlier either.
	for k := 1; k <= rounds; k++ {
		select {
		case at := <-fired:
			assert.GreaterOrEqual(t, at.Sub(submitted), time.Duration(k)*d, "round %d", k)
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d never fired", k)
		}
	}
	s.ClearTimeout(id)
}

func TestStopFromTaskLatches(t *testing.T) {
	s := New()
	require.NoError(t, s.Start(testConfig()))

	returned := make(chan struct{})
	s.SetTask(func() {
		s.Stop()
		close(returned)
	})
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Stop from a worker did not return")
	}
	s.Wait()
	assert.False(t, s.IsActive())
}

func TestStopFromFiberLatches(t *testing.T) {
	s := New()
	require.NoError(t, s.Start(testConfig()))

	var after atomic.Bool
	s.SetCoroutine(func(*fiber.Fiber) {
		s.Stop()
		after.Store(true)
	})
	s.Wait()
	assert.True(t, after.Load())
	assert.False(t, s.IsActive())
}

func TestCurrentWorkerInsideFiber(t *testing.T) {
	s := startScheduler(t, testConfig())

	type seen struct {
		worker *Worker
		ctx    string
	}
	ch := make(chan seen, 1)
	s.SetCoroutine(func(*fiber.Fiber) {
		ch <- seen{worker: CurrentWorker(), ctx: describeCurrent()}
	})
	got := <-ch
	require.NotNil(t, got.worker)
	assert.Equal(t, Coroutine, got.worker.Class)
	assert.Same(t, s, got.worker.Scheduler())
	assert.True(t, strings.HasPrefix(got.ctx, "coroutine#0/fiber#"), got.ctx)
	assert.Nil(t, CurrentWorker())
}

func TestSuspendResume(t *testing.T) {
	s := startScheduler(t, testConfig())

	s.Suspend()
	assert.True(t, s.Stats().Suspended)
	var ran atomic.Bool
	s.SetTask(func() { ran.Store(true) })
	time.Sleep(80 * time.Millisecond)
	assert.False(t, ran.Load())

	s.Resume()
	assert.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestMaxFibersBoundsLiveFibers(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFibers = 2
	s := New()
	require.NoError(t, s.Start(cfg))

	for i := 0; i < 5; i++ {
		s.SetCoroutine(func(f *fiber.Fiber) { f.Deactivate() })
	}
	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.LiveFibers == 2 && st.QueuedCoroutines == 3
	}, time.Second, time.Millisecond)
	assert.True(t, s.HasAnyTasks())

	s.Stop()
	st := s.Stats()
	assert.Equal(t, 0, st.LiveFibers)
	assert.Equal(t, 0, st.QueuedCoroutines)
	assert.False(t, s.HasAnyTasks())
}

func TestStopRunsQueuedTasksAndClearsTimers(t *testing.T) {
	s := New()
	require.NoError(t, s.Start(testConfig()))

	var ran atomic.Int32
	block := make(chan struct{})
	s.SetTask(func() { <-block })
	for i := 0; i < 10; i++ {
		s.SetTask(func() { ran.Add(1) })
	}
	s.SetTimeout(time.Hour, func() {})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()
	s.Stop()
	assert.EqualValues(t, 10, ran.Load())
	assert.Equal(t, 0, s.Stats().PendingTimers)
}

func TestWakeupAndStats(t *testing.T) {
	s := startScheduler(t, testConfig())
	s.Wakeup()
	st := s.Stats()
	assert.True(t, st.Active)
	assert.True(t, st.Parallel)
	assert.Equal(t, map[Class]int{Coroutine: 1, Task: 1, Timer: 1}, st.Workers)
	assert.Len(t, s.Workers(), 3)
}

func TestImmediateMode(t *testing.T) {
	cfg := testConfig()
	cfg.Parallel = false
	s := New()
	require.NoError(t, s.Start(cfg))

	ran := false
	s.SetTask(func() { ran = true })
	assert.True(t, ran, "tasks run inline")

	steps := 0
	s.SetCoroutine(func(f *fiber.Fiber) {
		steps++
		f.DeactivateThen(func() { s.SetTimeout(10*time.Millisecond, f.Activate) })
		steps++
	})
	assert.Equal(t, 1, steps, "coroutine runs until it suspends")

	deadline := time.Now().Add(2 * time.Second)
	for steps < 2 && time.Now().Before(deadline) {
		if !s.Poll() {
			time.Sleep(time.Millisecond)
		}
	}
	assert.Equal(t, 2, steps)
	assert.False(t, s.HasAnyTasks())

	s.Stop()
	assert.False(t, s.IsActive())
	assert.False(t, s.Poll())
}

func TestImmediateModeStopFromFiber(t *testing.T) {
	cfg := testConfig()
	cfg.Parallel = false
	s := New()
	require.NoError(t, s.Start(cfg))

	s.SetCoroutine(func(*fiber.Fiber) { s.Stop() })
	assert.False(t, s.IsActive())
	s.Wait()
	assert.Nil(t, CurrentWorker())
}

func TestImmediateModeStopFromOtherThread(t *testing.T) {
	cases := []struct {
		name  string
		drive func(s *Scheduler)
	}{
		{"poll loop", func(s *Scheduler) {
			for s.IsActive() {
				if !s.Poll() {
					time.Sleep(time.Millisecond)
				}
			}
			s.Poll()
		}},
		{"blocked in wait", func(s *Scheduler) { s.Wait() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Parallel = false
			s := New()

			started := make(chan struct{})
			finished := make(chan struct{})
			var leftover *Worker
			go func() {
				defer close(finished)
				if !assert.NoError(t, s.Start(cfg)) {
					close(started)
					return
				}
				s.SetCoroutine(func(f *fiber.Fiber) { f.Deactivate() })
				close(started)
				tc.drive(s)
				s.Wait()
				leftover = CurrentWorker()
			}()
			<-started

			time.Sleep(10 * time.Millisecond)
			s.Stop()
			assert.False(t, s.IsActive())

			select {
			case <-finished:
			case <-time.After(2 * time.Second):
				t.Fatal("owner thread never completed the stop")
			}
			assert.Nil(t, leftover)
			assert.Equal(t, 0, s.Stats().LiveFibers)
			s.Wait()
		})
	}
}

func TestDaemonRunsUntilKeepAliveReleases(t *testing.T) {
	cfg := testConfig()
	cfg.Daemon = true
	var release atomic.Bool
	cfg.KeepAlive = func() bool { return !release.Load() }

	s := New()
	s.SetTimeout(20*time.Millisecond, func() { release.Store(true) })

	done := make(chan error, 1)
	go func() { done <- s.Start(cfg) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		s.Stop()
		t.Fatal("daemon did not return after keep-alive release")
	}
	assert.True(t, release.Load())
	assert.False(t, s.IsActive())
}

func TestDefaultScheduler(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.False(t, Default().IsActive())
}
