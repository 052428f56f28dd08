// File: facade/runtime_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/arena"
	"github.com/momentics/hioload-rt/fiber"
	"github.com/momentics/hioload-rt/internal/logging"
	"github.com/momentics/hioload-rt/memory"
	"github.com/momentics/hioload-rt/pool"
	"github.com/momentics/hioload-rt/scheduler"
)

func testConfig(allocator string) *Config {
	cfg := DefaultConfig()
	cfg.Allocator = allocator
	cfg.LogLevel = "error"
	cfg.MetricsInterval = 5 * time.Millisecond
	cfg.Scheduler.Cores = 3
	cfg.Scheduler.PollTimeout = 10 * time.Millisecond
	return cfg
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
name: demo
allocator: Pooled
logLevel: debug
scheduler:
  cores: 4
  pollTimeout: 25ms
pool:
  minPageLifetime: 500ms
  maxElementsPerPage: 64
arena:
  capacity: 4096
`))
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, AllocatorPooled, cfg.Allocator)
	assert.Equal(t, 4, cfg.Scheduler.Cores)
	assert.Equal(t, 25*time.Millisecond, cfg.Scheduler.PollTimeout)
	assert.True(t, cfg.Scheduler.Parallel, "defaults survive partial documents")
	assert.Equal(t, 500*time.Millisecond, cfg.Pool.MinPageLifetime)
	assert.Equal(t, 64, cfg.Pool.MaxElementsPerPage)
	assert.Equal(t, pool.DefaultConfig().ReducingBase, cfg.Pool.ReducingBase)
	assert.Equal(t, 4096, cfg.Arena.Capacity)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig([]byte("allocator: buddy\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "buddy", apiErr.Context["allocator"])

	_, err = ParseConfig([]byte("scheduler:\n  timerThreads: 2\n"))
	assert.ErrorIs(t, err, api.ErrInvalidConfig)

	_, err = ParseConfig([]byte("scheduler: [1, 2"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allocator: tracking\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, AllocatorTracking, cfg.Allocator)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRuntimeLifecycle(t *testing.T) {
	rt, err := New(testConfig(AllocatorPooled))
	require.NoError(t, err)
	assert.IsType(t, &pool.Allocator{}, rt.Allocator())
	assert.Same(t, rt.Allocator(), rt.Memory().Global())

	require.NoError(t, rt.Start())
	assert.ErrorIs(t, rt.Start(), api.ErrAlreadyStarted)
	assert.True(t, rt.Scheduler().IsActive())
	assert.Equal(t, rt.Scheduler().Stats().Workers[scheduler.Task], rt.Executor().NumWorkers())

	var ran atomic.Int32
	require.NoError(t, rt.Executor().Submit(func() { ran.Add(1) }))
	done := make(chan struct{})
	rt.Scheduler().SetCoroutine(func(f *fiber.Fiber) {
		ran.Add(1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coroutine did not run")
	}
	assert.Eventually(t, func() bool { return ran.Load() == 2 }, 2*time.Second, time.Millisecond)

	assert.Eventually(t, func() bool {
		_, ok := rt.Control().Stats()["scheduler.tasksRun"]
		return ok
	}, 2*time.Second, 5*time.Millisecond, "metrics refresh interval")

	stats := rt.Stats()
	assert.Contains(t, stats, "pool.pages")
	assert.Contains(t, stats, "debug.pool")
	assert.Equal(t, rt.ID().String(), stats["debug.runtime.id"])

	info := rt.Info()
	assert.Equal(t, "hioload-rt", info.Name)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, AllocatorPooled, info.Allocator)
	assert.False(t, info.StartedAt.IsZero())

	require.NoError(t, rt.Shutdown())
	assert.False(t, rt.Scheduler().IsActive())
	assert.ErrorIs(t, rt.Executor().Submit(func() {}), api.ErrNotStarted)

	require.NoError(t, rt.Start(), "restart after stop")
	rt.Stop()
}

func TestRuntimeTrackingAllocator(t *testing.T) {
	rt, err := New(testConfig(AllocatorTracking))
	require.NoError(t, err)
	tr, ok := rt.Allocator().(*memory.Tracking)
	require.True(t, ok)

	b := rt.Memory().Malloc(48)
	assert.Len(t, b, 48)
	assert.Equal(t, 1, tr.Stats().Live)
	assert.Contains(t, rt.Stats(), "tracking.live")
	rt.Memory().Free(b)
	assert.Equal(t, 0, tr.Stats().Live)
}

func TestRuntimeWithArena(t *testing.T) {
	rt, err := New(testConfig(AllocatorPassthrough))
	require.NoError(t, err)
	rt.WithArena(func(a *arena.Linear) {
		b := rt.Memory().Malloc(100)
		assert.True(t, a.IsValid(b))
		assert.True(t, rt.Memory().IsValidAddress(b))
		rt.Memory().Free(b)
		assert.Equal(t, 1, a.Regions())
	})
	assert.Nil(t, rt.Memory().Local())
}

func TestRuntimeReloadLogLevel(t *testing.T) {
	prev := logging.CurrentLevel()
	defer logging.SetLevel(prev)

	rt, err := New(testConfig(AllocatorPassthrough))
	require.NoError(t, err)
	assert.Equal(t, logging.LevelError, logging.CurrentLevel())
	assert.Equal(t, "error", rt.Control().GetConfig()["runtime.logLevel"])

	require.NoError(t, rt.Control().SetConfig(map[string]any{"runtime.logLevel": "debug"}))
	assert.Equal(t, logging.LevelDebug, logging.CurrentLevel())
}

func TestRuntimeImmediateMode(t *testing.T) {
	cfg := testConfig(AllocatorPassthrough)
	cfg.Scheduler.Parallel = false
	cfg.MetricsInterval = 0
	rt, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, rt.Start())
	assert.Equal(t, 1, rt.Executor().NumWorkers())

	ran := false
	require.NoError(t, rt.Executor().Submit(func() { ran = true }))
	assert.True(t, ran)
	rt.Stop()
}

func TestRuntimeTracing(t *testing.T) {
	cfg := testConfig(AllocatorPassthrough)
	cfg.MetricsInterval = 0
	cfg.Tracing = TracingConfig{Enabled: true, Output: filepath.Join(t.TempDir(), "trace.json")}
	rt, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, rt.Start())

	done := make(chan struct{})
	require.NoError(t, rt.Executor().Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	require.NoError(t, rt.Shutdown())

	data, err := os.ReadFile(cfg.Tracing.Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "executor.task")
	assert.Contains(t, string(data), "runtime.start")
	assert.Contains(t, string(data), "runtime.stop")
}
