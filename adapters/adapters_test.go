package adapters_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rt/adapters"
	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/scheduler"
)

func TestAffinityAdapter(t *testing.T) {
	a := adapters.NewAffinityAdapter()
	cpu, pinned := a.Get()
	assert.Equal(t, -1, cpu)
	assert.False(t, pinned)

	assert.ErrorIs(t, a.Pin(-5), api.ErrInvalidArgument)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Pin(0); err != nil {
			t.Logf("pin unsupported here: %v", err)
			return
		}
		cpu, pinned := a.Get()
		assert.True(t, pinned)
		assert.Equal(t, 0, cpu)
		assert.NoError(t, a.Unpin())
		_, pinned = a.Get()
		assert.False(t, pinned)
	}()
	<-done
}

func TestExecutorAdapter(t *testing.T) {
	s := scheduler.New()
	ex := adapters.NewExecutorAdapter(s)
	assert.ErrorIs(t, ex.Submit(func() {}), api.ErrNotStarted)
	assert.Zero(t, ex.NumWorkers())

	cfg := scheduler.DefaultConfig()
	cfg.Cores = 2
	cfg.TaskThreads = 2
	cfg.PollTimeout = 10 * time.Millisecond
	require.NoError(t, s.Start(cfg))
	defer s.Stop()

	assert.Equal(t, 2, ex.NumWorkers())
	assert.ErrorIs(t, ex.Submit(nil), api.ErrInvalidArgument)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, ex.Submit(func() { ran.Add(1) }))
	}
	assert.Eventually(t, func() bool { return ran.Load() == 10 }, 2*time.Second, time.Millisecond)
}
