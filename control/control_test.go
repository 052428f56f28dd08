// control/control_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStoreReload(t *testing.T) {
	cs := NewConfigStore()
	calls := 0
	cs.OnReload(func() { calls++ })
	cs.SetConfig(map[string]any{"a": 1, "b": "x"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"a", "b"}, cs.Keys())
	v, ok := cs.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	snap := cs.GetSnapshot()
	snap["a"] = 2
	v, _ = cs.Get("a")
	assert.Equal(t, 1, v)
}

func TestFlatten(t *testing.T) {
	type inner struct {
		Timeout time.Duration `yaml:"timeout"`
		Skip    func()        `yaml:"-"`
	}
	type outer struct {
		Name  string `yaml:"name"`
		Inner inner  `yaml:"inner"`
	}
	out, err := Flatten("rt", outer{Name: "n", Inner: inner{Timeout: time.Second}})
	require.NoError(t, err)
	assert.Equal(t, "n", out["rt.name"])
	assert.Contains(t, out, "rt.inner.timeout")
	assert.NotContains(t, out, "rt.inner.skip")
}

func TestMetricsRegistry(t *testing.T) {
	mr := NewMetricsRegistry()
	assert.True(t, mr.Updated().IsZero())
	mr.Set("pool.pages", 3)
	assert.EqualValues(t, 2, mr.Add("scheduler.stops", 2))
	assert.EqualValues(t, 3, mr.Add("scheduler.stops", 1))
	snap := mr.GetSnapshot()
	assert.Equal(t, 3, snap["pool.pages"])
	assert.EqualValues(t, 3, snap["scheduler.stops"])
	assert.False(t, mr.Updated().IsZero())
}

func TestDebugProbes(t *testing.T) {
	dp := NewDebugProbes()
	RegisterPlatformProbes(dp)
	dp.RegisterProbe("answer", func() any { return 42 })
	state := dp.DumpState()
	assert.Equal(t, 42, state["answer"])
	assert.Contains(t, state, "platform.cpus")
	dp.UnregisterProbe("answer")
	assert.NotContains(t, dp.DumpState(), "answer")
}
