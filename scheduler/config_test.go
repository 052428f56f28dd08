// File: scheduler/config_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/momentics/hioload-rt/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigNormalizedThreadCounts(t *testing.T) {
	cases := []struct {
		cores, coro, task int
	}{
		{cores: 1, coro: 1, task: 1},
		{cores: 3, coro: 1, task: 1},
		{cores: 10, coro: 2, task: 7},
		{cores: 20, coro: 4, task: 15},
	}
	for _, tc := range cases {
		c := Config{Cores: tc.cores}.Normalized()
		assert.Equal(t, tc.coro, c.CoroutineThreads, "cores=%d", tc.cores)
		assert.Equal(t, tc.task, c.TaskThreads, "cores=%d", tc.cores)
		assert.Equal(t, 1, c.TimerThreads)
	}
}

func TestConfigNormalizedKeepsExplicitValues(t *testing.T) {
	c := Config{Cores: 8, TaskThreads: 2, PollTimeout: time.Second}.Normalized()
	assert.Equal(t, 2, c.TaskThreads)
	assert.Equal(t, time.Second, c.PollTimeout)
	assert.Equal(t, DefaultConfig().MaxFibers, c.MaxFibers)
	assert.NoError(t, c.Validate())
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{TimerThreads: 2},
		{TaskThreads: -1},
		{PollTimeout: -time.Second},
		{Daemon: true},
	}
	for _, c := range bad {
		assert.ErrorIs(t, c.Normalized().Validate(), api.ErrInvalidConfig, "%+v", c)
	}
}

func TestConfigValidateNamesField(t *testing.T) {
	err := Config{TaskThreads: -4}.Normalized().Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "scheduler: taskThreads -4")
	assert.Contains(t, err.Error(), api.ErrInvalidConfig.Error())
	assert.Contains(t, fmt.Sprintf("%+v", err), "Config.Validate", "wrap site keeps its stack")

	err = Config{Daemon: true}.Normalized().Validate()
	assert.True(t, errors.Is(err, api.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "daemon mode requires parallel")
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	s := New()
	err := s.Start(Config{TimerThreads: 3, Parallel: true})
	assert.ErrorIs(t, err, api.ErrInvalidConfig)
	assert.False(t, s.IsActive())
}

func TestConfigYAML(t *testing.T) {
	src := `
cores: 4
taskThreads: 3
maxFibers: 64
pollTimeout: 250ms
parallel: true
pinThreads: true
`
	var c Config
	require.NoError(t, yaml.Unmarshal([]byte(src), &c))
	assert.Equal(t, 4, c.Cores)
	assert.Equal(t, 3, c.TaskThreads)
	assert.Equal(t, 64, c.MaxFibers)
	assert.Equal(t, 250*time.Millisecond, c.PollTimeout)
	assert.True(t, c.Parallel)
	assert.True(t, c.PinThreads)
}
