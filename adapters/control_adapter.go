// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control interface using control package primitives.

package adapters

import (
	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/control"
)

type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(adapter.debug)
	return adapter
}

func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	if cfg == nil {
		return api.ErrInvalidArgument
	}
	c.config.SetConfig(cfg)
	c.metrics.Add("control.reloads", 1)
	return nil
}

// PublishConfig flattens a yaml-tagged config struct under prefix.
func (c *ControlAdapter) PublishConfig(prefix string, v any) error {
	flat, err := control.Flatten(prefix, v)
	if err != nil {
		return err
	}
	return c.SetConfig(flat)
}

// Stats merges metrics with evaluated probes under "debug.".
func (c *ControlAdapter) Stats() map[string]any {
	stats := c.metrics.GetSnapshot()
	debugStats := c.debug.DumpState()
	combined := make(map[string]any, len(stats)+len(debugStats))
	for k, v := range stats {
		combined[k] = v
	}
	for k, v := range debugStats {
		combined["debug."+k] = v
	}
	return combined
}

func (c *ControlAdapter) OnReload(fn func()) {
	c.config.OnReload(fn)
}

func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

func (c *ControlAdapter) AddMetric(key string, delta int64) int64 {
	return c.metrics.Add(key, delta)
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

func (c *ControlAdapter) UnregisterDebugProbe(name string) {
	c.debug.UnregisterProbe(name)
}

// Debug exposes the probe registry as api.Debug.
func (c *ControlAdapter) Debug() api.Debug {
	return c.debug
}
