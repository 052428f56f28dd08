// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration snapshot store with reload listeners.

package control

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ConfigStore is a flat key/value view of the runtime configuration.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
}

// NewConfigStore initializes an empty store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{config: make(map[string]any)}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns one value.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig merges values and runs the reload listeners on the caller's
// goroutine once the store is unlocked.
func (cs *ConfigStore) SetConfig(values map[string]any) {
	cs.mu.Lock()
	for k, v := range values {
		cs.config[k] = v
	}
	listeners := append([]func(){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnReload registers a listener called after every SetConfig.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// Keys returns the stored keys in order.
func (cs *ConfigStore) Keys() []string {
	cs.mu.RLock()
	keys := make([]string, 0, len(cs.config))
	for k := range cs.config {
		keys = append(keys, k)
	}
	cs.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Flatten renders v through its yaml tags into dotted keys under prefix,
// e.g. "scheduler.pollTimeout".
func Flatten(prefix string, v any) (map[string]any, error) {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "control: flatten %s", prefix)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, errors.Wrapf(err, "control: flatten %s", prefix)
	}
	out := make(map[string]any)
	flatten(out, prefix, tree)
	return out, nil
}

func flatten(out map[string]any, prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(out, key, sub)
			continue
		}
		out[key] = v
	}
}
