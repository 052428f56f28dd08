// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration snapshot, runtime metrics and debug introspection for
// hioload-rt.
//
// Provides concurrent-safe primitives:
//   - ConfigStore: flat config snapshot with reload listeners
//   - MetricsRegistry: gauges and counters exported as a snapshot
//   - DebugProbes: named probes evaluated on demand
//
// Platform probes are build-tag-partitioned.
package control
