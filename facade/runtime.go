// File: facade/runtime.go
// Unified facade layer for hioload-rt.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime aggregates the memory facade, the selected global allocator, the
// scheduler and the control surface behind one object built from Config.

package facade

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/momentics/hioload-rt/adapters"
	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/arena"
	"github.com/momentics/hioload-rt/internal/clock"
	"github.com/momentics/hioload-rt/internal/logging"
	"github.com/momentics/hioload-rt/internal/sysmem"
	"github.com/momentics/hioload-rt/internal/tracing"
	"github.com/momentics/hioload-rt/memory"
	"github.com/momentics/hioload-rt/pool"
	"github.com/momentics/hioload-rt/scheduler"
)

// Version of the runtime reported by Info.
const Version = "0.1.0"

// Runtime is the main facade type.
type Runtime struct {
	config *Config
	id     uuid.UUID

	mem       *memory.Facade
	allocator api.Allocator
	sched     *scheduler.Scheduler
	executor  *adapters.ExecutorAdapter
	control   *adapters.ControlAdapter
	tracer    *tracing.Tracer
	traceOut  io.Closer

	mu        sync.Mutex
	started   bool
	startedAt time.Time
	refresh   api.TimerID

	log *logging.Logger
}

var _ api.GracefulShutdown = (*Runtime)(nil)

// New builds a stopped runtime. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	applyLogLevel(cfg.LogLevel)

	r := &Runtime{
		config:  cfg,
		id:      uuid.New(),
		mem:     memory.NewFacade(),
		sched:   scheduler.New(),
		control: adapters.NewControlAdapter(),
		log:     logging.New("facade"),
	}
	r.executor = adapters.NewExecutorAdapter(r.sched)
	if cfg.Tracing.Enabled {
		if err := r.initTracing(); err != nil {
			return nil, err
		}
		r.executor.WithTaskWrapper(func(fn func()) func() {
			return r.tracer.Wrap("executor.task", fn)
		})
	}

	switch cfg.Allocator {
	case AllocatorTracking:
		r.allocator = memory.NewTracking()
	case AllocatorPooled:
		r.allocator = pool.New(cfg.Pool)
	default:
		r.allocator = memory.NewPassthrough()
	}
	r.mem.SetGlobalAllocator(r.allocator)

	if err := r.control.PublishConfig("runtime", cfg); err != nil {
		return nil, err
	}
	r.control.OnReload(r.reload)
	r.registerProbes()
	r.log.Infof("runtime %s created: allocator=%s", r.id, cfg.Allocator)
	return r, nil
}

func (r *Runtime) initTracing() error {
	var w io.Writer = os.Stdout
	if path := r.config.Tracing.Output; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "facade: tracing output")
		}
		w, r.traceOut = f, f
	}
	tr, err := tracing.New(r.config.Name, Version, w)
	if err != nil {
		return err
	}
	r.tracer = tr
	return nil
}

// span records one lifecycle step when tracing is on.
func (r *Runtime) span(name string) func() {
	if r.tracer == nil {
		return func() {}
	}
	_, sp := r.tracer.Start(context.Background(), name, map[string]string{"runtime.id": r.id.String()})
	return func() { sp.End() }
}

func applyLogLevel(name string) {
	if name == "" {
		return
	}
	logging.SetLevel(logging.ParseLevel(strings.ToUpper(name)))
}

// reload applies the only hot-reloadable setting.
func (r *Runtime) reload() {
	if v, ok := r.control.GetConfig()["runtime.logLevel"].(string); ok {
		applyLogLevel(v)
	}
}

func (r *Runtime) registerProbes() {
	r.control.RegisterDebugProbe("runtime.id", func() any { return r.id.String() })
	r.control.RegisterDebugProbe("runtime.uptime", func() any {
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.started {
			return time.Duration(0)
		}
		return clock.Since(r.startedAt)
	})
	r.control.RegisterDebugProbe("scheduler", func() any { return r.sched.Stats() })
	r.control.RegisterDebugProbe("memory.pending", func() any { return r.mem.Pending() })
	r.control.RegisterDebugProbe("sysmem", func() any {
		count, bytes := sysmem.Stats()
		return map[string]any{"mappings": count, "bytes": bytes}
	})
	switch a := r.allocator.(type) {
	case *pool.Allocator:
		r.control.RegisterDebugProbe("pool", func() any { return a.Stats() })
	case *memory.Tracking:
		r.control.RegisterDebugProbe("tracking", func() any { return a.Stats() })
	}
}

// publishMetrics copies counters into the metrics registry.
func (r *Runtime) publishMetrics() {
	st := r.sched.Stats()
	r.control.SetMetric("scheduler.tasksRun", st.TasksRun)
	r.control.SetMetric("scheduler.timersFired", st.TimersFired)
	r.control.SetMetric("scheduler.dispatches", st.Dispatches)
	r.control.SetMetric("scheduler.coroutines", st.Coroutines)
	r.control.SetMetric("scheduler.liveFibers", st.LiveFibers)
	r.control.SetMetric("scheduler.queuedTasks", st.QueuedTasks)
	switch a := r.allocator.(type) {
	case *pool.Allocator:
		ps := a.Stats()
		r.control.SetMetric("pool.pages", ps.Pages)
		r.control.SetMetric("pool.liveSlots", ps.LiveSlots)
		r.control.SetMetric("pool.hits", ps.Hits)
		r.control.SetMetric("pool.misses", ps.Misses)
	case *memory.Tracking:
		ts := a.Stats()
		r.control.SetMetric("tracking.live", ts.Live)
		r.control.SetMetric("tracking.liveBytes", ts.LiveBytes)
	}
}

// Start runs the scheduler. In daemon mode it returns once the scheduler
// stops.
func (r *Runtime) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.Wrap(api.ErrAlreadyStarted, "facade: start")
	}
	r.started = true
	r.startedAt = clock.Now()
	if r.config.MetricsInterval > 0 {
		r.refresh = r.sched.SetInterval(r.config.MetricsInterval, r.publishMetrics)
	}
	r.mu.Unlock()

	cfg := r.config.Scheduler
	cfg.Memory = r.mem
	r.log.Infof("starting %s (%s)", r.config.Name, r.id)
	end := r.span("runtime.start")
	err := r.sched.Start(cfg)
	end()
	if err != nil {
		r.mu.Lock()
		r.started = false
		r.sched.ClearTimeout(r.refresh)
		r.mu.Unlock()
		return err
	}
	if cfg.Daemon {
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
		r.publishMetrics()
	}
	return nil
}

// Stop halts the scheduler. The runtime may be started again. In immediate
// mode a call from a thread other than the starting one only requests the
// stop; the starting thread completes it on its next Poll or Wait.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()
	end := r.span("runtime.stop")
	r.sched.Stop()
	end()
	r.publishMetrics()
	r.log.Infof("stopped %s", r.id)
}

// Shutdown stops the runtime, reports outstanding allocations and flushes
// traces.
func (r *Runtime) Shutdown() error {
	r.Stop()
	r.mem.Finalize()
	if r.tracer == nil {
		return nil
	}
	err := r.tracer.Shutdown(context.Background())
	if r.traceOut != nil {
		if cerr := r.traceOut.Close(); err == nil {
			err = cerr
		}
		r.traceOut = nil
	}
	return err
}

// WithArena runs fn on a locked OS thread whose local allocator is a fresh
// linear arena. Blocks taken from it are invalid once fn returns.
func (r *Runtime) WithArena(fn func(a *arena.Linear)) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	a := arena.NewLinear(r.config.Arena)
	r.mem.SetLocalAllocator(a)
	defer func() {
		r.mem.SetLocalAllocator(nil)
		a.FlushRegions()
	}()
	fn(a)
}

// Stats refreshes and returns metrics merged with debug probes.
func (r *Runtime) Stats() map[string]any {
	r.publishMetrics()
	return r.control.Stats()
}

// Info describes this runtime instance.
func (r *Runtime) Info() api.ServiceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return api.ServiceInfo{
		Name:      r.config.Name,
		Version:   Version,
		ID:        r.id.String(),
		Allocator: r.config.Allocator,
		StartedAt: r.startedAt,
	}
}

// ID returns the instance id.
func (r *Runtime) ID() uuid.UUID { return r.id }

// Config returns the configuration of this runtime.
func (r *Runtime) Config() Config { return *r.config }

// Memory returns the allocation entry point used for fiber scratch buffers.
func (r *Runtime) Memory() *memory.Facade { return r.mem }

// Allocator returns the installed global allocator.
func (r *Runtime) Allocator() api.Allocator { return r.allocator }

// Scheduler returns the scheduler.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.sched }

// Executor exposes task submission as api.Executor.
func (r *Runtime) Executor() api.Executor { return r.executor }

// Control exposes config, metrics and probes.
func (r *Runtime) Control() api.Control { return r.control }

// Debug exposes the probe registry.
func (r *Runtime) Debug() api.Debug { return r.control.Debug() }

// Affinity returns a pinning handle for the calling goroutine.
func (r *Runtime) Affinity() api.Affinity { return adapters.NewAffinityAdapter() }
