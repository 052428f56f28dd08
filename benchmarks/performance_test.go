// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-rt components.

package benchmarks

import (
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/arena"
	"github.com/momentics/hioload-rt/facade"
	"github.com/momentics/hioload-rt/fiber"
	"github.com/momentics/hioload-rt/memory"
	"github.com/momentics/hioload-rt/pool"
)

func benchAllocator(b *testing.B, a api.Allocator, size int) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		blk := a.Allocate(size, api.Origin{})
		blk[0] = byte(i)
		a.Free(blk)
	}
}

// BenchmarkPooledAllocation tests slot reuse of the pooled allocator.
func BenchmarkPooledAllocation(b *testing.B) {
	benchAllocator(b, pool.Default(), 256)
}

// BenchmarkPooledAllocationParallel contends on one pooled allocator.
func BenchmarkPooledAllocationParallel(b *testing.B) {
	a := pool.New(pool.DefaultConfig())
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			a.Free(a.Allocate(512, api.Origin{}))
		}
	})
}

// BenchmarkPassthroughAllocation is the system allocator baseline.
func BenchmarkPassthroughAllocation(b *testing.B) {
	benchAllocator(b, memory.NewPassthrough(), 256)
}

// BenchmarkTrackingAllocation measures bookkeeping overhead.
func BenchmarkTrackingAllocation(b *testing.B) {
	benchAllocator(b, memory.NewTracking(), 256)
}

// BenchmarkLinearArena bumps and resets one region.
func BenchmarkLinearArena(b *testing.B) {
	a := arena.NewLinear(arena.DefaultConfig())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if i%128 == 0 {
			a.Reset()
		}
		a.Allocate(256, api.Origin{})
	}
}

// BenchmarkStackArena pushes and pops one frame.
func BenchmarkStackArena(b *testing.B) {
	benchAllocator(b, arena.NewStack(arena.DefaultConfig()), 256)
}

// BenchmarkFiberSwitch measures a suspend/resume round trip on one host.
func BenchmarkFiberSwitch(b *testing.B) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h := fiber.NewHost(fiber.Options{Name: "bench"})
		defer h.Close()
		f := h.Pop(func(f *fiber.Fiber) {
			for {
				f.Deactivate()
			}
		})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			h.Execute(f)
			f.Activate()
		}
	}()
	<-done
}

// BenchmarkFacadeTasks tests end-to-end task submission through the facade.
func BenchmarkFacadeTasks(b *testing.B) {
	config := facade.DefaultConfig()
	config.LogLevel = "error"
	config.MetricsInterval = 0
	config.Scheduler.PollTimeout = 10 * time.Millisecond
	rt, err := facade.New(config)
	if err != nil {
		b.Fatal(err)
	}
	if err := rt.Start(); err != nil {
		b.Fatal(err)
	}
	defer rt.Shutdown()

	var wg sync.WaitGroup
	exec := rt.Executor()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		if err := exec.Submit(wg.Done); err != nil {
			b.Fatal(err)
		}
	}
	wg.Wait()
}
