// Package scheduler
// Author: momentics <momentics@gmail.com>
//
// Multi-class scheduler for hioload-rt. Workers are goroutines locked to OS
// threads, each serving one workload class:
//
//   - Coroutine workers own a fiber.Host and multiplex submitted fiber bodies.
//   - Task workers run plain callbacks to completion in FIFO batches.
//   - The timer worker fires due timeouts and intervals by handing their
//     callbacks to the task queue.
//
// With Config.Parallel unset the scheduler runs in immediate mode: tasks and
// coroutines run inline on the thread that called Start and Poll drives
// timers and resumed fibers.
package scheduler
