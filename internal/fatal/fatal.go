// File: internal/fatal/fatal.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide fatal error and assertion facility. Resource exhaustion and
// contract violations never travel as error values: they are reported here
// and the process terminates. Tests swap the handler to observe them.

package fatal

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync/atomic"

	"github.com/momentics/hioload-rt/internal/concurrency"
	"github.com/momentics/hioload-rt/internal/logging"
)

// Kind classifies a fatal condition.
type Kind int

const (
	// ResourceExhaustion is an out-of-memory condition.
	ResourceExhaustion Kind = iota + 1
	// ContractViolation is a programming error: thread-affinity breach,
	// double free, free of an untracked address, stale fiber handle.
	ContractViolation
)

func (k Kind) String() string {
	switch k {
	case ResourceExhaustion:
		return "resource-exhaustion"
	case ContractViolation:
		return "contract-violation"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Report describes one fatal condition.
type Report struct {
	Kind     Kind
	ThreadID int
	Context  string // current execution context, empty if unknown
	Message  string
	Stack    []byte
}

// Error makes a Report usable as an error value once recovered in tests.
func (r Report) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

// Handler receives a Report. It must not return normally; if it does the
// caller panics with the Report.
type Handler func(Report)

var (
	handler atomic.Pointer[Handler]
	lookup  atomic.Pointer[func() string]
	log     = logging.New("fatal")
)

// SetHandler installs h and returns a func restoring the previous handler.
func SetHandler(h Handler) (restore func()) {
	prev := handler.Swap(&h)
	return func() { handler.Store(prev) }
}

// PanicHandler panics with the Report instead of terminating the process.
func PanicHandler(r Report) { panic(r) }

// SetContextLookup installs the optional execution context lookup used to
// enrich reports. Without it the context stays empty.
func SetContextLookup(fn func() string) (restore func()) {
	prev := lookup.Swap(&fn)
	return func() { lookup.Store(prev) }
}

// Violation reports a contract violation.
func Violation(format string, args ...any) {
	raise(ContractViolation, fmt.Sprintf(format, args...))
}

// Exhausted reports resource exhaustion.
func Exhausted(format string, args ...any) {
	raise(ResourceExhaustion, fmt.Sprintf(format, args...))
}

// Assert reports a contract violation unless cond holds.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		raise(ContractViolation, fmt.Sprintf(format, args...))
	}
}

func raise(kind Kind, msg string) {
	r := Report{
		Kind:     kind,
		ThreadID: concurrency.ThreadID(),
		Message:  msg,
		Stack:    debug.Stack(),
	}
	if fn := lookup.Load(); fn != nil && *fn != nil {
		r.Context = (*fn)()
	}
	if h := handler.Load(); h != nil && *h != nil {
		(*h)(r)
	} else {
		abort(r)
	}
	panic(r)
}

func abort(r Report) {
	log.With("thread", r.ThreadID, "kind", r.Kind.String(), "ctx", r.Context).
		Fatalf("%s\n%s", r.Message, r.Stack)
	_ = logging.Sync()
	fmt.Fprintf(os.Stderr, "fatal: thread=%d %s: %s\n", r.ThreadID, r.Kind, r.Message)
	os.Exit(2)
}

// Catch runs fn with PanicHandler installed and returns the report raised on
// the calling goroutine, if any. Other panics propagate.
func Catch(fn func()) (r Report, raised bool) {
	restore := SetHandler(PanicHandler)
	defer restore()
	defer func() {
		if v := recover(); v != nil {
			rep, ok := v.(Report)
			if !ok {
				panic(v)
			}
			r, raised = rep, true
		}
	}()
	fn()
	return r, false
}
