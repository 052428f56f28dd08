// File: memory/tracking.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tracking allocator: system-backed blocks with per-block provenance,
// double/untracked free detection and a leak report at Finalize.

package memory

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/clock"
	"github.com/momentics/hioload-rt/internal/concurrency"
	"github.com/momentics/hioload-rt/internal/fatal"
	"github.com/momentics/hioload-rt/internal/logging"
	"github.com/momentics/hioload-rt/internal/sysmem"
)

// benignPrefixes name container internals that routinely outlive shutdown.
var benignPrefixes = []string{"map[", "chan ", "[]"}

// recentFreed bounds the history used to tell a double free from a free of
// an address this allocator never saw.
const recentFreed = 4096

// TrackedBlock is the provenance record of one owned or watched block.
type TrackedBlock struct {
	Address   uintptr
	ThreadID  int
	Origin    api.Origin
	Timestamp time.Time
	Size      int
	Active    bool
	Static    bool // watched, not owned

	block []byte
}

func (b *TrackedBlock) String() string {
	kind := "owned"
	if b.Static {
		kind = "watched"
	}
	return fmt.Sprintf("%#x %d bytes %s thread=%d at %s (%s)",
		b.Address, b.Size, kind, b.ThreadID, b.Origin, b.Timestamp.Format(time.RFC3339Nano))
}

// TrackingStats is a snapshot of the allocator's bookkeeping.
type TrackingStats struct {
	Live      int
	LiveBytes int64
	Watched   int
	Allocs    uint64
	Frees     uint64
}

// Tracking is safe for concurrent use.
type Tracking struct {
	mu      sync.Mutex
	owned   map[uintptr]*TrackedBlock
	watched map[uintptr]*TrackedBlock
	freed   map[uintptr]api.Origin
	allocs  uint64
	frees   uint64
	log     *logging.Logger
}

var _ api.Allocator = (*Tracking)(nil)

// NewTracking returns an empty tracking allocator.
func NewTracking() *Tracking {
	return &Tracking{
		owned:   make(map[uintptr]*TrackedBlock),
		watched: make(map[uintptr]*TrackedBlock),
		freed:   make(map[uintptr]api.Origin),
		log:     logging.New("memory"),
	}
}

func newRecord(block []byte, origin api.Origin, static bool) *TrackedBlock {
	return &TrackedBlock{
		Address:   api.AddressOf(block),
		ThreadID:  concurrency.ThreadID(),
		Origin:    origin,
		Timestamp: clock.Now(),
		Size:      len(block),
		Active:    true,
		Static:    static,
		block:     block,
	}
}

// Allocate returns a system block and records its origin.
func (t *Tracking) Allocate(size int, origin api.Origin) []byte {
	b := systemBlock(size)
	t.adopt(b, origin)
	return b
}

func (t *Tracking) adopt(b []byte, origin api.Origin) {
	rec := newRecord(b, origin, false)
	t.mu.Lock()
	t.owned[rec.Address] = rec
	delete(t.freed, rec.Address)
	t.allocs++
	t.mu.Unlock()
}

// Free releases an owned block. Double free and free of an untracked address
// are contract violations.
func (t *Tracking) Free(block []byte) {
	addr := api.AddressOf(block)
	t.mu.Lock()
	rec, ok := t.owned[addr]
	if !ok {
		prev, seen := t.freed[addr]
		t.mu.Unlock()
		if seen {
			fatal.Violation("memory: double free of %#x allocated at %s", addr, prev)
		}
		fatal.Violation("memory: free of untracked address %#x", addr)
		return
	}
	delete(t.owned, addr)
	if len(t.freed) >= recentFreed {
		t.freed = make(map[uintptr]api.Origin)
	}
	t.freed[addr] = rec.Origin
	t.frees++
	t.mu.Unlock()
	rec.Active = false
	sysmem.Release(rec.block)
}

// Transfer adopts a block allocated before this allocator was installed.
func (t *Tracking) Transfer(block []byte, origin api.Origin) {
	if cap(block) == 0 {
		return
	}
	t.adopt(block, origin)
}

// Watch records external memory for leak reporting.
func (t *Tracking) Watch(block []byte, origin api.Origin) {
	if cap(block) == 0 {
		return
	}
	rec := newRecord(block, origin, true)
	t.mu.Lock()
	t.watched[rec.Address] = rec
	t.mu.Unlock()
}

// Unwatch drops a watched block. Unknown blocks are ignored.
func (t *Tracking) Unwatch(block []byte) {
	addr := api.AddressOf(block)
	t.mu.Lock()
	delete(t.watched, addr)
	t.mu.Unlock()
}

// IsValid reports whether block is owned or watched.
func (t *Tracking) IsValid(block []byte) bool {
	addr := api.AddressOf(block)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.owned[addr]; ok {
		return true
	}
	_, ok := t.watched[addr]
	return ok
}

func (t *Tracking) IsFinalizable() bool { return true }

// Finalize logs every outstanding block that is not a known-benign
// container internal.
func (t *Tracking) Finalize() {
	var sb strings.Builder
	if n := t.Report(&sb); n > 0 {
		t.log.Errorf("%d outstanding block(s):\n%s", n, strings.TrimRight(sb.String(), "\n"))
		return
	}
	t.log.Debugf("no outstanding blocks")
}

// Report writes one line per outstanding block to w, oldest first, and
// returns how many were written.
func (t *Tracking) Report(w io.Writer) int {
	t.mu.Lock()
	recs := make([]*TrackedBlock, 0, len(t.owned)+len(t.watched))
	for _, r := range t.owned {
		recs = append(recs, r)
	}
	for _, r := range t.watched {
		recs = append(recs, r)
	}
	t.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Address < recs[j].Address
		}
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
	n := 0
	for _, r := range recs {
		if isBenign(r.Origin.TypeName) {
			continue
		}
		fmt.Fprintln(w, r)
		n++
	}
	return n
}

// Dump returns the provenance of the block starting at addr.
func (t *Tracking) Dump(addr uintptr) (TrackedBlock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.owned[addr]; ok {
		return *r, true
	}
	if r, ok := t.watched[addr]; ok {
		return *r, true
	}
	return TrackedBlock{}, false
}

// Stats returns a bookkeeping snapshot.
func (t *Tracking) Stats() TrackingStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := TrackingStats{
		Live:    len(t.owned),
		Watched: len(t.watched),
		Allocs:  t.allocs,
		Frees:   t.frees,
	}
	for _, r := range t.owned {
		s.LiveBytes += int64(r.Size)
	}
	return s
}

func isBenign(typeName string) bool {
	for _, p := range benignPrefixes {
		if strings.HasPrefix(typeName, p) {
			return true
		}
	}
	return false
}
