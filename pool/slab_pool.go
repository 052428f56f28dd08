// File: pool/slab_pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pooled allocator: requests are grouped by exact size into classes, each
// class owning pages of fixed-size slots carved from one system block.

package pool

import (
	"sync"
	"time"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/clock"
	"github.com/momentics/hioload-rt/internal/fatal"
	"github.com/momentics/hioload-rt/internal/logging"
	"github.com/momentics/hioload-rt/internal/sysmem"
)

// maxFrequencyBoost bounds how much a hot class can grow its pages.
const maxFrequencyBoost = 4.0

// slotPage is one system block split into capacity slots of elemSize bytes.
type slotPage struct {
	class    *sizeClass
	buf      []byte
	elemSize int
	capacity int
	free     []int32
	created  time.Time
}

func newSlotPage(c *sizeClass, capacity int) *slotPage {
	p := &slotPage{
		class:    c,
		buf:      sysmem.Alloc(capacity * c.elemSize),
		elemSize: c.elemSize,
		capacity: capacity,
		free:     make([]int32, capacity),
		created:  clock.Now(),
	}
	// Lowest slot is handed out first.
	for i := range p.free {
		p.free[i] = int32(capacity - 1 - i)
	}
	return p
}

func (p *slotPage) take() int32 {
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return idx
}

func (p *slotPage) slot(idx int32, size int) []byte {
	off := int(idx) * p.elemSize
	return p.buf[off : off+size : off+p.elemSize]
}

func (p *slotPage) full() bool { return len(p.free) == p.capacity }

// sizeClass groups the pages serving one request size.
type sizeClass struct {
	size     int
	elemSize int
	pages    []*slotPage
	allocs   uint64
}

type slotRef struct {
	page *slotPage
	idx  int32
}

// Stats is a snapshot of pooled allocator bookkeeping.
type Stats struct {
	Pages     int
	Classes   int
	LiveSlots int
	Foreign   int
	Hits      uint64
	Misses    uint64
	Frees     uint64
}

// Allocator is safe for concurrent use.
type Allocator struct {
	cfg Config

	mu      sync.Mutex
	classes map[int]*sizeClass
	live    map[uintptr]slotRef
	foreign map[uintptr][]byte
	pages   int
	hits    uint64
	misses  uint64
	frees   uint64

	log *logging.Logger
}

var _ api.Allocator = (*Allocator)(nil)

// New creates a pooled allocator. cfg must be valid.
func New(cfg Config) *Allocator {
	if err := cfg.Validate(); err != nil {
		fatal.Violation("%v", err)
	}
	return &Allocator{
		cfg:     cfg,
		classes: make(map[int]*sizeClass),
		live:    make(map[uintptr]slotRef),
		foreign: make(map[uintptr][]byte),
		log:     logging.New("pool"),
	}
}

// Config returns the allocator settings.
func (a *Allocator) Config() Config { return a.cfg }

// Allocate returns a slot of exactly size bytes.
func (a *Allocator) Allocate(size int, _ api.Origin) []byte {
	if size < 0 {
		fatal.Violation("pool: negative allocation size %d", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	c := a.classes[size]
	if c == nil {
		elem := size
		if elem == 0 {
			elem = 1
		}
		c = &sizeClass{size: size, elemSize: elem}
		a.classes[size] = c
	}
	c.allocs++

	var page *slotPage
	for i := len(c.pages) - 1; i >= 0; i-- {
		if len(c.pages[i].free) > 0 {
			page = c.pages[i]
			break
		}
	}
	if page == nil {
		n := a.elementsFor(c)
		page = newSlotPage(c, n)
		c.pages = append(c.pages, page)
		a.pages++
		a.misses++
		a.log.Debugf("new page size=%d slots=%d pages=%d", size, n, a.pages)
	} else {
		a.hits++
	}
	idx := page.take()
	b := page.slot(idx, size)
	a.live[api.AddressOf(b)] = slotRef{page: page, idx: idx}
	return b
}

// elementsFor sizes a new page of class c. Large elements shrink the page;
// classes allocated more often than the mean of the active classes grow it.
func (a *Allocator) elementsFor(c *sizeClass) int {
	n := a.cfg.MaxElementsPerPage
	if c.size > a.cfg.ReducingBase {
		n /= (c.size / a.cfg.ReducingBase) * a.cfg.ReducingFactor
	}

	var total uint64
	active := 0
	for _, other := range a.classes {
		if other == c || len(other.pages) > 0 {
			total += other.allocs
			active++
		}
	}
	if active > 1 && total > 0 {
		mean := float64(total) / float64(active)
		if ratio := float64(c.allocs) / mean; ratio > 1 {
			if ratio > maxFrequencyBoost {
				ratio = maxFrequencyBoost
			}
			n = int(float64(n) * ratio)
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Free returns a slot to its page, releasing the page when it is fully free
// and either holds a single slot or has outlived MinPageLifetime.
// Transferred blocks go back to the system allocator.
func (a *Allocator) Free(block []byte) {
	addr := api.AddressOf(block)
	a.mu.Lock()
	ref, ok := a.live[addr]
	if !ok {
		b, foreign := a.foreign[addr]
		if foreign {
			delete(a.foreign, addr)
		}
		a.mu.Unlock()
		if !foreign {
			fatal.Violation("pool: free of untracked address %#x", addr)
			return
		}
		sysmem.Release(b)
		return
	}
	delete(a.live, addr)
	a.frees++
	p := ref.page
	p.free = append(p.free, ref.idx)
	var release []byte
	if p.full() && (p.capacity == 1 || clock.Since(p.created) > a.cfg.MinPageLifetime) {
		release = a.dropPage(p)
	}
	a.mu.Unlock()
	if release != nil {
		sysmem.Release(release)
	}
}

// dropPage unlinks p from its class and forgets the class once it has no
// pages left. Caller holds a.mu.
func (a *Allocator) dropPage(p *slotPage) []byte {
	c := p.class
	for i, q := range c.pages {
		if q == p {
			c.pages = append(c.pages[:i], c.pages[i+1:]...)
			break
		}
	}
	if len(c.pages) == 0 {
		delete(a.classes, c.size)
	}
	a.pages--
	buf := p.buf
	p.buf = nil
	return buf
}

// Collect releases every fully free page older than MinPageLifetime and
// returns how many were released.
func (a *Allocator) Collect() int {
	var bufs [][]byte
	a.mu.Lock()
	for _, c := range a.classes {
		for i := len(c.pages) - 1; i >= 0; i-- {
			p := c.pages[i]
			if p.full() && (p.capacity == 1 || clock.Since(p.created) > a.cfg.MinPageLifetime) {
				bufs = append(bufs, a.dropPage(p))
			}
		}
	}
	a.mu.Unlock()
	for _, b := range bufs {
		sysmem.Release(b)
	}
	if len(bufs) > 0 {
		a.log.Debugf("collected %d idle page(s)", len(bufs))
	}
	return len(bufs)
}

// Transfer adopts a system block so Free can release it.
func (a *Allocator) Transfer(block []byte, _ api.Origin) {
	if cap(block) == 0 {
		return
	}
	a.mu.Lock()
	a.foreign[api.AddressOf(block)] = block
	a.mu.Unlock()
}

func (a *Allocator) Watch([]byte, api.Origin) {}
func (a *Allocator) Unwatch([]byte)           {}

// IsValid reports whether block is a live slot or an adopted block.
func (a *Allocator) IsValid(block []byte) bool {
	addr := api.AddressOf(block)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[addr]; ok {
		return true
	}
	_, ok := a.foreign[addr]
	return ok
}

func (a *Allocator) IsFinalizable() bool { return false }

// Finalize releases idle pages.
func (a *Allocator) Finalize() { a.Collect() }

// Stats returns a bookkeeping snapshot.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Pages:     a.pages,
		Classes:   len(a.classes),
		LiveSlots: len(a.live),
		Foreign:   len(a.foreign),
		Hits:      a.hits,
		Misses:    a.misses,
		Frees:     a.frees,
	}
}
