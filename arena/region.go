// File: arena/region.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Region chain shared by the arena variants.

package arena

import (
	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/internal/fatal"
	"github.com/momentics/hioload-rt/internal/logging"
	"github.com/momentics/hioload-rt/internal/sysmem"
)

const align = 8

func alignUp(n int) int { return (n + align - 1) &^ (align - 1) }

type region struct {
	buf        []byte
	free       int
	prev, next *region
}

func (r *region) base() uintptr { return api.AddressOf(r.buf) }

// holds reports whether addr lies in the allocated part of r.
func (r *region) holds(addr uintptr) bool {
	b := r.base()
	return addr >= b && addr < b+uintptr(r.free)
}

// chain is a doubly linked list of regions with a bump cursor.
type chain struct {
	capacity int
	head     *region
	tail     *region
	cur      *region
	regions  int

	used       int
	peak       int
	sinceReset int // highest used since the last reset; Free never lowers it
	highWater  int
	collapse   bool

	foreign [][]byte
	log     *logging.Logger
}

func newChain(cfg Config, component string) chain {
	if err := cfg.Validate(); err != nil {
		fatal.Violation("%v", err)
	}
	return chain{capacity: alignUp(cfg.Capacity), log: logging.New(component)}
}

// reserve bumps n bytes and returns the region and offset serving them.
func (c *chain) reserve(n int) (*region, int) {
	if c.collapse {
		c.rebuild()
	}
	for r := c.cur; r != nil; r = r.next {
		if len(r.buf)-r.free >= n {
			c.cur = r
			return r, c.bump(r, n)
		}
	}
	size := c.capacity
	if c.tail != nil && 2*len(c.tail.buf) > size {
		size = 2 * len(c.tail.buf)
	}
	if n > size {
		size = alignUp(n)
	}
	r := c.grow(size)
	c.cur = r
	return r, c.bump(r, n)
}

func (c *chain) bump(r *region, n int) int {
	off := r.free
	r.free += n
	c.used += n
	if c.used > c.peak {
		c.peak = c.used
	}
	if c.used > c.sinceReset {
		c.sinceReset = c.used
	}
	return off
}

func (c *chain) grow(size int) *region {
	r := &region{buf: sysmem.Alloc(size), prev: c.tail}
	if c.tail != nil {
		c.tail.next = r
	} else {
		c.head = r
	}
	c.tail = r
	c.regions++
	c.log.Debugf("region #%d of %d bytes", c.regions, size)
	return r
}

// reset rewinds every region. A high-water mark above capacity since the
// previous reset schedules a collapse.
func (c *chain) reset() {
	for r := c.head; r != nil; r = r.next {
		r.free = 0
	}
	c.cur = c.head
	if c.sinceReset > c.capacity {
		c.collapse = true
		if c.sinceReset > c.highWater {
			c.highWater = c.sinceReset
		}
	}
	c.used = 0
	c.sinceReset = 0
}

// rebuild replaces the chain with one region holding the high-water mark.
func (c *chain) rebuild() {
	c.release()
	if hw := alignUp(c.highWater); hw > c.capacity {
		c.capacity = hw
	}
	c.collapse = false
	c.highWater = 0
	c.cur = c.grow(c.capacity)
	c.log.Debugf("collapsed chain, capacity now %d", c.capacity)
}

func (c *chain) release() {
	for r := c.head; r != nil; {
		next := r.next
		sysmem.Release(r.buf)
		r.buf, r.prev, r.next = nil, nil, nil
		r = next
	}
	c.head, c.tail, c.cur = nil, nil, nil
	c.regions = 0
	c.used = 0
	c.sinceReset = 0
}

func (c *chain) flush() {
	c.release()
	for _, b := range c.foreign {
		sysmem.Release(b)
	}
	c.foreign = nil
	c.collapse = false
	c.highWater = 0
}

func (c *chain) owns(block []byte) bool {
	addr := api.AddressOf(block)
	if addr == 0 {
		return false
	}
	for r := c.head; r != nil; r = r.next {
		if r.holds(addr) {
			return true
		}
	}
	return false
}

func (c *chain) adopt(block []byte) {
	if cap(block) > 0 {
		c.foreign = append(c.foreign, block)
	}
}
