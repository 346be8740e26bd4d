// Package bufpool implements the tiered, memory-capped buffer pool
// specified in §4.2. It dampens allocator pressure on the chunking hot
// path the way dittofs's pkg/bufpool dampens it for connection I/O, but
// generalizes fixed small/medium/large tiers into configurable size
// classes with a process-wide memory cap that blocks acquirers instead of
// allocating without bound.
package bufpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Config configures a Pool.
type Config struct {
	// SizeClasses is the ascending set of buffer capacities. Acquire
	// rounds a request up to the smallest class >= the requested size.
	SizeClasses []int

	// MinPerClass and MaxPerClass bound how many buffers are kept idle
	// per size class. A released buffer beyond MaxPerClass is freed
	// instead of pooled.
	MinPerClass int
	MaxPerClass int

	// MemoryCap bounds the total bytes held by callers (in-flight)
	// across all classes; idle pooled buffers are not counted against
	// it. Acquisitions that would exceed it block until enough bytes
	// are released. Zero means unbounded.
	MemoryCap int64

	// AdaptiveSizing, if set, grows or shrinks MinPerClass per class
	// based on observed hit rate (see Pool.runAdaptive).
	AdaptiveSizing bool

	// DirectAllowed requests that fresh buffers come from page-aligned,
	// pinnable (mmap'd) storage rather than the Go heap, for callers
	// doing kernel-friendly I/O. Silently falls back to a heap
	// allocation on platforms or failures where that isn't available.
	DirectAllowed bool
}

// DefaultConfig returns the pool configuration used when none is given:
// five size classes from 4 KiB to 1 MiB, no hard memory cap.
func DefaultConfig() Config {
	return Config{
		SizeClasses: []int{4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20},
		MinPerClass: 0,
		MaxPerClass: 64,
		MemoryCap:   0,
	}
}

// Stats reports pool-wide counters.
type Stats struct {
	Acquires   uint64
	Releases   uint64
	Hits       uint64 // acquisitions served from a pooled buffer
	Misses     uint64 // acquisitions that allocated fresh
	Freed      uint64 // released buffers that were freed, not pooled
	InFlight   int64  // bytes currently held by callers
	BytesIdle  int64  // bytes sitting idle in the pool
	OverBudget uint64 // acquisitions that had to wait for MemoryCap
}

// Pool is a tiered pool of reusable byte buffers.
type Pool struct {
	cfg     Config
	classes []class

	memSem *capSemaphore // nil when MemoryCap == 0

	stats Stats

	adaptStop chan struct{}
	adaptOnce sync.Once
}

type class struct {
	size int
	mu   sync.Mutex
	idle [][]byte
	min  int
	max  int
	hits uint64
	reqs uint64
}

// New creates a Pool from cfg. A zero Config is replaced with
// DefaultConfig's bounds where fields are left at their zero value.
func New(cfg Config) (*Pool, error) {
	if len(cfg.SizeClasses) == 0 {
		cfg.SizeClasses = DefaultConfig().SizeClasses
	}
	classes := append([]int(nil), cfg.SizeClasses...)
	sort.Ints(classes)
	for i := 1; i < len(classes); i++ {
		if classes[i] <= classes[i-1] {
			return nil, fmt.Errorf("bufpool: size classes must be strictly ascending, got %v", classes)
		}
	}
	if cfg.MaxPerClass <= 0 {
		cfg.MaxPerClass = DefaultConfig().MaxPerClass
	}
	if cfg.MinPerClass > cfg.MaxPerClass {
		return nil, fmt.Errorf("bufpool: min_per_class (%d) exceeds max_per_class (%d)", cfg.MinPerClass, cfg.MaxPerClass)
	}

	p := &Pool{cfg: cfg}
	p.classes = make([]class, len(classes))
	for i, sz := range classes {
		p.classes[i] = class{size: sz, min: cfg.MinPerClass, max: cfg.MaxPerClass}
	}
	if cfg.MemoryCap > 0 {
		p.memSem = newCapSemaphore(cfg.MemoryCap)
	}
	if cfg.AdaptiveSizing {
		p.adaptStop = make(chan struct{})
		go p.runAdaptive()
	}
	return p, nil
}

// Acquire returns a buffer of capacity >= size with logical length zero.
// It blocks until enough budget is available under MemoryCap, observing
// ctx cancellation at the suspension point.
func (p *Pool) Acquire(ctx context.Context, size int) ([]byte, error) {
	ci, classSize, err := p.classFor(size)
	if err != nil {
		return nil, err
	}

	if p.memSem != nil {
		waited, err := p.memSem.acquire(ctx, int64(classSize))
		if err != nil {
			return nil, err
		}
		if waited {
			atomic.AddUint64(&p.stats.OverBudget, 1)
		}
	}

	atomic.AddUint64(&p.stats.Acquires, 1)
	atomic.AddInt64(&p.stats.InFlight, int64(classSize))

	c := &p.classes[ci]
	c.mu.Lock()
	atomic.AddUint64(&c.reqs, 1)
	n := len(c.idle)
	var buf []byte
	if n > 0 {
		buf = c.idle[n-1]
		c.idle = c.idle[:n-1]
		atomic.AddUint64(&c.hits, 1)
		atomic.AddUint64(&p.stats.Hits, 1)
		atomic.AddInt64(&p.stats.BytesIdle, -int64(classSize))
	}
	c.mu.Unlock()

	if buf == nil {
		atomic.AddUint64(&p.stats.Misses, 1)
		buf = p.allocate(classSize)
	}
	return buf[:0:classSize], nil
}

// Release returns buf to its size class, unless MaxPerClass would be
// exceeded, in which case it is freed. buf must not be referenced by the
// caller after Release returns.
func (p *Pool) Release(buf []byte) {
	if buf == nil {
		return
	}
	capacity := cap(buf)
	ci := p.classIndexForCapacity(capacity)
	atomic.AddUint64(&p.stats.Releases, 1)
	if p.memSem != nil {
		p.memSem.release(int64(capacity))
	}
	atomic.AddInt64(&p.stats.InFlight, -int64(capacity))

	if ci < 0 {
		// Not a pooled size (e.g. an oversized direct allocation);
		// let the GC reclaim it.
		atomic.AddUint64(&p.stats.Freed, 1)
		return
	}

	c := &p.classes[ci]
	c.mu.Lock()
	if len(c.idle) >= c.max {
		c.mu.Unlock()
		atomic.AddUint64(&p.stats.Freed, 1)
		return
	}
	c.idle = append(c.idle, buf[:capacity])
	c.mu.Unlock()
	atomic.AddInt64(&p.stats.BytesIdle, int64(capacity))
}

// Stats returns a snapshot of pool-wide counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Acquires:   atomic.LoadUint64(&p.stats.Acquires),
		Releases:   atomic.LoadUint64(&p.stats.Releases),
		Hits:       atomic.LoadUint64(&p.stats.Hits),
		Misses:     atomic.LoadUint64(&p.stats.Misses),
		Freed:      atomic.LoadUint64(&p.stats.Freed),
		InFlight:   atomic.LoadInt64(&p.stats.InFlight),
		BytesIdle:  atomic.LoadInt64(&p.stats.BytesIdle),
		OverBudget: atomic.LoadUint64(&p.stats.OverBudget),
	}
}

// Close stops the adaptive-sizing goroutine, if running, and unmaps any
// idle direct (mmap'd) buffers. Buffers the caller still holds are the
// caller's responsibility to Release first.
func (p *Pool) Close() {
	p.adaptOnce.Do(func() {
		if p.adaptStop != nil {
			close(p.adaptStop)
		}
	})
	if !p.cfg.DirectAllowed {
		return
	}
	for i := range p.classes {
		c := &p.classes[i]
		c.mu.Lock()
		for _, buf := range c.idle {
			_ = freeDirect(buf[:cap(buf)])
		}
		c.idle = nil
		c.mu.Unlock()
	}
}

// allocate produces a fresh buffer of exactly classSize bytes, preferring
// direct (mmap'd) storage when Config.DirectAllowed is set and the
// platform supports it.
func (p *Pool) allocate(classSize int) []byte {
	if p.cfg.DirectAllowed {
		if buf, err := allocateDirect(classSize); err == nil {
			return buf
		}
		// Fall through to a heap allocation; direct storage is an
		// optimization, not a correctness requirement.
	}
	return make([]byte, classSize)
}

func (p *Pool) classFor(size int) (index int, classSize int, err error) {
	for i, c := range p.classes {
		if c.size >= size {
			return i, c.size, nil
		}
	}
	return 0, 0, fmt.Errorf("bufpool: requested size %d exceeds largest class %d", size, p.classes[len(p.classes)-1].size)
}

func (p *Pool) classIndexForCapacity(capacity int) int {
	for i, c := range p.classes {
		if c.size == capacity {
			return i
		}
	}
	return -1
}

// adaptiveInterval is how often runAdaptive re-evaluates hit rates.
const adaptiveInterval = 30 * time.Second

// runAdaptive periodically raises MinPerClass for classes with a low hit
// rate (below 50%, so more idle buffers are kept ready) and lowers it for
// classes whose hit rate is above 95%, topping up or trimming idle
// buffers to match.
func (p *Pool) runAdaptive() {
	ticker := time.NewTicker(adaptiveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.adaptStop:
			return
		case <-ticker.C:
			p.adjustMins()
		}
	}
}

func (p *Pool) adjustMins() {
	for i := range p.classes {
		c := &p.classes[i]
		reqs := atomic.SwapUint64(&c.reqs, 0)
		hits := atomic.SwapUint64(&c.hits, 0)
		if reqs == 0 {
			continue
		}
		hitRate := float64(hits) / float64(reqs)

		c.mu.Lock()
		switch {
		case hitRate < 0.5 && c.min < c.max:
			c.min++
			for len(c.idle) < c.min {
				c.idle = append(c.idle, make([]byte, c.size))
			}
		case hitRate > 0.95 && c.min > 0:
			c.min--
			if len(c.idle) > c.min {
				c.idle = c.idle[:c.min]
			}
		}
		c.mu.Unlock()
	}
}
