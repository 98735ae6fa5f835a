//go:build linux

// Package bufpool implements a bounded, sharded pool of reusable byte
// buffers. No other package in this module takes from it: package ipc
// allocates a fresh buffer for every framed message it sends or receives.
//
// Grounded on original_source/crates/porkg-private/src/mem.rs (Pool's
// bucket/state-machine design and its exact size constants). No teacher or
// pack dependency implements this precise bounded/sharded pool (see
// DESIGN.md), so it is built directly on sync/atomic plus buffered
// channels standing in for the buckets.
package bufpool

import (
	"bytes"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
)

const (
	// DefaultBufferLen is the capacity a freshly-allocated buffer is given.
	DefaultBufferLen = 16 * 1024
	// MaxSingleBuffer is the largest buffer that's worth keeping; bigger
	// ones are let go rather than pinned in a bucket forever.
	MaxSingleBuffer = 16 << 20
	// MaxTotalBuffers is the aggregate soft cap across all buckets.
	MaxTotalBuffers = 128 << 20

	// bucketsEnv overrides the default bucket count.
	bucketsEnv = "PORKG_MEM_BUCKETS"
)

// Pool is a bounded, sharded collection of reusable *bytes.Buffer values.
// It never blocks: Take falls back to allocating fresh when every bucket it
// probes is empty, and Put drops the buffer instead of blocking when every
// bucket it probes is full or the aggregate cap is exceeded.
type Pool struct {
	buckets   []chan *bytes.Buffer
	capacity  int
	singleCap int
	totalCap  int64
	current   int64
	takeHook  func(*bytes.Buffer)
	returnHook func(*bytes.Buffer) bool
	next      atomic.Uint64
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithTakeHook installs a hook run on every buffer handed out by Take,
// before it is returned to the caller (e.g. to reset its length to zero).
func WithTakeHook(hook func(*bytes.Buffer)) Option {
	return func(p *Pool) { p.takeHook = hook }
}

// WithReturnHook installs a hook run on every buffer passed to Put. If it
// returns false the buffer is dropped instead of being returned to a
// bucket (e.g. to reject now-oversized buffers).
func WithReturnHook(hook func(*bytes.Buffer) bool) Option {
	return func(p *Pool) { p.returnHook = hook }
}

// WithBucketCount overrides the default bucket count.
func WithBucketCount(n int) Option {
	return func(p *Pool) { p.buckets = make([]chan *bytes.Buffer, n) }
}

// New creates a Pool holding up to capacity buffers across its buckets.
// Buffers that Take allocates fresh get DefaultBufferLen bytes of backing
// storage.
func New(capacity int, opts ...Option) *Pool {
	p := &Pool{
		capacity:  capacity,
		singleCap: MaxSingleBuffer,
		totalCap:  MaxTotalBuffers,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buckets == nil {
		p.buckets = make([]chan *bytes.Buffer, defaultBucketCount(capacity))
	}
	perBucket := (capacity + len(p.buckets) - 1) / len(p.buckets)
	if perBucket < 1 {
		perBucket = 1
	}
	for i := range p.buckets {
		p.buckets[i] = make(chan *bytes.Buffer, perBucket)
	}
	return p
}

func defaultBucketCount(capacity int) int {
	if v := os.Getenv(bucketsEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	n := runtime.GOMAXPROCS(0)
	if n > capacity {
		return n
	}
	return capacity
}

// Default is the shared instance matching spec.md §4.4/§6's constants:
// 16 KiB buffers, a 16 MiB single-buffer cap and a 128 MiB aggregate cap.
var Default = New(128)

// Take returns a buffer from the pool, probing every bucket in turn
// starting from an index taken from a pool-wide counter, or allocates a
// fresh DefaultBufferLen buffer if none is available. The number of buckets
// probed is not configurable.
func (p *Pool) Take() *bytes.Buffer {
	start := int(p.next.Add(1)) % len(p.buckets)
	for i := 0; i < len(p.buckets); i++ {
		idx := (start + i) % len(p.buckets)
		select {
		case buf := <-p.buckets[idx]:
			atomic.AddInt64(&p.current, -int64(buf.Cap()))
			if p.takeHook != nil {
				p.takeHook(buf)
			}
			return buf
		default:
		}
	}
	return bytes.NewBuffer(make([]byte, 0, DefaultBufferLen))
}

// Put returns buf to the pool, unless it is larger than the single-buffer
// cap, the aggregate cap would be exceeded, or every probed bucket is full
// — in which case it's simply dropped for the GC to collect.
func (p *Pool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if p.returnHook != nil && !p.returnHook(buf) {
		return
	}
	if buf.Cap() > p.singleCap {
		return
	}
	if atomic.AddInt64(&p.current, int64(buf.Cap())) > p.totalCap {
		atomic.AddInt64(&p.current, -int64(buf.Cap()))
		return
	}

	start := int(p.next.Add(1)) % len(p.buckets)
	for i := 0; i < len(p.buckets); i++ {
		idx := (start + i) % len(p.buckets)
		select {
		case p.buckets[idx] <- buf:
			return
		default:
		}
	}
	// Every probed bucket was full: give the budget back and drop.
	atomic.AddInt64(&p.current, -int64(buf.Cap()))
}

// CurrentSize reports the pool's current aggregate accounted size.
func (p *Pool) CurrentSize() int64 {
	return atomic.LoadInt64(&p.current)
}
