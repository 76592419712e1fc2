package protocol

import "sync"

// BytePool is a pool of reusable []byte buffers.
// Frame writes are frequent and small; reusing buffers keeps the snapshot
// fanout path free of per-frame allocations.
type BytePool struct {
	pool sync.Pool
}

// NewBytePool creates a pool whose fresh slices start with the given capacity.
func NewBytePool(defaultCap int) *BytePool {
	p := &BytePool{}
	p.pool.New = func() any {
		return make([]byte, 0, defaultCap)
	}
	return p
}

// Get returns a slice of the requested length, reusing pooled memory when it fits.
func (p *BytePool) Get(size int) []byte {
	b := p.pool.Get().([]byte)
	if cap(b) < size {
		p.pool.Put(b)
		return make([]byte, size)
	}
	b = b[:size]
	clear(b)
	return b
}

// Put returns a slice to the pool.
func (p *BytePool) Put(b []byte) {
	if b == nil {
		return
	}
	p.pool.Put(b[:0])
}
