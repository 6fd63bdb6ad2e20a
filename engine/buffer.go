package engine

import (
	"sync"
)

// DefaultBufferSize is the copy buffer size when none is configured.
const DefaultBufferSize = 256 * 1024

// BufferPool hands out reusable copy buffers so concurrent copy workers do
// not allocate one per file.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of size-byte buffers. A size <= 0 selects
// DefaultBufferSize.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size is the length of every buffer in the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get returns a buffer. Pair every Get with a Put.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns b to the pool. Buffers of the wrong size are dropped.
func (bp *BufferPool) Put(b *[]byte) {
	if b == nil || len(*b) != bp.size {
		return
	}
	bp.pool.Put(b)
}
