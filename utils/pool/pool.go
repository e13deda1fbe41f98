// Package pool provides a wrapper around sync.Pool with added metrics.
package pool

import (
	"bytes"
	"sync"

	"github.com/linchenxuan/taglog/metrics"
)

// Pool is a wrapper around sync.Pool that collects metrics on object creation.
type Pool struct {
	Name string     // Name is the name of the pool, used as a dimension in metrics.
	Pool *sync.Pool // Pool is the underlying sync.Pool instance.
}

// NewPool creates a new instrumented pool.
// The 'newFunc' is the function called to create a new item when the pool is empty.
func NewPool(name string, newFunc func() any) *Pool {
	p := &Pool{
		Name: name,
	}

	p.Pool = &sync.Pool{
		New: func() any {
			metrics.IncrCounterWithDimGroup(metrics.NamePoolCreateTotal, metrics.GroupTaglog, 1, metrics.Dimension{
				metrics.DimPoolName: name,
			})
			return newFunc()
		},
	}
	return p
}

// Put adds x back to the pool for reuse.
func (p *Pool) Put(x any) {
	p.Pool.Put(x)
}

// Get retrieves an item from the pool.
func (p *Pool) Get() any {
	return p.Pool.Get()
}

// _maxRetainedBuffer caps the capacity of buffers returned to a BufferPool,
// so one oversized batch does not pin memory.
const _maxRetainedBuffer = 1 << 20

// BufferPool hands out reset *bytes.Buffer values.
type BufferPool struct {
	p *Pool
}

// NewBufferPool creates a buffer pool whose buffers start with initCap bytes.
func NewBufferPool(name string, initCap int) *BufferPool {
	return &BufferPool{p: NewPool(name, func() any {
		return bytes.NewBuffer(make([]byte, 0, initCap))
	})}
}

// Get returns an empty buffer.
func (b *BufferPool) Get() *bytes.Buffer {
	buf := b.p.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns buf to the pool unless it grew too large.
func (b *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > _maxRetainedBuffer {
		return
	}
	b.p.Put(buf)
}
