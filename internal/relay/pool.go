package relay

import (
	"io"
	"sync"
)

const copyBufferSize = 32 * 1024

// bufferPool recycles fixed-size copy buffers across relays.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	bp := &bufferPool{}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

func (p *bufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *bufferPool) Put(b *[]byte) {
	p.pool.Put(b)
}

var copyBuffers = newBufferPool(copyBufferSize)

// copyBuffered is io.Copy with a pooled buffer.
func copyBuffered(dst io.Writer, src io.Reader) (int64, error) {
	b := copyBuffers.Get()
	defer copyBuffers.Put(b)
	return io.CopyBuffer(dst, src, *b)
}
