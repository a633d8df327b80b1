package session

import "sync"

// maxPooledBuf caps the buffers kept for reuse. A peer that once buffered a
// near 64 KiB message gives its buffer back to the GC instead.
const maxPooledBuf = 16 * 1024

// BytePool хранит pending-буферы удалённых пиров для следующих сессий.
type BytePool struct {
	pool sync.Pool
}

// NewBytePool создаёт пул, выдающий пустые буферы ёмкостью bufCap.
func NewBytePool(bufCap int) *BytePool {
	p := &BytePool{}
	p.pool.New = func() any {
		return make([]byte, 0, bufCap)
	}
	return p
}

// Get возвращает пустой буфер.
func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)[:0]
}

// Put отдаёт буфер пиру следующей сессии. Слишком большие буферы не сохраняются.
func (p *BytePool) Put(b []byte) {
	if b == nil || cap(b) > maxPooledBuf {
		return
	}
	p.pool.Put(b[:0])
}
