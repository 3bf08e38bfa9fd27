package asyncqueue

import "sync"

// bufferPool provides pooled byte slices for the variable-length
// payloads carried by NETWORK, CHAR, and USB async events, avoiding a
// fresh allocation on every record/replay cycle for the common sizes.
// Adapted from the teacher's queue.BufferPool, which pooled I/O buffers
// for the same reason (hot-path allocation avoidance); here the hot
// path is log serialization rather than block I/O.
const (
	size4k  = 4 * 1024
	size16k = 16 * 1024
	size64k = 64 * 1024
)

var globalBufferPool = struct {
	pool4k  sync.Pool
	pool16k sync.Pool
	pool64k sync.Pool
}{
	pool4k:  sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool16k: sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
	pool64k: sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
}

// GetBuffer returns a pooled buffer of at least the requested size, or
// a freshly allocated one for sizes beyond the largest bucket. Used on
// the play-side decode path to size NETWORK/CHAR/USB payloads; ownership
// passes to the caller (and on through Dispatch to the collaborator), so
// nothing here returns it to the pool automatically. A collaborator that
// copies the payload out before discarding it can call PutBuffer itself
// to let the next decode reuse the backing array.
func GetBuffer(size int) []byte {
	switch {
	case size <= size4k:
		return (*globalBufferPool.pool4k.Get().(*[]byte))[:size]
	case size <= size16k:
		return (*globalBufferPool.pool16k.Get().(*[]byte))[:size]
	case size <= size64k:
		return (*globalBufferPool.pool64k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer obtained from GetBuffer to its bucket pool.
// Buffers with a non-standard capacity (the size > 64KB fallback, or any
// slice not originally returned by GetBuffer) are left for GC.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size4k:
		globalBufferPool.pool4k.Put(&buf)
	case size16k:
		globalBufferPool.pool16k.Put(&buf)
	case size64k:
		globalBufferPool.pool64k.Put(&buf)
	}
}
