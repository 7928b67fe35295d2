package protocol

import "sync"

// maxPooledRequestBuffer bounds how large a buffer releaseRequestBuffer
// will return to the pool; a request near MaxRequestSize is a one-off
// and pinning that much memory for the next (likely much smaller)
// request isn't worth it.
const maxPooledRequestBuffer = fixedRequestHeaderSize + clientIDLenSize + 4096

// requestBufferPool holds packet buffers sized for the common case: a
// fixed header, a short client id, and a small append/read/trim body.
// ReadRequest grows past this on demand for larger bodies.
var requestBufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, fixedRequestHeaderSize+clientIDLenSize+256)
		return &b
	},
}

// acquireRequestBuffer returns a pooled buffer sliced to capacity,
// allocating a fresh one if the pooled buffer is too small. A fresh
// buffer goes back into the pool on release unless it is larger than
// maxPooledRequestBuffer.
func acquireRequestBuffer(capacity int) *[]byte {
	ptr := requestBufferPool.Get().(*[]byte)
	if cap(*ptr) < capacity {
		b := make([]byte, capacity)
		return &b
	}
	*ptr = (*ptr)[:capacity]
	return ptr
}

// releaseRequestBuffer returns buf to the pool unless it has grown past
// maxPooledRequestBuffer.
func releaseRequestBuffer(buf *[]byte) {
	if len(*buf) > maxPooledRequestBuffer {
		return
	}
	requestBufferPool.Put(buf)
}
