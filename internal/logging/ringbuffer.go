package logging

import (
	"os"
	"sync"
)

// RingBuffer is a thread-safe circular byte buffer.
// It implements io.Writer and silently overwrites old data when full.
// Used to keep the tail of the log stream in memory for crash dumps.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	head  int // next write position
	count int // bytes currently held (<= len(buf))
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1 * 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write implements io.Writer. Data wraps around when the buffer is full.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	size := len(rb.buf)

	if n >= size {
		// Larger than the whole buffer: keep only the last size bytes
		copy(rb.buf, p[n-size:])
		rb.head = 0
		rb.count = size
		return n, nil
	}

	tail := size - rb.head
	if n <= tail {
		copy(rb.buf[rb.head:], p)
	} else {
		copy(rb.buf[rb.head:], p[:tail])
		copy(rb.buf, p[tail:])
	}
	rb.head = (rb.head + n) % size
	rb.count += n
	if rb.count > size {
		rb.count = size
	}
	return n, nil
}

// Bytes returns the buffer contents in chronological order.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.count)
	if rb.count < len(rb.buf) {
		copy(out, rb.buf[:rb.count])
		return out
	}
	// Wrapped: oldest data starts at head
	n := copy(out, rb.buf[rb.head:])
	copy(out[n:], rb.buf[:rb.head])
	return out
}

// DumpToFile writes the ring buffer contents to a file in chronological order.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o644)
}
