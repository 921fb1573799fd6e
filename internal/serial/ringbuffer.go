package serial

import "bytes"

const initialBufferSize = 32 * 1024

// ringBuffer is a byte FIFO that doubles its capacity when full. It is not
// safe for concurrent use; Port guards it with its buffer lock.
type ringBuffer struct {
	buf  []byte
	head int // index of the oldest byte
	size int // number of buffered bytes
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]byte, capacity)}
}

func (r *ringBuffer) Len() int { return r.size }

func (r *ringBuffer) Cap() int { return len(r.buf) }

func (r *ringBuffer) grow(need int) {
	capacity := len(r.buf)
	for capacity-r.size < need {
		capacity <<= 1
	}
	if capacity == len(r.buf) {
		return
	}
	buf := make([]byte, capacity)
	r.copyOut(buf, r.size)
	r.buf = buf
	r.head = 0
}

// Write appends p, growing the buffer as needed.
func (r *ringBuffer) Write(p []byte) {
	r.grow(len(p))
	tail := (r.head + r.size) % len(r.buf)
	n := copy(r.buf[tail:], p)
	copy(r.buf, p[n:])
	r.size += len(p)
}

// copyOut copies the first n buffered bytes into dst without consuming them.
func (r *ringBuffer) copyOut(dst []byte, n int) {
	end := r.head + n
	if end <= len(r.buf) {
		copy(dst, r.buf[r.head:end])
		return
	}
	k := copy(dst, r.buf[r.head:])
	copy(dst[k:], r.buf[:n-k])
}

func (r *ringBuffer) discard(n int) {
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	if r.size == 0 {
		r.head = 0
	}
}

// pop removes and returns the oldest byte, or false if empty.
func (r *ringBuffer) pop() (byte, bool) {
	if r.size == 0 {
		return 0, false
	}
	b := r.buf[r.head]
	r.discard(1)
	return b, true
}

// Next consumes and returns up to n bytes.
func (r *ringBuffer) Next(n int) []byte {
	if n > r.size {
		n = r.size
	}
	out := make([]byte, n)
	r.copyOut(out, n)
	r.discard(n)
	return out
}

// IndexByte returns the offset of the first c from the head, or -1.
func (r *ringBuffer) IndexByte(c byte) int {
	end := r.head + r.size
	if end <= len(r.buf) {
		return bytes.IndexByte(r.buf[r.head:end], c)
	}
	if i := bytes.IndexByte(r.buf[r.head:], c); i >= 0 {
		return i
	}
	if i := bytes.IndexByte(r.buf[:end-len(r.buf)], c); i >= 0 {
		return len(r.buf) - r.head + i
	}
	return -1
}

// Reset drops all buffered bytes.
func (r *ringBuffer) Reset() {
	r.head = 0
	r.size = 0
}
