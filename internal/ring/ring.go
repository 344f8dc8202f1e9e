// Package ring implements the scrollback buffer behind every session: a
// fixed-capacity byte store that remembers only the most recent N bytes but
// still lets a consumer resume from any offset it previously observed.
package ring

import "sync"

// DefaultCapacity is the scrollback size used when a session does not
// override it (1 MiB, per the session manager's defaults).
const DefaultCapacity = 1 << 20

// Ring is a fixed-capacity byte buffer with a monotonically increasing write
// counter. Append drops the oldest bytes once capacity is exceeded;
// SnapshotSince returns the suffix of the true output stream starting at a
// previously observed offset, clamped to what is still retained.
//
// Safe for concurrent use: Append is the single mutator, any number of
// goroutines may call SnapshotSince/Len/TotalWritten concurrently.
type Ring struct {
	mu       sync.Mutex
	buf      []byte
	capacity int
	// head is the cumulative number of bytes ever appended. buf always
	// holds the bytes in [head-len(buf), head).
	head int64
}

// New creates a Ring with the given capacity. A non-positive capacity falls
// back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Append adds b to the ring, dropping the oldest bytes if the result would
// exceed capacity. A slice larger than the capacity itself is truncated to
// its own tail before being stored, which is equivalent to appending it and
// immediately evicting everything but the last `capacity` bytes.
func (r *Ring) Append(b []byte) {
	if len(b) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.head += int64(len(b))

	if len(b) >= r.capacity {
		r.buf = append(r.buf[:0], b[len(b)-r.capacity:]...)
		return
	}

	overflow := len(r.buf) + len(b) - r.capacity
	if overflow > 0 {
		r.buf = append(r.buf[:0], r.buf[overflow:]...)
	}
	r.buf = append(r.buf, b...)
}

// SnapshotSince returns every byte appended since offset, along with the
// offset a subsequent call should pass to continue from where this one left
// off. If offset predates the oldest retained byte, the slice starts at the
// oldest retained byte instead and newOffset reflects that clamp: callers
// lose resolution on evicted data but never see corrupted or duplicated
// bytes.
func (r *Ring) SnapshotSince(offset int64) (data []byte, newOffset int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldest := r.head - int64(len(r.buf))
	if offset < oldest {
		offset = oldest
	}
	if offset > r.head {
		offset = r.head
	}

	start := len(r.buf) - int(r.head-offset)
	if start < 0 {
		start = 0
	}

	out := make([]byte, len(r.buf)-start)
	copy(out, r.buf[start:])
	return out, r.head
}

// TotalWritten returns the cumulative number of bytes ever appended.
func (r *Ring) TotalWritten() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

// Len returns the number of bytes currently retained.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Capacity returns the ring's fixed byte capacity.
func (r *Ring) Capacity() int {
	return r.capacity
}
