package stream

import (
	"sync"
	"time"
)

// record is one finalized message in the bounded history.
type record struct {
	MessageID      string
	UserID         string
	Status         Status
	RiskScore      float64
	ProcessingTime time.Duration
	Timestamp      time.Time
}

// ring is a fixed-capacity buffer of recent records. Once full, new entries
// overwrite the oldest.
type ring struct {
	mu   sync.Mutex
	buf  []record
	next int
	full bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{buf: make([]record, capacity)}
}

func (r *ring) add(rec record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = rec
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// find returns the most recent record for the given message id.
func (r *ring) find(id string) (record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	// Scan newest to oldest so retried messages resolve to their last run.
	for i := 0; i < n; i++ {
		idx := r.next - 1 - i
		if idx < 0 {
			idx += len(r.buf)
		}
		if r.buf[idx].MessageID == id {
			return r.buf[idx], true
		}
	}
	return record{}, false
}

// tail returns up to n of the most recent records, oldest first.
func (r *ring) tail(n int) []record {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n > size {
		n = size
	}

	out := make([]record, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if r.full {
			idx = (r.next + len(r.buf) - size + i) % len(r.buf)
		}
		out = append(out, r.buf[idx])
	}
	return out
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.full = false
}
