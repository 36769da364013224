package driver

import (
	"sync"
	"time"
)

// CommandEntry is one SendCommand outcome.
type CommandEntry struct {
	Time     time.Time `json:"timestamp"`
	Command  string    `json:"command"`
	Name     string    `json:"name"`
	Payload  string    `json:"payload_hex"`
	Frame    string    `json:"frame_hex"`
	Attempts int       `json:"attempts"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
}

// NotificationEntry is one frame received from the device.
type NotificationEntry struct {
	Time    time.Time `json:"timestamp"`
	Sender  string    `json:"sender"`
	Command string    `json:"command,omitempty"`
	Frame   string    `json:"frame_hex"`
	Payload string    `json:"payload_hex,omitempty"`
	Parsed  bool      `json:"parsed"`
	Decoded bool      `json:"decoded"`
	Error   string    `json:"error,omitempty"`
}

// ring keeps the most recent entries, evicting the oldest.
type ring[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
	full  bool
}

func newRing[T any](size int) *ring[T] {
	if size <= 0 {
		size = 1
	}
	return &ring[T]{items: make([]T, size)}
}

func (r *ring[T]) add(v T) {
	r.mu.Lock()
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// list returns entries oldest first.
func (r *ring[T]) list() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]T(nil), r.items[:r.next]...)
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

func (r *ring[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.items)
	}
	return r.next
}
