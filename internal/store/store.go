// Package store provides the bounded recent-message history replayed to
// clients when they join.
package store

// DefaultCapacity is the number of lines kept when no capacity is configured.
const DefaultCapacity = 10

// Recent is a fixed-capacity FIFO of message lines. When full, the oldest
// line is evicted to make room for the newest.
//
// Recent is not safe for concurrent use; the owner serialises access.
type Recent struct {
	capacity int
	messages []string // oldest first
}

// NewRecent creates an empty buffer. A non-positive capacity falls back to
// DefaultCapacity.
func NewRecent(capacity int) *Recent {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recent{
		capacity: capacity,
		messages: make([]string, 0, capacity),
	}
}

// Push appends msg, evicting the oldest line first if the buffer is full.
func (r *Recent) Push(msg string) {
	if len(r.messages) == r.capacity {
		copy(r.messages, r.messages[1:])
		r.messages = r.messages[:len(r.messages)-1]
	}
	r.messages = append(r.messages, msg)
}

// Snapshot returns a copy of the buffered lines, oldest to newest.
func (r *Recent) Snapshot() []string {
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Recent) Len() int { return len(r.messages) }

func (r *Recent) Cap() int { return r.capacity }
