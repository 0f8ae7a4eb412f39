package bundle

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// HistoryCapacity is the number of recent bundle identities remembered
const HistoryCapacity = 30

// History is a bounded FIFO of submitted bundle identities. Lookups do not
// refresh an entry's position. It is owned by a single goroutine.
type History struct {
	capacity int
	order    []string
	members  mapset.Set[string]
}

// NewHistory creates a history holding at most capacity identities
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		members:  mapset.NewThreadUnsafeSet[string](),
	}
}

// Contains reports whether id is still inside the window
func (h *History) Contains(id string) bool {
	return h.members.Contains(id)
}

// Push records id, evicting the oldest identity once the window is full
func (h *History) Push(id string) {
	if h.members.Contains(id) {
		return
	}
	if len(h.order) == h.capacity {
		oldest := h.order[0]
		h.order = append(h.order[:0], h.order[1:]...)
		h.members.Remove(oldest)
	}
	h.order = append(h.order, id)
	h.members.Add(id)
}

// Len returns the number of remembered identities
func (h *History) Len() int {
	return len(h.order)
}
