package plausibility

import "time"

// Entry is one remembered sighting. Invalid entries are empty slots.
type Entry struct {
	Addr      uint32
	LatDeg    float64
	LonDeg    float64
	Timestamp time.Time
	Hits      uint32
	valid     bool
}

func (e Entry) Valid() bool { return e.valid }

// History is a fixed-capacity FIFO of recent sightings. Index 0 is the oldest
// slot; inserting always evicts it, whatever address it holds.
type History struct {
	entries []Entry
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{entries: make([]Entry, capacity)}
}

func (h *History) Cap() int { return len(h.entries) }

// Len counts valid entries.
func (h *History) Len() int {
	n := 0
	for _, e := range h.entries {
		if e.valid {
			n++
		}
	}
	return n
}

// Find scans linearly for addr and returns its slot index.
func (h *History) Find(addr uint32) (int, bool) {
	for i, e := range h.entries {
		if e.valid && e.Addr == addr {
			return i, true
		}
	}
	return -1, false
}

func (h *History) At(i int) Entry { return h.entries[i] }

// Clear empties slot i in place.
func (h *History) Clear(i int) {
	h.entries[i] = Entry{}
}

// Push shifts every slot one toward the head, dropping the oldest, and stores
// e as the newest.
func (h *History) Push(e Entry) {
	copy(h.entries, h.entries[1:])
	e.valid = true
	h.entries[len(h.entries)-1] = e
}

// Snapshot copies the valid entries oldest first.
func (h *History) Snapshot() []Entry {
	out := make([]Entry, 0, len(h.entries))
	for _, e := range h.entries {
		if e.valid {
			out = append(out, e)
		}
	}
	return out
}
