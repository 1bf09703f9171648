package handle

import "fmt"

// Handle refers to one value stored in a Table. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.index, h.gen)
}

type slot[T any] struct {
	gen   uint32
	used  bool
	value T
}

// Table is an arena of values addressed by Handle.
type Table[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// New creates an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{}
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{})
	}

	s := &t.slots[idx]
	s.gen++
	if s.gen == 0 {
		// Generation 0 marks the zero Handle.
		s.gen = 1
	}
	s.used = true
	s.value = v
	t.count++
	return Handle{index: idx, gen: s.gen}
}

// Get returns the value for h, or false if h is stale.
func (t *Table[T]) Get(h Handle) (T, bool) {
	var zero T
	if !t.Valid(h) {
		return zero, false
	}
	return t.slots[h.index].value, true
}

// Valid reports whether h still refers to a live value.
func (t *Table[T]) Valid(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(t.slots) {
		return false
	}
	s := &t.slots[h.index]
	return s.used && s.gen == h.gen
}

// Remove deletes the value for h. It reports false if h was already stale.
func (t *Table[T]) Remove(h Handle) bool {
	if !t.Valid(h) {
		return false
	}
	s := &t.slots[h.index]
	var zero T
	s.value = zero
	s.used = false
	t.free = append(t.free, h.index)
	t.count--
	return true
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	return t.count
}
