package assembly

import (
	"sync"
	"sync/atomic"
)

// Arena allocates storage slots for singleton nodes at build time.
// It is used by a single goroutine during Build and needs no locking.
type Arena struct {
	owners []string
}

// reserve returns a fresh slot for n. Only singleton nodes that are not
// fixed instances own a slot.
func (a *Arena) reserve(n *node) int {
	d := n.bean.desc
	if n.member != nil || d.Cardinality != Singleton || d.Source.Kind == SourceInstance {
		panic(&SlotViolationError{Slot: -1, Owner: d.Name, Violation: InvalidSlot})
	}
	slot := len(a.owners)
	a.owners = append(a.owners, d.Name)
	return slot
}

// Size returns the number of reserved slots.
func (a *Arena) Size() int { return len(a.owners) }

// slot is one write-once cell. claimed guards against a second write, ready
// publishes value to readers. builder holds the goroutine constructing the
// value, zero when none.
type slot struct {
	mu      sync.Mutex
	claimed atomic.Bool
	ready   atomic.Bool
	builder atomic.Int64
	value   any
}

// Store is the runtime slot array of one lifetime.
type Store struct {
	slots  []slot
	owners []string
}

func newStore(a *Arena) *Store {
	return &Store{
		slots:  make([]slot, len(a.owners)),
		owners: a.owners,
	}
}

// Write stores v into slot i. A second write panics with *SlotViolationError.
func (s *Store) Write(i int, v any) {
	sl := s.at(i)
	if !sl.claimed.CompareAndSwap(false, true) {
		panic(&SlotViolationError{Slot: i, Owner: s.owners[i], Violation: DoubleWrite})
	}
	sl.value = v
	sl.ready.Store(true)
}

// Read returns the value of slot i. Reading an unwritten slot panics with
// *SlotViolationError.
func (s *Store) Read(i int) any {
	v, ok := s.load(i)
	if !ok {
		panic(&SlotViolationError{Slot: i, Owner: s.owners[i], Violation: ReadBeforeWrite})
	}
	return v
}

// Written reports whether slot i holds a value.
func (s *Store) Written(i int) bool {
	return s.at(i).ready.Load()
}

// Len returns the number of slots.
func (s *Store) Len() int { return len(s.slots) }

func (s *Store) load(i int) (any, bool) {
	sl := s.at(i)
	if !sl.ready.Load() {
		return nil, false
	}
	return sl.value, true
}

// lock serialises lazy construction of slot i.
func (s *Store) lock(i int) func() {
	sl := s.at(i)
	sl.mu.Lock()
	return sl.mu.Unlock
}

// builder returns the goroutine constructing slot i, zero when none.
func (s *Store) builder(i int) int64 {
	return s.at(i).builder.Load()
}

// building marks g as the constructor of slot i until the returned func runs.
// The caller must hold the slot lock.
func (s *Store) building(i int, g int64) func() {
	sl := s.at(i)
	sl.builder.Store(g)
	return func() { sl.builder.Store(0) }
}

func (s *Store) at(i int) *slot {
	if i < 0 || i >= len(s.slots) {
		panic(&SlotViolationError{Slot: i, Owner: "unknown", Violation: InvalidSlot})
	}
	return &s.slots[i]
}
