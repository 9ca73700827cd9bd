package hooks

import "sync/atomic"

// Snapshot is an immutable, point-in-time view of the hook set. Outstanding
// Jobs keep referencing the Snapshot they were created against even after a
// reload publishes a new one; a Job's Hook reference stays valid for the
// Job's entire lifetime because nothing in a published Snapshot is ever
// mutated.
type Snapshot struct {
	byName map[string]*Hook
	order  []string // preserves load order for deterministic iteration
}

// NewSnapshot builds a Snapshot from a list of hooks. Later duplicates by
// name overwrite earlier ones, matching "last one loaded wins" semantics a
// filesystem walk would naturally produce.
func NewSnapshot(all []*Hook) *Snapshot {
	s := &Snapshot{byName: make(map[string]*Hook, len(all))}
	for _, h := range all {
		if _, exists := s.byName[h.Name]; !exists {
			s.order = append(s.order, h.Name)
		}
		s.byName[h.Name] = h
	}
	return s
}

// Get returns the hook by name, or nil if absent.
func (s *Snapshot) Get(name string) *Hook {
	if s == nil {
		return nil
	}
	return s.byName[name]
}

// Names returns every hook name in the snapshot, in load order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len reports how many hooks the snapshot holds.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byName)
}

// Repository owns the current Snapshot behind an atomic pointer so readers
// never observe a torn or partially-updated hook set, and a reload's Swap is
// visible to new readers immediately without blocking concurrent Gets.
type Repository struct {
	current atomic.Pointer[Snapshot]
}

// NewRepository builds a Repository initialized with the given snapshot.
func NewRepository(initial *Snapshot) *Repository {
	r := &Repository{}
	if initial == nil {
		initial = NewSnapshot(nil)
	}
	r.current.Store(initial)
	return r
}

// Current returns the presently published snapshot.
func (r *Repository) Current() *Snapshot {
	return r.current.Load()
}

// Swap atomically replaces the published snapshot, returning the previous
// one (useful for diagnostics/tests).
func (r *Repository) Swap(next *Snapshot) *Snapshot {
	return r.current.Swap(next)
}
