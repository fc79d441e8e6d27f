package realtime

import (
	"sort"
	"sync"
)

// View is a client-side replica built from snapshots. Applying the same
// snapshot twice, or snapshots out of order, converges to the same state.
type View struct {
	mu    sync.RWMutex
	items map[string]Snapshot
}

// NewView returns an empty view.
func NewView() *View {
	return &View{items: make(map[string]Snapshot)}
}

// Apply merges snap and reports whether it changed the view.
func (v *View) Apply(snap Snapshot) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.items[snap.Key()]
	if ok && !snap.Newer(cur) {
		return false
	}
	v.items[snap.Key()] = snap
	return true
}

// Get returns the current snapshot of one entity.
func (v *View) Get(kind, id string) (Snapshot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.items[kind+":"+id]
	return s, ok
}

// List returns the entities of kind, most recently updated first.
func (v *View) List(kind string) []Snapshot {
	v.mu.RLock()
	out := make([]Snapshot, 0, len(v.items))
	for _, s := range v.items {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	v.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Newer(out[j]) })
	return out
}

// Len reports the number of entities held.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.items)
}
