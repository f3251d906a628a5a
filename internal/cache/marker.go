package cache

import (
	"sort"
	"sync"

	"github.com/OCAP2/mapsync/pkg/core"
)

// MarkerRegistry holds the client's last known copy of every marker and the
// set of ids the local user is currently moving.
//
// An id is present iff it was observed in a create response or a poll and
// has not since been observed missing or confirmed deleted. Guarded ids are
// always a subset of the cached ids.
type MarkerRegistry struct {
	mu      sync.RWMutex
	markers map[string]core.Marker
	guarded map[string]struct{}
}

// NewMarkerRegistry creates an empty MarkerRegistry
func NewMarkerRegistry() *MarkerRegistry {
	return &MarkerRegistry{
		markers: make(map[string]core.Marker),
		guarded: make(map[string]struct{}),
	}
}

// Get retrieves a marker by id
func (r *MarkerRegistry) Get(id string) (core.Marker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markers[id]
	return m, ok
}

// Put stores a marker under its id
func (r *MarkerRegistry) Put(m core.Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[m.ID] = m
}

// Delete removes a marker and its guard
func (r *MarkerRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markers, id)
	delete(r.guarded, id)
}

// Len returns the number of cached markers
func (r *MarkerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markers)
}

// IDs returns the cached ids in no particular order
func (r *MarkerRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.markers))
	for id := range r.markers {
		ids = append(ids, id)
	}
	return ids
}

// Markers returns every cached marker ordered by name, then id.
func (r *MarkerRegistry) Markers() []core.Marker {
	r.mu.RLock()
	out := make([]core.Marker, 0, len(r.markers))
	for _, m := range r.markers {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Guard marks id as being moved locally. Only cached ids can be guarded.
func (r *MarkerRegistry) Guard(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markers[id]; !ok {
		return false
	}
	r.guarded[id] = struct{}{}
	return true
}

// Release removes id from the guard set
func (r *MarkerRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.guarded, id)
}

// IsGuarded reports whether id is being moved locally
func (r *MarkerRegistry) IsGuarded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.guarded[id]
	return ok
}
