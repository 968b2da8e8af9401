package relay

import (
	"slices"
	"sync"
)

// Registry maps each online identity to its single live connection handle.
// It only does bookkeeping: it never closes or writes to a handle.
type Registry struct {
	mu      sync.RWMutex
	entries map[Identity]Handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Identity]Handle)}
}

// Put binds handle to identity, replacing any previous binding. The previous
// handle, if any, is returned so the caller can decide what to do with it.
func (r *Registry) Put(identity Identity, handle Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.entries[identity]
	r.entries[identity] = handle
	if previous == handle {
		return nil
	}
	return previous
}

// Remove deletes the entry for identity only while it still points at handle.
// A removal coming from a superseded connection is a no-op and returns false.
func (r *Registry) Remove(identity Identity, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[identity]
	if !ok || current != handle {
		return false
	}
	delete(r.entries, identity)
	return true
}

// Lookup returns the live handle of identity.
func (r *Registry) Lookup(identity Identity) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.entries[identity]
	return handle, ok
}

// Online reports whether identity currently has a registered handle.
func (r *Registry) Online(identity Identity) bool {
	_, ok := r.Lookup(identity)
	return ok
}

// Snapshot returns the online identities in ascending order.
func (r *Registry) Snapshot() []Identity {
	r.mu.RLock()
	identities := make([]Identity, 0, len(r.entries))
	for identity := range r.entries {
		identities = append(identities, identity)
	}
	r.mu.RUnlock()

	slices.Sort(identities)
	return identities
}

// Handles returns every registered handle, taken under a single read.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.entries))
	for _, handle := range r.entries {
		handles = append(handles, handle)
	}
	return handles
}

// Len returns the number of online identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
