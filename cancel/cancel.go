// Package cancel implements the process-wide cancellation registry: a
// (backend_id, secret) -> cancel handle table that the cancel-request
// sub-protocol consults (spec §4.10 Cancellation, §5 BackendRegistry).
package cancel

import (
	"sync"
	"sync/atomic"
)

// Handle is whatever the backend executor exposes to terminate an
// in-flight query; the registry only needs to be able to invoke it.
type Handle interface {
	Cancel()
}

type key struct {
	backendID int32
	secret    int32
}

// Registry is a short-held-mutex table mapping (backend_id, secret) to
// a cancel Handle. Lookups on the cancel path are O(1) and the lock is
// never held across the call to Handle.Cancel (spec §5).
type Registry struct {
	mu      sync.Mutex
	entries map[key]Handle
	nextID  int32
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[key]Handle)}
}

// NextBackendID returns a process-unique backend id for BackendKeyData.
// atomic.AddInt32 avoids taking the registry mutex on the connection
// setup path, which runs far more often than a cancel request does.
func (r *Registry) NextBackendID() int32 {
	return atomic.AddInt32(&r.nextID, 1)
}

// Register associates (backendID, secret) with h. Call when a
// connection finishes its startup handshake; the association is valid
// until Unregister is called (typically on connection close). This is
// a weak reference in spirit: Unregister never blocks on, or is
// blocked by, in-flight queries, and a stale handle that outlives its
// connection simply won't be found (the map entry is already gone).
func (r *Registry) Register(backendID, secret int32, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{backendID, secret}] = h
}

// Unregister removes the (backendID, secret) association. Call when
// the owning connection closes.
func (r *Registry) Unregister(backendID, secret int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key{backendID, secret})
}

// Cancel looks up (backendID, secret) and, if found, invokes the
// handle's Cancel method outside the registry lock. Returns false if no
// matching connection is registered (e.g. it already closed) — per
// spec §4.10 the cancel socket expects no reply regardless.
func (r *Registry) Cancel(backendID, secret int32) bool {
	r.mu.Lock()
	h, ok := r.entries[key{backendID, secret}]
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.Cancel()
	return true
}
