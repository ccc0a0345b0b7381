package storage

import "sync"

// Registry tracks live scan registrations per namespace. A registration is a
// revocable claim on a scan's resources: the engine revokes all claims on a
// namespace when its collection is dropped, and the owner must release the
// registration before closing the scan it wraps.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[uint64]*Registration)}
}

// Registration is one live claim. It is not safe for concurrent use by
// multiple owners; revocation from the registry side is synchronized.
type Registration struct {
	id        uint64
	namespace string
	registry  *Registry
	onRevoke  func()

	released bool
	revoked  bool
}

// Register records a live claim on the given namespace. onRevoke, if non-nil,
// runs when the namespace is invalidated while the claim is held.
func (r *Registry) Register(namespace string, onRevoke func()) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	reg := &Registration{
		id:        r.nextID,
		namespace: namespace,
		registry:  r,
		onRevoke:  onRevoke,
	}
	r.live[reg.id] = reg
	return reg
}

// InvalidateNamespace revokes every live claim on the namespace.
func (r *Registry) InvalidateNamespace(namespace string) {
	r.mu.Lock()
	var revoked []*Registration
	for _, reg := range r.live {
		if reg.namespace == namespace && !reg.revoked {
			reg.revoked = true
			revoked = append(revoked, reg)
		}
	}
	r.mu.Unlock()

	for _, reg := range revoked {
		if reg.onRevoke != nil {
			reg.onRevoke()
		}
	}
}

// Live returns the number of live claims on the namespace.
func (r *Registry) Live(namespace string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, reg := range r.live {
		if reg.namespace == namespace {
			n++
		}
	}
	return n
}

// Release drops the claim. It is idempotent.
func (reg *Registration) Release() {
	if reg.released {
		return
	}
	reg.released = true

	reg.registry.mu.Lock()
	delete(reg.registry.live, reg.id)
	reg.registry.mu.Unlock()
}

// Revoked reports whether the namespace was invalidated while the claim was
// held.
func (reg *Registration) Revoked() bool {
	reg.registry.mu.Lock()
	defer reg.registry.mu.Unlock()
	return reg.revoked
}
