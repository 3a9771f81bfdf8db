// internal/anchor/registry.go
package anchor

import "sync"

// Registry is the list of devices configured on one line.
// Entries are never removed during a session, only marked Fault.
type Registry struct {
	mu      sync.RWMutex
	devices []*Descriptor
}

func NewRegistry(addresses ...byte) *Registry {
	r := &Registry{}
	for _, a := range addresses {
		r.Register(a)
	}
	return r
}

// Register appends an Uninitialized descriptor.
// Registering the same address twice creates two entries.
func (r *Registry) Register(address byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, &Descriptor{Address: address, State: StateUninitialized})
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Devices returns copies of all descriptors in registration order.
func (r *Registry) Devices() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	return out
}

// Addresses returns the registered addresses in registration order.
func (r *Registry) Addresses() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]byte, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.Address)
	}
	return out
}

// Find returns a copy of the first descriptor registered at address.
func (r *Registry) Find(address byte) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.devices {
		if d.Address == address {
			return *d, true
		}
	}
	return Descriptor{}, false
}

// update applies fn to every entry registered at address.
// Reports whether any entry matched.
func (r *Registry) update(address byte, fn func(d *Descriptor)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, d := range r.devices {
		if d.Address == address {
			fn(d)
			found = true
		}
	}
	return found
}

func (r *Registry) setState(address byte, s State) {
	r.update(address, func(d *Descriptor) { d.State = s })
}
