package device

import (
	"errors"
	"sync"
)

// Registry errors.
var (
	ErrDuplicateID      = errors.New("duplicate device id")
	ErrNotFound         = errors.New("device not found")
	ErrCapacityExceeded = errors.New("registry capacity exceeded")
)

// DefaultCapacity is the registry capacity used when none is given.
const DefaultCapacity = 100

// Registry is the authoritative set of known devices.
type Registry struct {
	mu sync.RWMutex

	// Insertion-ordered entries plus an id index for O(1) lookup.
	ordered  []*Device
	byID     map[int]*Device
	capacity int
}

// NewRegistry creates an empty registry bounded to the given capacity.
// A non-positive capacity falls back to DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		ordered:  make([]*Device, 0, capacity),
		byID:     make(map[int]*Device, capacity),
		capacity: capacity,
	}
}

// Add inserts a new enabled device. It fails with ErrDuplicateID if the id
// is already present and ErrCapacityExceeded at the capacity bound; a failed
// Add never mutates the registry.
func (r *Registry) Add(id int, name string, unitAddress uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return ErrDuplicateID
	}
	if len(r.ordered) >= r.capacity {
		return ErrCapacityExceeded
	}

	d := &Device{
		ID:          id,
		Name:        name,
		UnitAddress: unitAddress,
		Enabled:     true,
	}
	r.ordered = append(r.ordered, d)
	r.byID[id] = d
	return nil
}

// Remove deletes a device by id.
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return ErrNotFound
	}
	delete(r.byID, id)
	for i, d := range r.ordered {
		if d.ID == id {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of the device with the given id.
func (r *Registry) Get(id int) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.byID[id]
	if !exists {
		return Device{}, ErrNotFound
	}
	return *d, nil
}

// Enable marks a device for polling. Enabling an already-enabled device
// succeeds and changes nothing.
func (r *Registry) Enable(id int) error {
	return r.setEnabled(id, true)
}

// Disable excludes a device from polling. Idempotent like Enable.
func (r *Registry) Disable(id int) error {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.byID[id]
	if !exists {
		return ErrNotFound
	}
	d.Enabled = enabled
	return nil
}

// List returns an insertion-order snapshot of all devices.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Device, len(r.ordered))
	for i, d := range r.ordered {
		result[i] = *d
	}
	return result
}

// ListEnabled returns the poll targets for all enabled devices, in
// insertion order.
func (r *Registry) ListEnabled() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Target
	for _, d := range r.ordered {
		if d.Enabled {
			result = append(result, Target{DeviceID: d.ID, UnitAddress: d.UnitAddress})
		}
	}
	return result
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// Capacity returns the registry capacity bound.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Process performs one poll tick: every enabled device's poll counter is
// incremented. It returns the number of devices ticked. This is the
// extension point where the protocol layer will dispatch per-device
// requests; the registry itself never does I/O.
func (r *Registry) Process() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticked := 0
	for _, d := range r.ordered {
		if d.Enabled {
			d.Polls++
			ticked++
		}
	}
	return ticked
}
