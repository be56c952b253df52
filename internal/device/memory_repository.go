package device

import (
	"context"
	"sync"
	"time"
)

// InMemoryRegistry is an in-memory implementation of Registry.
// This is intended for testing. Production should use the PostgreSQL implementation.
type InMemoryRegistry struct {
	mu       sync.RWMutex
	accounts map[string]map[string]*Device // accountID -> deviceID -> device
}

// NewInMemoryRegistry creates a new in-memory device registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		accounts: make(map[string]map[string]*Device),
	}
}

// Get retrieves a device by account ID and device ID.
func (r *InMemoryRegistry) Get(_ context.Context, accountID, deviceID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.accounts[accountID][deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(d), nil
}

// ListByAccount retrieves all devices for an account.
func (r *InMemoryRegistry) ListByAccount(_ context.Context, accountID string, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Device
	for _, d := range r.accounts[accountID] {
		items = append(items, copyDevice(d))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}
	if len(items) > limit {
		items = items[:limit]
	}

	return &ListResult{
		Items: items,
	}, nil
}

// Upsert creates or updates a device record.
func (r *InMemoryRegistry) Upsert(_ context.Context, device *Device) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, ok := r.accounts[device.AccountID]
	if !ok {
		devices = make(map[string]*Device)
		r.accounts[device.AccountID] = devices
	}

	_, existed := devices[device.ID]
	devices[device.ID] = copyDevice(device)
	return !existed, nil
}

// Delete deletes a device record.
func (r *InMemoryRegistry) Delete(_ context.Context, accountID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := r.accounts[accountID]
	if _, ok := devices[deviceID]; !ok {
		return ErrDeviceNotFound
	}

	delete(devices, deviceID)
	return nil
}

// ClearPushSubscription removes the push endpoint, and the key material when
// clearKeys is set.
func (r *InMemoryRegistry) ClearPushSubscription(_ context.Context, accountID, deviceID string, clearKeys bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.accounts[accountID][deviceID]
	if !ok {
		return ErrDeviceNotFound
	}

	d.PushEndpoint = ""
	if clearKeys {
		d.PushPublicKey = ""
		d.PushAuthKey = ""
	}
	d.UpdatedAt = time.Now()
	return nil
}

// copyDevice creates a copy of a device so callers cannot mutate stored state.
func copyDevice(d *Device) *Device {
	if d == nil {
		return nil
	}
	deviceCopy := *d
	return &deviceCopy
}

// Ensure InMemoryRegistry implements Registry interface.
var _ Registry = (*InMemoryRegistry)(nil)
