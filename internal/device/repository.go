package device

import "context"

// Registry defines the interface for device registration persistence.
//
// The push subsystem only reads device records, with one exception: clearing
// a push subscription when the push service reports the endpoint as
// permanently gone.
type Registry interface {
	// Get retrieves a device by account ID and device ID.
	Get(ctx context.Context, accountID, deviceID string) (*Device, error)

	// ListByAccount retrieves all devices for an account.
	ListByAccount(ctx context.Context, accountID string, opts ListOptions) (*ListResult, error)

	// Upsert creates or updates a device record.
	// Returns true if a new record was created, false if updated.
	Upsert(ctx context.Context, device *Device) (created bool, err error)

	// Delete deletes a device record.
	Delete(ctx context.Context, accountID, deviceID string) error

	// ClearPushSubscription removes the device's push endpoint, and its key
	// material when clearKeys is set. The device record itself survives.
	ClearPushSubscription(ctx context.Context, accountID, deviceID string, clearKeys bool) error
}
