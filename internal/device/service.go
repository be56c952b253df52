package device

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pushgate/pushgate/internal/api/models"
)

// Service provides device registry operations for the API layer.
type Service struct {
	registry Registry
}

// NewService creates a new device service.
func NewService(registry Registry) *Service {
	return &Service{registry: registry}
}

// List retrieves all devices registered to an account.
func (s *Service) List(ctx context.Context, accountID string) (*models.DeviceList, error) {
	result, err := s.registry.ListByAccount(ctx, accountID, ListOptions{})
	if err != nil {
		return nil, err
	}

	items := make([]models.Device, 0, len(result.Items))
	for _, d := range result.Items {
		items = append(items, s.toAPIDevice(d))
	}

	return &models.DeviceList{Items: items}, nil
}

// Get retrieves a device by ID for an account.
func (s *Service) Get(ctx context.Context, accountID, deviceID string) (*models.Device, error) {
	d, err := s.registry.Get(ctx, accountID, deviceID)
	if err != nil {
		return nil, err
	}

	result := s.toAPIDevice(d)
	return &result, nil
}

// Upsert registers or updates a device. When deviceID is empty a new ID is
// assigned. Returns the device and whether it was newly created.
func (s *Service) Upsert(ctx context.Context, accountID, deviceID string, input *models.UpsertDeviceRequest) (*models.Device, bool, error) {
	if deviceID == "" {
		deviceID = uuid.New().String()
	}

	now := time.Now()
	d := &Device{
		ID:              deviceID,
		AccountID:       accountID,
		Name:            input.Name,
		Type:            NormalizeType(input.Type),
		PushEndpoint:    input.PushEndpoint,
		PushPublicKey:   input.PushPublicKey,
		PushAuthKey:     input.PushAuthKey,
		IsCurrentDevice: input.IsCurrentDevice,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.registry.Upsert(ctx, d)
	if err != nil {
		return nil, false, err
	}

	result := s.toAPIDevice(d)
	return &result, created, nil
}

// Delete removes a device registration.
func (s *Service) Delete(ctx context.Context, accountID, deviceID string) error {
	return s.registry.Delete(ctx, accountID, deviceID)
}

// toAPIDevice converts a registry device to the API representation.
func (s *Service) toAPIDevice(d *Device) models.Device {
	apiDevice := models.Device{
		ID:              d.ID,
		Name:            d.Name,
		Type:            string(d.Type),
		PushEndpoint:    d.PushEndpoint,
		PushPublicKey:   d.PushPublicKey,
		PushAuthKey:     d.PushAuthKey,
		IsCurrentDevice: d.IsCurrentDevice,
		CreatedAt:       models.Timestamp(d.CreatedAt),
	}
	if !d.UpdatedAt.IsZero() {
		updatedAt := models.Timestamp(d.UpdatedAt)
		apiDevice.UpdatedAt = &updatedAt
	}
	return apiDevice
}
