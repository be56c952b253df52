package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pushgate/pushgate/internal/api/models"
	"github.com/pushgate/pushgate/internal/api/response"
	"github.com/pushgate/pushgate/internal/device"
)

// DeviceHandler handles device registry endpoints.
type DeviceHandler struct {
	devices *device.Service
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(devices *device.Service) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// ListDevices handles GET /v1/accounts/{accountId}/devices.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if accountID == "" {
		response.BadRequest(w, r, "accountId is required", nil)
		return
	}

	devices, err := h.devices.List(r.Context(), accountID)
	if err != nil {
		response.InternalError(w, r, "failed to list devices")
		return
	}

	response.JSON(w, r, http.StatusOK, devices)
}

// GetDevice handles GET /v1/accounts/{accountId}/devices/{deviceId}.
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	deviceID := chi.URLParam(r, "deviceId")

	d, err := h.devices.Get(r.Context(), accountID, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			response.NotFound(w, r, "device not found")
			return
		}
		response.InternalError(w, r, "failed to get device")
		return
	}

	response.JSON(w, r, http.StatusOK, d)
}

// RegisterDevice handles POST /v1/accounts/{accountId}/devices.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if accountID == "" {
		response.BadRequest(w, r, "accountId is required", nil)
		return
	}

	var input models.UpsertDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Name == "" {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "name", Message: "name is required", Code: "required"},
		})
		return
	}

	d, created, err := h.devices.Upsert(r.Context(), accountID, "", &input)
	if err != nil {
		response.InternalError(w, r, "failed to register device")
		return
	}

	location := fmt.Sprintf("/v1/accounts/%s/devices/%s", accountID, d.ID)
	if created {
		response.Created(w, r, location, d)
		return
	}
	response.JSON(w, r, http.StatusOK, d)
}

// UpdateDevice handles PUT /v1/accounts/{accountId}/devices/{deviceId}.
func (h *DeviceHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	deviceID := chi.URLParam(r, "deviceId")

	var input models.UpsertDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	d, _, err := h.devices.Upsert(r.Context(), accountID, deviceID, &input)
	if err != nil {
		response.InternalError(w, r, "failed to update device")
		return
	}

	response.JSON(w, r, http.StatusOK, d)
}

// UnregisterDevice handles DELETE /v1/accounts/{accountId}/devices/{deviceId}.
func (h *DeviceHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	deviceID := chi.URLParam(r, "deviceId")
	if deviceID == "" {
		response.BadRequest(w, r, "deviceId is required", nil)
		return
	}

	if err := h.devices.Delete(r.Context(), accountID, deviceID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			response.NotFound(w, r, "device not found")
			return
		}
		response.InternalError(w, r, "failed to delete device")
		return
	}

	response.NoContent(w, r)
}
