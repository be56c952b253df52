package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pushgate/pushgate/internal/api/middleware"
	"github.com/pushgate/pushgate/internal/api/models"
	"github.com/pushgate/pushgate/internal/api/response"
	"github.com/pushgate/pushgate/internal/device"
	"github.com/pushgate/pushgate/internal/push"
)

// NotifyHandler handles push fan-out endpoints.
type NotifyHandler struct {
	pusher  *push.Service
	devices *device.Service
	metrics *middleware.DeliveryMetrics
}

// NewNotifyHandler creates a new NotifyHandler.
func NewNotifyHandler(pusher *push.Service, devices *device.Service, metrics *middleware.DeliveryMetrics) *NotifyHandler {
	return &NotifyHandler{
		pusher:  pusher,
		devices: devices,
		metrics: metrics,
	}
}

// Notify handles POST /v1/accounts/{accountId}/notify - fan a command out to
// the account's devices.
func (h *NotifyHandler) Notify(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	if accountID == "" {
		response.BadRequest(w, r, "accountId is required", nil)
		return
	}

	var input models.NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Command == "" {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "command", Message: "command is required", Code: "required"},
		})
		return
	}

	opts := push.NotifyOptions{
		ExcludeDeviceIDs: input.ExcludeDeviceIDs,
		TTL:              time.Duration(input.TTLSeconds) * time.Second,
	}

	start := time.Now()
	result, err := h.pusher.Notify(r.Context(), accountID, push.Command(input.Command), input.Data, opts)
	if err != nil {
		h.writeNotifyError(w, r, err)
		return
	}
	h.recordFanOut(result, time.Since(start))

	response.JSON(w, r, http.StatusOK, toNotifyResponse(result))
}

// DisconnectDevice handles POST /v1/accounts/{accountId}/devices/{deviceId}/disconnect -
// remove a device registration and tell the account's devices about it.
func (h *NotifyHandler) DisconnectDevice(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	deviceID := chi.URLParam(r, "deviceId")

	if err := h.devices.Delete(r.Context(), accountID, deviceID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			response.NotFound(w, r, "device not found")
			return
		}
		response.InternalError(w, r, "failed to delete device")
		return
	}

	start := time.Now()
	result, err := h.pusher.NotifyDeviceDisconnected(r.Context(), accountID, deviceID)
	if err != nil {
		// The registration is already gone; report the fan-out failure
		// rather than pretending the notification went out.
		h.writeNotifyError(w, r, err)
		return
	}
	h.recordFanOut(result, time.Since(start))

	response.JSON(w, r, http.StatusOK, toNotifyResponse(result))
}

func (h *NotifyHandler) writeNotifyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, push.ErrUnknownCommand), errors.Is(err, push.ErrSchemaViolation), errors.Is(err, push.ErrPayloadTooLarge):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, push.ErrPushDisabled):
		response.ServiceUnavailable(w, r, "push sending is disabled")
	case errors.Is(err, push.ErrRegistryUnavailable):
		response.ServiceUnavailable(w, r, "device registry unavailable")
	default:
		response.InternalError(w, r, "push fan-out failed")
	}
}

func (h *NotifyHandler) recordFanOut(result *push.NotifyResult, duration time.Duration) {
	if h.metrics == nil {
		return
	}

	outcomes := make(map[string]int, 6)
	for _, o := range result.Outcomes {
		outcomes[string(o.Kind)]++
	}
	h.metrics.RecordFanOut(string(result.Command), duration, outcomes, len(result.PrunedDeviceIDs))
}

// toNotifyResponse converts a fan-out result to the API representation.
func toNotifyResponse(result *push.NotifyResult) models.NotifyResponse {
	outcomes := make([]models.DeliveryOutcome, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		outcomes = append(outcomes, models.DeliveryOutcome{
			DeviceID:   o.DeviceID,
			Kind:       string(o.Kind),
			StatusCode: o.StatusCode,
			Detail:     o.Detail,
			Pruned:     o.Pruned,
		})
	}

	return models.NotifyResponse{
		Command:               string(result.Command),
		AccountID:             result.AccountID,
		NoEligibleDevices:     result.NoEligibleDevices,
		Attempted:             result.Attempted(),
		Delivered:             result.Delivered,
		StaleEndpoints:        result.StaleEndpoints,
		Throttled:             result.Throttled,
		PayloadTooLarge:       result.PayloadTooLarge,
		EncryptionUnavailable: result.EncryptionUnavailable,
		TransportErrors:       result.TransportErrors,
		PrunedDeviceIDs:       result.PrunedDeviceIDs,
		Outcomes:              outcomes,
	}
}
