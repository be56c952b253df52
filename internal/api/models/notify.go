package models

// NotifyRequest is the body for pushing a command to an account's devices.
type NotifyRequest struct {
	Command          string         `json:"command"`
	Data             map[string]any `json:"data,omitempty"`
	ExcludeDeviceIDs []string       `json:"excludeDeviceIds,omitempty"`
	TTLSeconds       int            `json:"ttlSeconds,omitempty"`
}

// DeliveryOutcome is the per-device result of one delivery attempt.
type DeliveryOutcome struct {
	DeviceID   string `json:"deviceId"`
	Kind       string `json:"kind"`
	StatusCode int    `json:"statusCode,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Pruned     bool   `json:"pruned,omitempty"`
}

// NotifyResponse aggregates the outcomes of one notify call.
type NotifyResponse struct {
	Command               string            `json:"command"`
	AccountID             string            `json:"accountId"`
	NoEligibleDevices     bool              `json:"noEligibleDevices,omitempty"`
	Attempted             int               `json:"attempted"`
	Delivered             int               `json:"delivered"`
	StaleEndpoints        int               `json:"staleEndpoints"`
	Throttled             int               `json:"throttled"`
	PayloadTooLarge       int               `json:"payloadTooLarge"`
	EncryptionUnavailable int               `json:"encryptionUnavailable"`
	TransportErrors       int               `json:"transportErrors"`
	PrunedDeviceIDs       []string          `json:"prunedDeviceIds,omitempty"`
	Outcomes              []DeliveryOutcome `json:"outcomes"`
}
