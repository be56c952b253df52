package push

// OutcomeKind classifies the result of one delivery attempt.
type OutcomeKind string

// Delivery outcome kinds.
const (
	OutcomeDelivered             OutcomeKind = "delivered"
	OutcomeStaleEndpoint         OutcomeKind = "stale_endpoint"
	OutcomeThrottled             OutcomeKind = "throttled"
	OutcomePayloadTooLarge       OutcomeKind = "payload_too_large"
	OutcomeEncryptionUnavailable OutcomeKind = "encryption_unavailable"
	OutcomeTransportError        OutcomeKind = "transport_error"
)

// Outcome is the result of one delivery attempt to one device.
type Outcome struct {
	// DeviceID is the device the attempt targeted.
	DeviceID string `json:"device_id"`

	// Kind classifies the attempt result.
	Kind OutcomeKind `json:"kind"`

	// StatusCode is the push service HTTP status, when one was received.
	StatusCode int `json:"status_code,omitempty"`

	// Detail carries additional context (error text, throttle hint).
	Detail string `json:"detail,omitempty"`

	// Pruned is true when the stale registration was removed as a result
	// of this attempt.
	Pruned bool `json:"pruned,omitempty"`
}

// NotifyResult aggregates per-device outcomes for one notify call.
type NotifyResult struct {
	// Command is the command that was pushed.
	Command Command `json:"command"`

	// AccountID is the account whose devices were targeted.
	AccountID string `json:"account_id"`

	// Outcomes holds one entry per delivery attempt, in no particular order.
	Outcomes []Outcome `json:"outcomes"`

	// PrunedDeviceIDs lists devices whose stale registrations were removed.
	PrunedDeviceIDs []string `json:"pruned_device_ids,omitempty"`

	// NoEligibleDevices is true when the account had no push-eligible
	// devices after exclusions. Not an error.
	NoEligibleDevices bool `json:"no_eligible_devices,omitempty"`

	Delivered             int `json:"delivered"`
	StaleEndpoints        int `json:"stale_endpoints"`
	Throttled             int `json:"throttled"`
	PayloadTooLarge       int `json:"payload_too_large"`
	EncryptionUnavailable int `json:"encryption_unavailable"`
	TransportErrors       int `json:"transport_errors"`
}

// record folds one outcome into the aggregate.
func (r *NotifyResult) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)

	switch o.Kind {
	case OutcomeDelivered:
		r.Delivered++
	case OutcomeStaleEndpoint:
		r.StaleEndpoints++
	case OutcomeThrottled:
		r.Throttled++
	case OutcomePayloadTooLarge:
		r.PayloadTooLarge++
	case OutcomeEncryptionUnavailable:
		r.EncryptionUnavailable++
	case OutcomeTransportError:
		r.TransportErrors++
	}

	if o.Pruned {
		r.PrunedDeviceIDs = append(r.PrunedDeviceIDs, o.DeviceID)
	}
}

// Attempted returns the number of delivery attempts made.
func (r *NotifyResult) Attempted() int {
	return len(r.Outcomes)
}

// AllDelivered returns true when every attempt succeeded and at least one
// attempt was made.
func (r *NotifyResult) AllDelivered() bool {
	return len(r.Outcomes) > 0 && r.Delivered == len(r.Outcomes)
}
