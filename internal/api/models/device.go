package models

// Device represents a registered device in API responses.
type Device struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	PushEndpoint    string     `json:"pushEndpoint,omitempty"`
	PushPublicKey   string     `json:"pushPublicKey,omitempty"`
	PushAuthKey     string     `json:"pushAuthKey,omitempty"`
	IsCurrentDevice bool       `json:"isCurrentDevice"`
	CreatedAt       Timestamp  `json:"createdAt"`
	UpdatedAt       *Timestamp `json:"updatedAt,omitempty"`
}

// DeviceList represents a list of devices.
type DeviceList struct {
	Items []Device `json:"items"`
}

// UpsertDeviceRequest is the body for registering or updating a device.
type UpsertDeviceRequest struct {
	Name            string `json:"name"`
	Type            string `json:"type,omitempty"`
	PushEndpoint    string `json:"pushEndpoint,omitempty"`
	PushPublicKey   string `json:"pushPublicKey,omitempty"`
	PushAuthKey     string `json:"pushAuthKey,omitempty"`
	IsCurrentDevice bool   `json:"isCurrentDevice,omitempty"`
}
