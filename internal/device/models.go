// Package device provides the account device registry consumed by the push
// fan-out subsystem.
package device

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrDeviceNotFound = errors.New("device not found")
)

// Type classifies the kind of client a device record represents.
type Type string

const (
	TypeMobile  Type = "mobile"
	TypeDesktop Type = "desktop"
	TypeTablet  Type = "tablet"
	TypeUnknown Type = "unknown"
)

// NormalizeType maps an arbitrary type string onto a known Type.
// Records written before the type enum existed may carry anything.
func NormalizeType(s string) Type {
	switch Type(s) {
	case TypeMobile, TypeDesktop, TypeTablet:
		return Type(s)
	default:
		return TypeUnknown
	}
}

// Device represents a registered device belonging to an account.
//
// PushEndpoint, PushPublicKey and PushAuthKey together form the device's
// push subscription. A web-only session typically has none of them; a
// subscription without key material can still receive empty tickles.
type Device struct {
	ID              string
	AccountID       string
	Name            string
	Type            Type
	PushEndpoint    string
	PushPublicKey   string // base64url uncompressed P-256 point
	PushAuthKey     string // base64url 16-byte auth secret
	IsCurrentDevice bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsPushEligible reports whether the device has a push endpoint to deliver
// to. Devices without one are a normal state, not an error.
func (d *Device) IsPushEligible() bool {
	return d.PushEndpoint != ""
}

// HasPushKeys reports whether both pieces of key material are present.
// Presence does not imply well-formedness; the encoder validates that.
func (d *Device) HasPushKeys() bool {
	return d.PushPublicKey != "" && d.PushAuthKey != ""
}

// ListOptions contains options for listing devices.
type ListOptions struct {
	Limit int
}

// ListResult contains the result of listing devices.
type ListResult struct {
	Items      []*Device
	NextCursor string
}
