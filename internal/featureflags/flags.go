// Package featureflags provides runtime switches for push delivery behavior.
package featureflags

import (
	"errors"
	"time"
)

// ErrFlagNotFound is returned when a feature flag is not found.
var ErrFlagNotFound = errors.New("feature flag not found")

// Well-known feature flag keys.
const (
	// FlagDisablePushSending is the kill switch for all outbound push.
	FlagDisablePushSending = "disable_push_sending"

	// FlagPruneKeysOnStale controls whether pruning a stale push
	// registration also clears the stored encryption keys.
	FlagPruneKeysOnStale = "prune_keys_on_stale"

	// FlagPushTTLSeconds overrides the default push message TTL.
	FlagPushTTLSeconds = "push_ttl_seconds"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// BoolValue returns the flag value as a boolean, or the default when the
// flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// IntValue returns the flag value as an integer, or the default when the
// flag is nil or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		// JSON unmarshals numbers as float64
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// DefaultFlags returns the flag values assumed when the repository has no
// stored value.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagDisablePushSending: {
			Key:       FlagDisablePushSending,
			Value:     false,
			UpdatedAt: now,
		},
		FlagPruneKeysOnStale: {
			Key:       FlagPruneKeysOnStale,
			Value:     true,
			UpdatedAt: now,
		},
		FlagPushTTLSeconds: {
			Key:       FlagPushTTLSeconds,
			Value:     0,
			UpdatedAt: now,
		},
	}
}
