// Package push implements the account push fan-out subsystem: payload
// construction, per-device encryption, concurrent delivery and outcome
// classification.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/pushgate/pushgate/internal/push/webpush"
)

// Payload construction errors. These abort a notify call before fan-out.
var (
	ErrUnknownCommand  = errors.New("unknown push command")
	ErrSchemaViolation = errors.New("payload schema violation")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
)

// PayloadVersion is the current notification payload version. Clients use it
// to reject payloads from a future contract.
const PayloadVersion = 1

// DefaultMaxPayloadBytes bounds the encrypted message body. The serialized
// payload itself must fit under it minus the encryption overhead.
const DefaultMaxPayloadBytes = 4096

// Command identifies an account-level event pushed to devices.
type Command string

// Commands understood by clients.
const (
	CommandDeviceConnected    Command = "fxaccounts:device_connected"
	CommandDeviceDisconnected Command = "fxaccounts:device_disconnected"
	CommandPasswordChanged    Command = "fxaccounts:password_changed"
	CommandPasswordReset      Command = "fxaccounts:password_reset"
	CommandProfileUpdated     Command = "fxaccounts:profile_updated"
	CommandAccountDestroyed   Command = "fxaccounts:account_destroyed"
	CommandCollectionChanged  Command = "sync:collection_changed"
)

// Payload is the versioned notification structure delivered to devices.
type Payload struct {
	Version int            `json:"version"`
	Command Command        `json:"command"`
	Data    map[string]any `json:"data,omitempty"`
}

// BuiltPayload is a validated, serialized payload ready for encryption.
type BuiltPayload struct {
	Payload Payload
	Raw     []byte
}

// fieldKind is the JSON type expected for a data field.
type fieldKind int

const (
	fieldString fieldKind = iota
	fieldStringSlice
)

type fieldSpec struct {
	kind     fieldKind
	required bool
}

// commandSchema describes the data object accepted for one command.
type commandSchema struct {
	fields map[string]fieldSpec
}

// BuilderConfig holds configuration for the payload builder.
type BuilderConfig struct {
	// MaxPayloadBytes bounds the encrypted message body.
	// Default: DefaultMaxPayloadBytes.
	MaxPayloadBytes int
}

// Builder constructs and validates notification payloads. The command schema
// set is fixed at construction; there is no runtime registration.
type Builder struct {
	schemas  map[Command]commandSchema
	maxBytes int
}

// NewBuilder creates a payload builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	maxBytes := cfg.MaxPayloadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}

	return &Builder{
		schemas:  commandSchemas(),
		maxBytes: maxBytes,
	}
}

// commandSchemas returns the command to schema mapping. Adding a command
// without a schema here is impossible, which is the point.
func commandSchemas() map[Command]commandSchema {
	return map[Command]commandSchema{
		CommandDeviceConnected: {fields: map[string]fieldSpec{
			"deviceName": {kind: fieldString, required: true},
		}},
		CommandDeviceDisconnected: {fields: map[string]fieldSpec{
			"id": {kind: fieldString, required: true},
		}},
		CommandPasswordChanged: {},
		CommandPasswordReset:   {},
		CommandProfileUpdated:  {},
		CommandAccountDestroyed: {fields: map[string]fieldSpec{
			"uid": {kind: fieldString, required: true},
		}},
		CommandCollectionChanged: {fields: map[string]fieldSpec{
			"collections": {kind: fieldStringSlice, required: true},
		}},
	}
}

// Commands returns the known commands, sorted.
func (b *Builder) Commands() []Command {
	commands := make([]Command, 0, len(b.schemas))
	for c := range b.schemas {
		commands = append(commands, c)
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i] < commands[j] })
	return commands
}

// MaxPayloadBytes returns the configured encrypted-body size bound.
func (b *Builder) MaxPayloadBytes() int {
	return b.maxBytes
}

// Build validates data against the command's schema, serializes the payload
// and enforces the size bound. The bound applied here subtracts the
// encryption overhead so a payload that passes cannot later exceed the
// encrypted limit.
func (b *Builder) Build(command Command, data map[string]any) (*BuiltPayload, error) {
	schema, ok := b.schemas[command]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	if err := schema.validate(data); err != nil {
		return nil, fmt.Errorf("%w: command %q: %v", ErrSchemaViolation, command, err)
	}

	payload := Payload{
		Version: PayloadVersion,
		Command: command,
		Data:    data,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: command %q: %v", ErrSchemaViolation, command, err)
	}

	limit := b.maxBytes - webpush.CiphertextOverhead
	if len(raw) > limit {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(raw), limit)
	}

	return &BuiltPayload{Payload: payload, Raw: raw}, nil
}

// validate checks data against the schema: no unknown fields, all required
// fields present, every field of the declared type.
func (s commandSchema) validate(data map[string]any) error {
	for name, spec := range s.fields {
		value, ok := data[name]
		if !ok {
			if spec.required {
				return fmt.Errorf("missing required field %q", name)
			}
			continue
		}
		if err := spec.check(value); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}

	for name := range data {
		if _, ok := s.fields[name]; !ok {
			return fmt.Errorf("unknown field %q", name)
		}
	}

	return nil
}

func (f fieldSpec) check(value any) error {
	switch f.kind {
	case fieldString:
		if _, ok := value.(string); !ok {
			return errors.New("expected string")
		}
	case fieldStringSlice:
		switch v := value.(type) {
		case []string:
		case []any:
			for _, item := range v {
				if _, ok := item.(string); !ok {
					return errors.New("expected array of strings")
				}
			}
		default:
			return errors.New("expected array of strings")
		}
	}
	return nil
}
