package push

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushgate/pushgate/internal/push/webpush"
)

func TestBuilder_Build_DeviceDisconnected(t *testing.T) {
	builder := NewBuilder(BuilderConfig{})

	built, err := builder.Build(CommandDeviceDisconnected, map[string]any{
		"id": "0f7aa00356e5416e82b3bef7bc409eef",
	})
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"version":1,"command":"fxaccounts:device_disconnected","data":{"id":"0f7aa00356e5416e82b3bef7bc409eef"}}`,
		string(built.Raw))
	assert.Equal(t, 1, built.Payload.Version)
}

func TestBuilder_Build_NoDataCommands(t *testing.T) {
	builder := NewBuilder(BuilderConfig{})

	for _, command := range []Command{CommandPasswordChanged, CommandPasswordReset, CommandProfileUpdated} {
		built, err := builder.Build(command, nil)
		require.NoError(t, err, command)
		assert.NotContains(t, string(built.Raw), `"data"`, command)
	}
}

func TestBuilder_Build_CollectionChanged(t *testing.T) {
	builder := NewBuilder(BuilderConfig{})

	built, err := builder.Build(CommandCollectionChanged, map[string]any{
		"collections": []string{"clients", "bookmarks"},
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"version":1,"command":"sync:collection_changed","data":{"collections":["clients","bookmarks"]}}`,
		string(built.Raw))
}

func TestBuilder_Build_UnknownCommand(t *testing.T) {
	builder := NewBuilder(BuilderConfig{})

	_, err := builder.Build(Command("fxaccounts:selfdestruct"), nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestBuilder_Build_SchemaViolations(t *testing.T) {
	builder := NewBuilder(BuilderConfig{})

	tests := []struct {
		name    string
		command Command
		data    map[string]any
	}{
		{
			name:    "missing required field",
			command: CommandDeviceDisconnected,
			data:    map[string]any{},
		},
		{
			name:    "wrong field type",
			command: CommandDeviceConnected,
			data:    map[string]any{"deviceName": 42},
		},
		{
			name:    "unknown field",
			command: CommandDeviceDisconnected,
			data:    map[string]any{"id": "abc", "extra": "nope"},
		},
		{
			name:    "data on data-less command",
			command: CommandPasswordChanged,
			data:    map[string]any{"surprise": true},
		},
		{
			name:    "non-string collection entry",
			command: CommandCollectionChanged,
			data:    map[string]any{"collections": []any{"clients", 7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := builder.Build(tt.command, tt.data)
			assert.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestBuilder_Build_PayloadTooLarge(t *testing.T) {
	builder := NewBuilder(BuilderConfig{MaxPayloadBytes: 512})

	_, err := builder.Build(CommandDeviceConnected, map[string]any{
		"deviceName": strings.Repeat("x", 600),
	})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestBuilder_Build_SizeBoundAccountsForEncryptionOverhead(t *testing.T) {
	builder := NewBuilder(BuilderConfig{})

	// Pad the name so the payload lands exactly on the pre-encryption limit.
	limit := builder.MaxPayloadBytes() - webpush.CiphertextOverhead
	base, err := builder.Build(CommandDeviceConnected, map[string]any{"deviceName": ""})
	require.NoError(t, err)
	name := strings.Repeat("x", limit-len(base.Raw))

	built, err := builder.Build(CommandDeviceConnected, map[string]any{"deviceName": name})
	require.NoError(t, err)
	assert.Equal(t, limit, len(built.Raw))

	_, err = builder.Build(CommandDeviceConnected, map[string]any{"deviceName": name + "x"})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestBuilder_Commands(t *testing.T) {
	builder := NewBuilder(BuilderConfig{})

	commands := builder.Commands()
	assert.Len(t, commands, 7)
	assert.Contains(t, commands, CommandAccountDestroyed)
	assert.IsIncreasing(t, commands)
}
