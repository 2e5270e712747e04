package patch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage_Envelope(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"subject":"thermostat67","data":{"modelId":"dtmi:foobar:Thermostat;1","patch":[{"value":43,"path":"/Temperature","op":"replace"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "thermostat67", msg.EntityIdentifier)
	assert.Equal(t, "dtmi:foobar:Thermostat;1", msg.ModelID)
	require.Len(t, msg.Patch, 1)
	assert.Equal(t, Operation{Op: Replace, Path: "/Temperature", Value: raw(`43`)}, msg.Patch[0])
}

func TestParseMessage_WithoutIdentifier(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"patch":[]}`))
	require.NoError(t, err)
	assert.Empty(t, msg.EntityIdentifier)
	assert.Empty(t, msg.Patch)

	_, err = FlattenMessage(msg)
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestParseMessage_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		index int
	}{
		{name: "not json", data: `patch`, index: -1},
		{name: "missing patch", data: `{"entityIdentifier":"dev"}`, index: -1},
		{name: "patch is object", data: `{"patch":{"op":"add"},"entityIdentifier":"dev"}`, index: -1},
		{name: "numeric path", data: `{"patch":[{"op":"add","path":"/a","value":1},{"op":"add","path":5,"value":1}],"entityIdentifier":"dev"}`, index: 1},
		{name: "missing path", data: `{"patch":[{"op":"add","value":1}],"entityIdentifier":"dev"}`, index: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedInput))
			var perr *Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.index, perr.Index)
		})
	}
}

func TestFromTelemetry(t *testing.T) {
	doc, err := FromTelemetry([]byte(`{"State":true,"airflow":40,"temperature":21.5,"IsOccupied":"False","humidity":3}`))
	require.NoError(t, err)
	assert.Equal(t, Document{
		{Op: Add, Path: "/temperature", Value: raw(`21.5`)},
		{Op: Add, Path: "/airflow", Value: raw(`40`)},
		{Op: Add, Path: "/IsOccupied", Value: raw(`false`)},
		{Op: Add, Path: "/State", Value: raw(`true`)},
	}, doc)

	doc, err = FromTelemetry([]byte(`{"humidity":3}`))
	require.NoError(t, err)
	assert.Empty(t, doc)

	_, err = FromTelemetry([]byte(`{"temperature":"warm"}`))
	assert.True(t, errors.Is(err, ErrTypeCoercion))

	_, err = FromTelemetry([]byte(`{"State":1}`))
	assert.True(t, errors.Is(err, ErrTypeCoercion))

	_, err = FromTelemetry([]byte(`[1]`))
	assert.True(t, errors.Is(err, ErrMalformedInput))
}

func TestBroadcast(t *testing.T) {
	out, err := Broadcast(Message{
		EntityIdentifier: "thermostat67",
		ModelID:          "dtmi:foobar:Thermostat;1",
		Patch: Document{
			{Op: Replace, Path: "/Temperature", Value: raw(`43`)},
			{Op: Remove, Path: "/Mode"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"twinId":       "thermostat67",
		"modelId":      "dtmi:foobar:Thermostat;1",
		"/Temperature": raw(`43`),
		"/Mode":        nil,
	}, out)

	_, err = Broadcast(Message{})
	assert.True(t, errors.Is(err, ErrMalformedInput))
}
