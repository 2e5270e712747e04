package twin

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor(t *testing.T) {
	c := Cursor{ID: "dtmi.thermostat/67"}
	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, decoded)

	for _, invalid := range []string{
		"not base64!",
		base64.URLEncoding.EncodeToString([]byte("thermostat67")),
		base64.URLEncoding.EncodeToString([]byte("v2.thermostat67")),
		base64.URLEncoding.EncodeToString([]byte("v1.")),
	} {
		_, err := DecodeCursor(invalid)
		assert.Error(t, err, invalid)
	}
}
