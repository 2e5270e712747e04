package timeseries

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Duration
	}{
		{"1h", time.Hour},
		{"20m", 20 * time.Minute},
		{"2h30m", 2*time.Hour + 30*time.Minute},
		{"1H20M5S", time.Hour + 20*time.Minute + 5*time.Second},
		{"90s", 90 * time.Second},
		{" 60m ", time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseSince(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}

	for _, invalid := range []string{"", "1d", "30m1h", "abc", "-1h"} {
		_, err := ParseSince(invalid)
		assert.True(t, errors.Is(err, ErrInvalidSince), invalid)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Duration
	}{
		{"pt3m", 3 * time.Minute},
		{"PT30S", 30 * time.Second},
		{"pt1h", time.Hour},
		{"pt2d", 48 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseInterval(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}

	for _, invalid := range []string{"", "3m", "pt3w", "pt0s", "ptm", "pt3m2s"} {
		_, err := ParseInterval(invalid)
		assert.True(t, errors.Is(err, ErrInvalidInterval), invalid)
	}
}

func TestSensorTypes(t *testing.T) {
	expected := map[SensorType]Property{
		HVAC:      {"airflow", "Long"},
		Lighting:  {"State", "Long"},
		Temp:      {"temperature", "Double"},
		Occupancy: {"IsOccupied", "Long"},
	}
	for _, st := range SensorTypes() {
		p, err := PropertyOf(st)
		require.NoError(t, err)
		assert.Equal(t, expected[st], p)
	}

	st, err := ParseSensorType("HVAC")
	require.NoError(t, err)
	assert.Equal(t, HVAC, st)

	_, err = ParseSensorType("humidity")
	assert.True(t, errors.Is(err, ErrUnknownSensorType))
	_, err = PropertyOf("humidity")
	assert.True(t, errors.Is(err, ErrUnknownSensorType))
}

func TestSensorIDs(t *testing.T) {
	assert.Equal(t, []string{"tempsensor1", "tempsensor2", "tempsensor3"}, SensorIDs(Temp, 1, 3))
	assert.Equal(t, []string{"hvacsensor4"}, SensorIDs(HVAC, 4, 1))
	assert.Empty(t, SensorIDs(HVAC, 1, 0))
}
