package simulator

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func TestPresence_Bounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	p := Presence{}
	for i := 0; i < 1000; i++ {
		on, err := p.Draw(100, rng)
		require.NoError(t, err)
		assert.True(t, on)
	}
	for i := 0; i < 1000; i++ {
		on, err := p.Draw(0, rng)
		require.NoError(t, err)
		assert.False(t, on)
	}

	// the extremes of the source
	on, _ := p.Draw(0, constRand(0))
	assert.False(t, on)
	on, _ = p.Draw(100, constRand(0.9999999))
	assert.True(t, on)
}

func TestPresence_Distribution(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1024))
	p := Presence{}
	const n = 20000
	count := 0
	for i := 0; i < n; i++ {
		on, err := p.Draw(50, rng)
		require.NoError(t, err)
		if on {
			count++
		}
	}
	// five standard deviations of a fair coin over n draws
	assert.InDelta(t, 0.5, float64(count)/n, 0.018)
}

func TestPresence_InvalidPercent(t *testing.T) {
	p := Presence{On: true}
	_, err := p.Draw(101, constRand(0.5))
	assert.True(t, errors.Is(err, ErrInvalidPayload))
	_, err = p.Draw(-1, constRand(0.5))
	assert.True(t, errors.Is(err, ErrInvalidPayload))
	assert.True(t, p.On)
}
