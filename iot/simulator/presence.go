package simulator

import (
	"fmt"
	"math/rand/v2"
)

// Rand is the random source of the presence signal
type Rand interface {
	// Float64 returns a number in [0.0, 1.0)
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 {
	return rand.Float64()
}

// DefaultRand returns a random source backed by the runtime's global generator. It is safe
// for concurrent use.
func DefaultRand() Rand {
	return globalRand{}
}

// Presence is the state of a probability gated signal
type Presence struct {
	On bool `json:"on"`
}

// Draw draws a number r in (0, 100] and switches the signal on if r <= percentOn. Hence 0
// is never on and 100 always on. Drawing from [0, 100) instead, as Math.random()*100 does,
// would switch a 0 signal on whenever r is exactly 0.
func (p *Presence) Draw(percentOn float64, rng Rand) (bool, error) {
	if !(percentOn >= 0 && percentOn <= 100) {
		return p.On, fmt.Errorf("%w: percentOn %v outside [0,100]", ErrInvalidPayload, percentOn)
	}
	r := 100 - rng.Float64()*100
	p.On = r <= percentOn
	return p.On, nil
}
