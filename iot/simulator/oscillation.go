package simulator

import (
	"fmt"
	"math"
)

// Oscillation is the state of a triangle wave. Lower <= Current <= Upper holds after every
// Configure and Step.
type Oscillation struct {
	Current   float64 `json:"current"`
	Ascending bool    `json:"ascending"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

// NewOscillation returns the state of a device that has not been cycled yet
func NewOscillation() Oscillation {
	return Oscillation{Current: 0, Ascending: true, Lower: 0, Upper: 100}
}

// Configure sets the bounds. A value below the new lower bound restarts ascending from it,
// a value above the new upper bound restarts descending from it.
func (o *Oscillation) Configure(min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return fmt.Errorf("%w: min %v is above max %v", ErrInvalidPayload, min, max)
	}
	o.Lower, o.Upper = min, max
	if o.Current < min {
		o.Current = min
		o.Ascending = true
	} else if o.Current > max {
		o.Current = max
		o.Ascending = false
	}
	return nil
}

// Step moves the value by increment in the current direction. Crossing a bound clamps the
// value to it and reverses the direction.
func (o *Oscillation) Step(increment float64) (float64, error) {
	if math.IsNaN(increment) || increment < 0 {
		return o.Current, fmt.Errorf("%w: negative increment %v", ErrInvalidPayload, increment)
	}
	if o.Ascending {
		o.Current += increment
		if o.Current > o.Upper {
			o.Current = o.Upper
			o.Ascending = false
		}
	} else {
		o.Current -= increment
		if o.Current < o.Lower {
			o.Current = o.Lower
			o.Ascending = true
		}
	}
	return o.Current, nil
}

// Advance configures the bounds and steps once. Nothing changes if the parameters are invalid.
func (o *Oscillation) Advance(min, max, increment float64) (float64, error) {
	if math.IsNaN(increment) || increment < 0 {
		return o.Current, fmt.Errorf("%w: negative increment %v", ErrInvalidPayload, increment)
	}
	if err := o.Configure(min, max); err != nil {
		return o.Current, err
	}
	return o.Step(increment)
}

// Percent returns the position of the current value between the bounds, 0 to 100, rounded
// half away from zero
func (o *Oscillation) Percent() (int, error) {
	span := o.Upper - o.Lower
	if span == 0 {
		return 0, fmt.Errorf("%w: %v", ErrDivisionByZeroBounds, o.Lower)
	}
	return int(math.Round((o.Current - o.Lower) / span * 100)), nil
}
