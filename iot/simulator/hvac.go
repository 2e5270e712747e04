package simulator

import "fmt"

// HVACName is the registry name of the hvac plugin
const HVACName = "hvac"

// HVAC simulates a simple hvac system. The temperature capability oscillates between the
// payload's min and max, the airflow capability reports how far the temperature is above the
// lower bound, in percent of the range.
type HVAC struct {
	Hooks
	readings
	states *Store[Oscillation]
}

var _ Plugin = (*HVAC)(nil)

// NewHVAC returns an hvac plugin keeping device state in states
func NewHVAC(states *Store[Oscillation]) *HVAC {
	return &HVAC{readings: newReadings(), states: states}
}

// Name implements Plugin
func (h *HVAC) Name() string { return HVACName }

// Usage implements Plugin
func (h *HVAC) Usage() string {
	return "This plugin simulates a simple hvac system"
}

// ConfigureDevice implements Plugin
func (h *HVAC) ConfigureDevice(deviceID string, running bool) {
	if !running {
		h.clear(deviceID)
	}
	h.states.GetOrCreate(deviceID, NewOscillation)
}

// PropertyResponse implements Plugin. Payload types temp and airflow are supported.
func (h *HVAC) PropertyResponse(deviceID, capabilityID string, payload []byte) (any, error) {
	p, kind, err := ParsePayload(payload)
	if err != nil {
		return nil, err
	}
	state, ok := h.states.Get(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotConfigured, deviceID)
	}

	var value any
	switch kind {
	case KindTemperature:
		current, err := state.Advance(p.Min, p.Max, p.Increment)
		if err != nil {
			return nil, err
		}
		value = current
	case KindAirflow:
		percent, err := state.Percent()
		if err != nil {
			return nil, err
		}
		value = percent
	default:
		return nil, fmt.Errorf("%w: %s for plugin %s", ErrUnknownSignalKind, kind, HVACName)
	}

	h.set(deviceID, capabilityID, value)
	return value, nil
}
