package simulator

import "fmt"

// SmartBinaryName is the registry name of the smartbinary plugin
const SmartBinaryName = "smartbinary"

// SmartBinary simulates a binary sensor such as a presence detector
type SmartBinary struct {
	Hooks
	readings
	states *Store[Presence]
	rng    Rand
}

var _ Plugin = (*SmartBinary)(nil)

// NewSmartBinary returns a smartbinary plugin keeping device state in states and drawing
// from rng
func NewSmartBinary(states *Store[Presence], rng Rand) *SmartBinary {
	return &SmartBinary{readings: newReadings(), states: states, rng: rng}
}

// Name implements Plugin
func (s *SmartBinary) Name() string { return SmartBinaryName }

// Usage implements Plugin
func (s *SmartBinary) Usage() string {
	return "This plugin simulates a binary sensor which is on with the probability given by percentOn"
}

// ConfigureDevice implements Plugin
func (s *SmartBinary) ConfigureDevice(deviceID string, running bool) {
	if !running {
		s.clear(deviceID)
	}
	s.states.GetOrCreate(deviceID, func() Presence { return Presence{On: false} })
}

// PropertyResponse implements Plugin. Only the presence payload type is supported.
func (s *SmartBinary) PropertyResponse(deviceID, capabilityID string, payload []byte) (any, error) {
	p, kind, err := ParsePayload(payload)
	if err != nil {
		return nil, err
	}
	if kind != KindPresence {
		return nil, fmt.Errorf("%w: %s for plugin %s", ErrUnknownSignalKind, kind, SmartBinaryName)
	}
	state, ok := s.states.Get(deviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotConfigured, deviceID)
	}
	on, err := state.Draw(p.PercentOn, s.rng)
	if err != nil {
		return nil, err
	}
	s.set(deviceID, capabilityID, on)
	return on, nil
}
