package simulator

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	// ErrUnknownSignalKind is returned for a payload type the plugin cannot produce
	ErrUnknownSignalKind = errors.New("unknown signal kind")
	// ErrDivisionByZeroBounds is returned when the airflow is derived from collapsed bounds
	ErrDivisionByZeroBounds = errors.New("upper and lower bound are equal")
	// ErrInvalidPayload is returned for payloads that cannot be decoded or carry bad parameters
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrDeviceNotConfigured is returned when a device is cycled before ConfigureDevice
	ErrDeviceNotConfigured = errors.New("device not configured")
	// ErrUnknownPlugin is returned by the registry for plugin names it does not know
	ErrUnknownPlugin = errors.New("unknown plugin")
)

// Kind selects the signal a capability produces
type Kind int

// Signal kinds
const (
	KindTemperature Kind = iota + 1
	KindAirflow
	KindPresence
)

var kindNames = map[Kind]string{
	KindTemperature: "temp",
	KindAirflow:     "airflow",
	KindPresence:    "presence",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps the payload type discriminator to a Kind
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: '%s'", ErrUnknownSignalKind, s)
}

// Payload carries the parameters of one capability. Min, Max and Increment configure the
// temperature, PercentOn the presence probability.
type Payload struct {
	Type      string  `json:"type"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Increment float64 `json:"increment"`
	PercentOn float64 `json:"percentOn"`
}

// ParsePayload decodes a capability payload and resolves its kind
func ParsePayload(data []byte) (Payload, Kind, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, 0, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	kind, err := ParseKind(p.Type)
	if err != nil {
		return p, 0, err
	}
	return p, kind, nil
}
