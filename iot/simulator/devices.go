package simulator

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/twinrelay/core/schema"
)

// Capability is one simulated property of a device
type Capability struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Device is a simulated device
type Device struct {
	ID           string
	Plugin       string
	Interval     time.Duration
	Capabilities []Capability
}

type deviceSet struct {
	Devices []struct {
		DeviceID     string       `json:"device_id"`
		Plugin       string       `json:"plugin"`
		Interval     string       `json:"interval"`
		Capabilities []Capability `json:"capabilities"`
	} `json:"devices"`
}

// ParseDeviceSet reads a device set document, validated against schema.DeviceSetID.
// Devices without interval are cycled every defaultInterval.
func ParseDeviceSet(data []byte, validator *schema.Validator, defaultInterval time.Duration) ([]Device, error) {
	if err := validator.ValidateBytes(data, schema.DeviceSetID); err != nil {
		return nil, err
	}
	var set deviceSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(set.Devices))
	seen := map[string]bool{}
	for _, d := range set.Devices {
		if seen[d.DeviceID] {
			return nil, fmt.Errorf("duplicate device '%s'", d.DeviceID)
		}
		seen[d.DeviceID] = true

		interval := defaultInterval
		if d.Interval != "" {
			var err error
			interval, err = time.ParseDuration(d.Interval)
			if err != nil {
				return nil, fmt.Errorf("device '%s': %w", d.DeviceID, err)
			}
		}
		if interval <= 0 {
			return nil, fmt.Errorf("device '%s': interval must be positive", d.DeviceID)
		}
		devices = append(devices, Device{
			ID:           d.DeviceID,
			Plugin:       d.Plugin,
			Interval:     interval,
			Capabilities: d.Capabilities,
		})
	}
	return devices, nil
}
