package simulator

import (
	"fmt"
	"sort"
)

// Plugin produces the readings of a device type. PropertyResponse is called once per cycle
// and capability, the remaining methods are lifecycle callbacks of the device driver.
type Plugin interface {
	// Name is the name the plugin is registered under
	Name() string
	// Usage describes the plugin for operators
	Usage() string
	// Initialize is called once before any device is configured
	Initialize() error
	// Reset is called when all devices are reset
	Reset() error
	// ConfigureDevice is called when a device is added or its capabilities changed. Unless
	// the device is running, its last readings are discarded. State is created on first call.
	ConfigureDevice(deviceID string, running bool)
	// PostConnect is called when a device is connected and ready to send data
	PostConnect(deviceID string)
	// StopDevice is called when a device has stopped sending data
	StopDevice(deviceID string)
	// PropertyResponse produces the next value of a capability
	PropertyResponse(deviceID, capabilityID string, payload []byte) (any, error)
	// CommandResponse answers a command sent to the device
	CommandResponse(deviceID, capabilityID string) (any, error)
	// DesiredResponse answers a desired property change sent to the device
	DesiredResponse(deviceID, capabilityID string) (any, error)
	// Readings returns a copy of the last value of every capability of the device
	Readings(deviceID string) map[string]any
}

// Hooks implements the lifecycle callbacks of Plugin as no-ops. Plugins embed it and
// override what they need.
type Hooks struct{}

// Initialize does nothing
func (Hooks) Initialize() error { return nil }

// Reset does nothing
func (Hooks) Reset() error { return nil }

// PostConnect does nothing
func (Hooks) PostConnect(string) {}

// StopDevice does nothing
func (Hooks) StopDevice(string) {}

// CommandResponse does nothing
func (Hooks) CommandResponse(string, string) (any, error) { return nil, nil }

// DesiredResponse does nothing
func (Hooks) DesiredResponse(string, string) (any, error) { return nil, nil }

// readings caches the last value per device and capability
type readings struct {
	store *Store[map[string]any]
}

func newReadings() readings {
	return readings{store: NewStore[map[string]any]()}
}

func (r readings) clear(deviceID string) {
	r.store.Put(deviceID, map[string]any{})
}

func (r readings) set(deviceID, capabilityID string, value any) {
	values, _ := r.store.GetOrCreate(deviceID, func() map[string]any { return map[string]any{} })
	(*values)[capabilityID] = value
}

// Readings returns a copy of the last value of every capability of the device
func (r readings) Readings(deviceID string) map[string]any {
	values, ok := r.store.Get(deviceID)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(*values))
	for k, v := range *values {
		out[k] = v
	}
	return out
}

// Factory creates a plugin with fresh device state
type Factory func() Plugin

// Registry maps plugin names to factories
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry knowing the hvac and smartbinary plugins
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(HVACName, func() Plugin { return NewHVAC(NewStore[Oscillation]()) })
	r.Register(SmartBinaryName, func() Plugin { return NewSmartBinary(NewStore[Presence](), DefaultRand()) })
	return r
}

// Register adds or replaces a plugin factory
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// New creates the plugin registered under name
func (r *Registry) New(name string) (Plugin, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownPlugin, name)
	}
	return factory(), nil
}

// Names returns the sorted names of all registered plugins
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
