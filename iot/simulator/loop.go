package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
)

// Reporter receives the readings of a device after every cycle
type Reporter interface {
	Report(ctx context.Context, deviceID string, values map[string]any) error
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(ctx context.Context, deviceID string, values map[string]any) error

// Report implements Reporter
func (f ReporterFunc) Report(ctx context.Context, deviceID string, values map[string]any) error {
	return f(ctx, deviceID, values)
}

// Loop drives a set of simulated devices
type Loop struct {
	devices  []Device
	plugins  map[string]Plugin
	reporter Reporter
	metrics  *metrics.Metrics
}

// LoopBuilder is a builder helper for the Loop
type LoopBuilder struct {
	// Registry resolves the plugin names of the devices. Defaults to NewRegistry()
	Registry *Registry
	// Devices to simulate
	Devices []Device
	// Reporter receives the readings. Mandatory.
	Reporter Reporter
	// Metrics is optional
	Metrics *metrics.Metrics
}

// NewLoop creates a loop. One plugin instance is created per plugin name, shared by all
// devices using it.
func NewLoop(lb LoopBuilder) (*Loop, error) {
	if lb.Reporter == nil {
		panic("Reporter is missing")
	}
	registry := lb.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	l := &Loop{
		devices:  lb.Devices,
		plugins:  map[string]Plugin{},
		reporter: lb.Reporter,
		metrics:  lb.Metrics,
	}
	for _, d := range lb.Devices {
		if _, ok := l.plugins[d.Plugin]; ok {
			continue
		}
		plugin, err := registry.New(d.Plugin)
		if err != nil {
			return nil, err
		}
		if err := plugin.Initialize(); err != nil {
			return nil, err
		}
		l.plugins[d.Plugin] = plugin
	}
	return l, nil
}

// Plugin returns the plugin instance for name
func (l *Loop) Plugin(name string) (Plugin, bool) {
	p, ok := l.plugins[name]
	return p, ok
}

// Run configures all devices and cycles each of them at its interval until ctx is done
func (l *Loop) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range l.devices {
		plugin := l.plugins[d.Plugin]
		plugin.ConfigureDevice(d.ID, false)
		plugin.PostConnect(d.ID)

		wg.Add(1)
		go func(d Device, plugin Plugin) {
			defer wg.Done()
			defer plugin.StopDevice(d.ID)
			dctx, rlog := logger.ContextWithTwin(ctx, d.ID)
			rlog.Infof("simulating device with plugin %s every %v", d.Plugin, d.Interval)

			ticker := time.NewTicker(d.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					l.Cycle(dctx, d)
				}
			}
		}(d, plugin)
	}
	wg.Wait()
}

// Cycle produces one value per capability of d, in order, and reports the values that
// could be produced. It returns the reported values.
func (l *Loop) Cycle(ctx context.Context, d Device) map[string]any {
	rlog := logger.FromContext(ctx)
	plugin, ok := l.plugins[d.Plugin]
	if !ok {
		rlog.Errorf("Error 4003: no plugin %s for device %s", d.Plugin, d.ID)
		return nil
	}
	values := make(map[string]any, len(d.Capabilities))
	for _, c := range d.Capabilities {
		value, err := plugin.PropertyResponse(d.ID, c.ID, c.Payload)
		l.metrics.RecordCycle(d.Plugin, c.ID, err)
		if err != nil {
			rlog.WithError(err).Errorf("Error 4001: cannot cycle capability %s of device %s", c.ID, d.ID)
			continue
		}
		values[c.ID] = value
	}
	if len(values) == 0 {
		return values
	}
	if err := l.reporter.Report(ctx, d.ID, values); err != nil {
		rlog.WithError(err).Errorf("Error 4002: cannot report readings of device %s", d.ID)
	}
	return values
}
