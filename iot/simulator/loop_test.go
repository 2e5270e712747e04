package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/core/schema"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports map[string][]map[string]any
	err     error
}

func (r *recordingReporter) Report(_ context.Context, deviceID string, values map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reports == nil {
		r.reports = map[string][]map[string]any{}
	}
	r.reports[deviceID] = append(r.reports[deviceID], values)
	return r.err
}

func (r *recordingReporter) count(deviceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports[deviceID])
}

func hvacDevice() Device {
	return Device{
		ID:       "hvac1",
		Plugin:   HVACName,
		Interval: time.Millisecond,
		Capabilities: []Capability{
			{ID: "temperature", Payload: json.RawMessage(tempPayload)},
			{ID: "airflow", Payload: json.RawMessage(airflowPayload)},
		},
	}
}

func TestLoop_Cycle(t *testing.T) {
	reporter := &recordingReporter{}
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	d := hvacDevice()
	d.Capabilities = append(d.Capabilities, Capability{ID: "IsOccupied", Payload: json.RawMessage(`{"type":"presence","percentOn":50}`)})
	l, err := NewLoop(LoopBuilder{Devices: []Device{d}, Reporter: reporter, Metrics: m})
	require.NoError(t, err)
	p, ok := l.Plugin(HVACName)
	require.True(t, ok)
	p.ConfigureDevice(d.ID, false)

	values := l.Cycle(context.Background(), d)
	assert.Equal(t, map[string]any{"temperature": 3.0, "airflow": 30}, values)
	values = l.Cycle(context.Background(), d)
	assert.Equal(t, map[string]any{"temperature": 6.0, "airflow": 60}, values)
	assert.Equal(t, 2, reporter.count(d.ID))
}

func TestLoop_NothingToReport(t *testing.T) {
	reporter := &recordingReporter{}
	d := Device{ID: "motion1", Plugin: SmartBinaryName, Interval: time.Second,
		Capabilities: []Capability{{ID: "IsOccupied", Payload: json.RawMessage(`{"type":"presence","percentOn":500}`)}}}
	l, err := NewLoop(LoopBuilder{Devices: []Device{d}, Reporter: reporter})
	require.NoError(t, err)
	p, _ := l.Plugin(SmartBinaryName)
	p.ConfigureDevice(d.ID, false)

	assert.Empty(t, l.Cycle(context.Background(), d))
	assert.Equal(t, 0, reporter.count(d.ID))
	assert.Nil(t, l.Cycle(context.Background(), Device{ID: "x", Plugin: "lighting"}))
}

func TestLoop_Run(t *testing.T) {
	reporter := &recordingReporter{err: errors.New("ignored")}
	motion := Device{ID: "motion1", Plugin: SmartBinaryName, Interval: time.Millisecond,
		Capabilities: []Capability{{ID: "IsOccupied", Payload: json.RawMessage(`{"type":"presence","percentOn":100}`)}}}
	l, err := NewLoop(LoopBuilder{Devices: []Device{hvacDevice(), motion}, Reporter: reporter})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return reporter.count("hvac1") >= 3 && reporter.count("motion1") >= 3
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	assert.Equal(t, map[string]any{"IsOccupied": true}, reporter.reports["motion1"][0])
	assert.Equal(t, 3.0, reporter.reports["hvac1"][0]["temperature"])
}

func TestNewLoop(t *testing.T) {
	assert.Panics(t, func() { _, _ = NewLoop(LoopBuilder{}) })

	_, err := NewLoop(LoopBuilder{
		Devices:  []Device{{ID: "l1", Plugin: "lighting"}},
		Reporter: ReporterFunc(func(context.Context, string, map[string]any) error { return nil }),
	})
	assert.True(t, errors.Is(err, ErrUnknownPlugin))
}

func TestParseDeviceSet(t *testing.T) {
	v := schema.Builtin()
	devices, err := ParseDeviceSet([]byte(`{"devices":[
		{"device_id":"hvac1","plugin":"hvac","interval":"2s","capabilities":[
			{"id":"temperature","payload":{"type":"temp","min":0,"max":10,"increment":3}}]},
		{"device_id":"motion1","plugin":"smartbinary","capabilities":[
			{"id":"IsOccupied","payload":{"type":"presence","percentOn":30}}]}]}`), v, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, 2*time.Second, devices[0].Interval)
	assert.Equal(t, 5*time.Second, devices[1].Interval)
	assert.Equal(t, "IsOccupied", devices[1].Capabilities[0].ID)
	assert.JSONEq(t, `{"type":"presence","percentOn":30}`, string(devices[1].Capabilities[0].Payload))

	_, err = ParseDeviceSet([]byte(`{"devices":[{"device_id":"x","plugin":"lighting","capabilities":[{"id":"a","payload":{"type":"temp"}}]}]}`), v, time.Second)
	assert.Error(t, err)

	_, err = ParseDeviceSet([]byte(`{"devices":[
		{"device_id":"x","plugin":"hvac","capabilities":[{"id":"a","payload":{"type":"temp"}}]},
		{"device_id":"x","plugin":"hvac","capabilities":[{"id":"a","payload":{"type":"temp"}}]}]}`), v, time.Second)
	assert.Error(t, err)

	_, err = ParseDeviceSet([]byte(`{"devices":[{"device_id":"x","plugin":"hvac","interval":"soon","capabilities":[{"id":"a","payload":{"type":"temp"}}]}]}`), v, time.Second)
	assert.Error(t, err)
}
