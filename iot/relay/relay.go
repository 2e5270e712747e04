package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/core/metrics"
	"github.com/relabs-tech/twinrelay/iot"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

// Sink receives flattened records
type Sink interface {
	Name() string
	Write(ctx context.Context, records ...patch.Record) error
}

// Relay flattens change events and fans the records out to its sinks
type Relay struct {
	sinks       []Sink
	broadcaster iot.ChangePublisher
	metrics     *metrics.Metrics
}

// Builder is a builder helper for the Relay
type Builder struct {
	// Sinks receive the records. At least one sink is mandatory.
	Sinks []Sink
	// Broadcaster receives every valid change event. Optional.
	Broadcaster iot.ChangePublisher
	// Metrics is optional
	Metrics *metrics.Metrics
}

// NewRelay returns a new relay
func NewRelay(b *Builder) *Relay {
	if len(b.Sinks) == 0 {
		panic("no sinks")
	}
	return &Relay{sinks: b.Sinks, broadcaster: b.Broadcaster, metrics: b.Metrics}
}

// Handle processes one change event received from source. The subject is the twin id
// carried by the transport, it is used when the event body has no entity identifier. Handle
// returns the emitted record, or nil if the event had nothing to emit.
func (r *Relay) Handle(ctx context.Context, source string, data []byte, subject string) (patch.Record, error) {
	rlog := logger.FromContext(ctx)
	msg, err := patch.ParseMessage(data)
	if err == nil {
		if msg.EntityIdentifier == "" {
			msg.EntityIdentifier = subject
		}
		var record patch.Record
		record, err = patch.FlattenMessage(msg)
		if err == nil {
			return r.emit(ctx, source, msg, record)
		}
	}
	r.metrics.RecordFlattenError(patch.KindName(err))
	r.metrics.RecordMessage(source, metrics.OutcomeError)
	rlog.WithError(err).Errorln("Error 4501: cannot flatten change event")
	return nil, err
}

func (r *Relay) emit(ctx context.Context, source string, msg patch.Message, record patch.Record) (patch.Record, error) {
	rlog := logger.FromContext(ctx).WithField("twinID", msg.EntityIdentifier)

	if r.broadcaster != nil {
		if err := r.broadcaster.PublishChange(ctx, msg); err != nil {
			rlog.WithError(err).Errorln("Error 4502: cannot broadcast change event")
		}
	}

	if record == nil {
		r.metrics.RecordMessage(source, metrics.OutcomeEmpty)
		rlog.Debugln("nothing to emit")
		return nil, nil
	}

	var errs []error
	for _, sink := range r.sinks {
		start := time.Now()
		err := sink.Write(ctx, record)
		r.metrics.RecordSinkWrite(sink.Name(), time.Since(start), err)
		if err != nil {
			rlog.WithError(err).Errorf("Error 4503: cannot write record to sink %s", sink.Name())
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
		}
	}
	if len(errs) > 0 {
		r.metrics.RecordMessage(source, metrics.OutcomeError)
		return record, errors.Join(errs...)
	}
	r.metrics.RecordMessage(source, metrics.OutcomeEmitted)
	rlog.Debugf("emitted record with %d properties", len(record)-1)
	return record, nil
}

// SinkFunc adapts a function to a Sink
type SinkFunc struct {
	SinkName string
	Func     func(ctx context.Context, records ...patch.Record) error
}

// Name implements Sink
func (s SinkFunc) Name() string { return s.SinkName }

// Write implements Sink
func (s SinkFunc) Write(ctx context.Context, records ...patch.Record) error {
	return s.Func(ctx, records...)
}
