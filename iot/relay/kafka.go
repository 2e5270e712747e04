package relay

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/iot/events"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

// SourceKafka is the source label of events read from kafka
const SourceKafka = "kafka"

// KafkaReader is the part of *kafka.Reader used by the KafkaSource
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSource feeds change events from a kafka topic into the relay
type KafkaSource struct {
	reader KafkaReader
	relay  *Relay
}

// NewKafkaSource returns a source reading from reader
func NewKafkaSource(reader KafkaReader, relay *Relay) *KafkaSource {
	return &KafkaSource{reader: reader, relay: relay}
}

// Run handles messages until ctx is done. Every message is committed after it was handled,
// whether or not it could be relayed.
func (s *KafkaSource) Run(ctx context.Context) error {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		mctx := logger.ContextWithLoggerFromData(ctx, events.Header(m, events.HeaderLogger))
		s.relay.Handle(mctx, SourceKafka, m.Value, string(events.Header(m, events.HeaderSubject)))
		if err := s.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// KafkaSink writes records as JSON to a kafka topic, keyed by twin id
type KafkaSink struct {
	writer events.Writer
}

// NewKafkaSink returns a sink writing to w
func NewKafkaSink(w events.Writer) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Name implements Sink
func (s *KafkaSink) Name() string { return "kafka" }

// Write implements Sink
func (s *KafkaSink) Write(ctx context.Context, records ...patch.Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.EntityID()),
			Value: value,
			Headers: []kafka.Header{
				{Key: events.HeaderSubject, Value: []byte(r.EntityID())},
				{Key: events.HeaderLogger, Value: logger.SerializeLoggerContext(ctx)},
			},
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}
