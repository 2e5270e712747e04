/*Package events carries twin change events over kafka

A change event is a patch.Message encoded as JSON. The kafka message key is the twin id, so
that all changes of one twin land on the same partition in order. Two headers are set:

	cloudEvents:subject  the twin id
	logger               the serialized logger context, see logger.SerializeLoggerContext
*/
package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/twinrelay/core/logger"
	"github.com/relabs-tech/twinrelay/iot"
	"github.com/relabs-tech/twinrelay/iot/patch"
)

// Header keys
const (
	HeaderSubject = "cloudEvents:subject"
	HeaderLogger  = "logger"
)

// Writer is the part of *kafka.Writer used by publishers
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter returns a kafka writer for topic which partitions by message key
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewReader returns a kafka reader for topic in consumer group groupID
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// Header returns the value of header key, or nil
func Header(m kafka.Message, key string) []byte {
	for _, h := range m.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return nil
}

// Encode turns a change event into a kafka message
func Encode(ctx context.Context, msg patch.Message) (kafka.Message, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(msg.EntityIdentifier),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderSubject, Value: []byte(msg.EntityIdentifier)},
			{Key: HeaderLogger, Value: logger.SerializeLoggerContext(ctx)},
		},
	}, nil
}

// Decode parses a kafka message into a change event. The logger context of the producer is
// restored into the returned context. A message without entity identifier takes it from the
// subject header.
func Decode(ctx context.Context, m kafka.Message) (context.Context, patch.Message, error) {
	ctx = logger.ContextWithLoggerFromData(ctx, Header(m, HeaderLogger))
	msg, err := patch.ParseMessage(m.Value)
	if err != nil {
		return ctx, msg, err
	}
	if msg.EntityIdentifier == "" {
		msg.EntityIdentifier = string(Header(m, HeaderSubject))
	}
	return ctx, msg, nil
}

// Publisher publishes twin change events to kafka
type Publisher struct {
	writer Writer
}

var _ iot.ChangePublisher = (*Publisher)(nil)

// NewPublisher returns a publisher writing to w
func NewPublisher(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// PublishChange implements iot.ChangePublisher
func (p *Publisher) PublishChange(ctx context.Context, msg patch.Message) error {
	m, err := Encode(ctx, msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, m)
}
