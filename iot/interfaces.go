package iot

import (
	"context"

	"github.com/relabs-tech/twinrelay/iot/patch"
)

// MessagePublisher is an interface to publish MQTT message
type MessagePublisher interface {
	PublishMessageQ1(topic string, payload []byte)
}

// ChangePublisher is an interface to publish twin change events to the event pipeline
type ChangePublisher interface {
	PublishChange(ctx context.Context, msg patch.Message) error
}

// ChangePublisherFunc adapts a function to ChangePublisher
type ChangePublisherFunc func(ctx context.Context, msg patch.Message) error

// PublishChange implements ChangePublisher
func (f ChangePublisherFunc) PublishChange(ctx context.Context, msg patch.Message) error {
	return f(ctx, msg)
}

// TopicPrefix is the prefix of all twinrelay MQTT topics
const TopicPrefix = "twinrelay/"

// TelemetryTopic is the topic a device publishes its telemetry on
func TelemetryTopic(deviceID string) string {
	return TopicPrefix + deviceID + "/telemetry"
}

// PatchTopic is the topic a device receives the patches applied to its twin on
func PatchTopic(deviceID string) string {
	return TopicPrefix + deviceID + "/twin/patch"
}

// TwinGetTopic is the topic a device publishes to in order to receive its twin
func TwinGetTopic(deviceID string) string {
	return TopicPrefix + deviceID + "/twin/get"
}

// TwinTopic is the topic a device receives its twin on
func TwinTopic(deviceID string) string {
	return TopicPrefix + deviceID + "/twin"
}
