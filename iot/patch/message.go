package patch

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Message is a twin change event: the patch applied to one twin
type Message struct {
	Patch            Document `json:"patch"`
	EntityIdentifier string   `json:"entityIdentifier"`
	ModelID          string   `json:"modelId,omitempty"`
}

type wireOperation struct {
	Op    Kind            `json:"op"`
	Path  json.RawMessage `json:"path"`
	Value json.RawMessage `json:"value"`
}

type wireMessage struct {
	Patch            json.RawMessage `json:"patch"`
	EntityIdentifier string          `json:"entityIdentifier"`
	ModelID          string          `json:"modelId"`
	Subject          string          `json:"subject"`
	Data             *wireMessage    `json:"data"`
}

// ParseMessage decodes a change event. Besides the plain form
//
//	{"patch":[...],"entityIdentifier":"thermostat67","modelId":"dtmi:..."}
//
// it accepts the event envelope form where the patch is nested under "data" and the twin id
// is the envelope subject
//
//	{"subject":"thermostat67","data":{"modelId":"dtmi:...","patch":[...]}}
//
// The entity identifier may be empty, transports that carry it out of band fill it in.
func ParseMessage(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return Message{}, malformed(-1, "", err)
	}

	msg := Message{EntityIdentifier: wire.EntityIdentifier, ModelID: wire.ModelID}
	if msg.EntityIdentifier == "" {
		msg.EntityIdentifier = wire.Subject
	}
	raw := wire.Patch
	if len(raw) == 0 && wire.Data != nil {
		raw = wire.Data.Patch
		if msg.ModelID == "" {
			msg.ModelID = wire.Data.ModelID
		}
		if msg.EntityIdentifier == "" {
			msg.EntityIdentifier = wire.Data.EntityIdentifier
		}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return Message{}, malformed(-1, "", errors.New("missing patch array"))
	}
	var ops []wireOperation
	if err := json.Unmarshal(raw, &ops); err != nil {
		return Message{}, malformed(-1, "", err)
	}

	msg.Patch = make(Document, len(ops))
	for i, op := range ops {
		path := bytes.TrimSpace(op.Path)
		if len(path) == 0 || path[0] != '"' {
			return Message{}, malformed(i, "", fmt.Errorf("path is not a string: %s", op.Path))
		}
		var p string
		if err := json.Unmarshal(path, &p); err != nil {
			return Message{}, malformed(i, "", err)
		}
		msg.Patch[i] = Operation{Op: op.Op, Path: p, Value: op.Value}
	}
	return msg, nil
}

// FlattenMessage flattens the patch of msg for its entity identifier
func FlattenMessage(msg Message) (Record, error) {
	return Flatten(msg.EntityIdentifier, msg.Patch)
}
