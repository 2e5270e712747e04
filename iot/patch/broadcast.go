package patch

import "errors"

// BroadcastTarget is the client method realtime subscribers receive patches on
const BroadcastTarget = "newMessage"

// Broadcast builds the realtime notification for msg: the twin id, the model id and one
// entry per operation, keyed by the unmodified patch path. Later operations on the same path
// overwrite earlier ones.
func Broadcast(msg Message) (map[string]any, error) {
	if msg.EntityIdentifier == "" {
		return nil, malformed(-1, "", errors.New("missing entity identifier"))
	}
	out := map[string]any{
		"twinId":  msg.EntityIdentifier,
		"modelId": msg.ModelID,
	}
	for _, op := range msg.Patch {
		if op.Value == nil {
			out[op.Path] = nil
			continue
		}
		out[op.Path] = op.Value
	}
	return out, nil
}
