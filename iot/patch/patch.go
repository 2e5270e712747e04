package patch

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
)

// DTIDKey is the reserved record key holding the twin id
const DTIDKey = "$dtId"

// An operation without a value flattens to null
var jsonNull = json.RawMessage("null")

// Kind is the kind of a patch operation
type Kind string

// Operation kinds. Only Add and Replace contribute to a record.
const (
	Add     Kind = "add"
	Replace Kind = "replace"
	Remove  Kind = "remove"
	Move    Kind = "move"
	Copy    Kind = "copy"
	Test    Kind = "test"
)

// Operation is one entry of a patch document
type Operation struct {
	Op    Kind            `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Document is a JSON patch document
type Document []Operation

// Record is a flattened patch: dotted property names to coerced values, plus the twin id
// under DTIDKey. Pass-through values are kept as raw JSON.
type Record map[string]any

// Empty returns true if the record has nothing to emit
func (r Record) Empty() bool {
	return len(r) == 0
}

// EntityID returns the twin id the record was tagged with
func (r Record) EntityID() string {
	id, _ := r[DTIDKey].(string)
	return id
}

// Key flattens a patch path: the leading "/" is stripped and every other "/" becomes ".".
func Key(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", errors.New("path does not start with /")
	}
	key := strings.ReplaceAll(path[1:], "/", ".")
	if key == "" {
		return "", errors.New("path has no property name")
	}
	return key, nil
}

// Flatten converts the add and replace operations of ops into a record tagged with entityID.
// Later operations overwrite earlier ones with the same key. A missing value is passed through
// as null, except for boolean keys where it is a coercion failure. If no operation contributes,
// Flatten returns a nil record and no error. The first failing operation aborts the whole
// record with an *Error.
func Flatten(entityID string, ops Document) (Record, error) {
	if entityID == "" {
		return nil, malformed(-1, "", errors.New("missing entity identifier"))
	}

	var rec Record
	for i, op := range ops {
		if op.Op != Add && op.Op != Replace {
			continue
		}
		key, err := Key(op.Path)
		if err != nil {
			return nil, malformed(i, op.Path, err)
		}
		raw := op.Value
		if raw == nil {
			raw = jsonNull
		}
		value, ok := coerce(key, raw)
		if !ok {
			return nil, &Error{
				Kind:  ErrTypeCoercion,
				Index: i,
				Path:  op.Path,
				Value: raw,
				Err:   errors.New("value is not boolean-like"),
			}
		}
		if rec == nil {
			rec = make(Record, len(ops)+1)
		}
		rec[key] = value
	}

	if rec == nil {
		return nil, nil
	}
	rec[DTIDKey] = entityID
	return rec, nil
}
