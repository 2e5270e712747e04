package twin

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonpointer"

	"github.com/relabs-tech/twinrelay/iot/patch"
)

var (
	// ErrPatchConflict is returned when a patch does not fit the twin's properties, e.g. it
	// removes a property that does not exist or a test operation fails
	ErrPatchConflict = errors.New("patch conflict")
	// ErrUnsupportedOperation is returned for move and copy operations
	ErrUnsupportedOperation = errors.New("unsupported patch operation")
)

// splitPointer returns the pointer of the parent and the unescaped last token
func splitPointer(path string) (string, string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("%w: path '%s' does not start with /", patch.ErrMalformedInput, path)
	}
	i := strings.LastIndex(path, "/")
	token := strings.ReplaceAll(strings.ReplaceAll(path[i+1:], "~1", "/"), "~0", "~")
	return path[:i], token, nil
}

func getPointer(document any, pointer string) (any, error) {
	if pointer == "" {
		return document, nil
	}
	p, err := gojsonpointer.NewJsonPointer(pointer)
	if err != nil {
		return nil, err
	}
	v, _, err := p.Get(document)
	return v, err
}

// setPointer stores value at pointer and returns the possibly new document
func setPointer(document any, pointer string, value any) (any, error) {
	if pointer == "" {
		return value, nil
	}
	p, err := gojsonpointer.NewJsonPointer(pointer)
	if err != nil {
		return nil, err
	}
	return p.Set(document, value)
}

func arrayIndex(token string, length int, allowEnd bool) (int, error) {
	if allowEnd && token == "-" {
		return length, nil
	}
	i, err := strconv.Atoi(token)
	max := length - 1
	if allowEnd {
		max = length
	}
	if err != nil || i < 0 || i > max {
		return 0, fmt.Errorf("%w: invalid array index '%s'", ErrPatchConflict, token)
	}
	return i, nil
}

// Apply applies a JSON patch document to properties and returns the new properties. The
// input is not modified. Supported operations are add, replace, remove and test.
func Apply(properties json.RawMessage, doc patch.Document) (json.RawMessage, error) {
	var document any = map[string]any{}
	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &document); err != nil {
			return nil, err
		}
	}

	for i, op := range doc {
		var err error
		document, err = applyOperation(document, op)
		if err != nil {
			return nil, fmt.Errorf("operation %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return json.Marshal(document)
}

func applyOperation(document any, op patch.Operation) (any, error) {
	var value any
	switch op.Op {
	case patch.Add, patch.Replace, patch.Test:
		if op.Value == nil {
			return nil, fmt.Errorf("%w: missing value", patch.ErrMalformedInput)
		}
		if err := json.Unmarshal(op.Value, &value); err != nil {
			return nil, fmt.Errorf("%w: %v", patch.ErrMalformedInput, err)
		}
	case patch.Remove:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, op.Op)
	}

	if op.Path == "" {
		switch op.Op {
		case patch.Add, patch.Replace:
			return value, nil
		case patch.Test:
			if !reflect.DeepEqual(document, value) {
				return nil, fmt.Errorf("%w: test failed", ErrPatchConflict)
			}
			return document, nil
		default:
			return nil, fmt.Errorf("%w: cannot remove the whole document", ErrPatchConflict)
		}
	}

	parentPointer, token, err := splitPointer(op.Path)
	if err != nil {
		return nil, err
	}
	parent, err := getPointer(document, parentPointer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatchConflict, err)
	}

	switch container := parent.(type) {
	case map[string]any:
		current, exists := container[token]
		switch op.Op {
		case patch.Add:
			container[token] = value
		case patch.Replace:
			if !exists {
				return nil, fmt.Errorf("%w: no property '%s'", ErrPatchConflict, op.Path)
			}
			container[token] = value
		case patch.Remove:
			if !exists {
				return nil, fmt.Errorf("%w: no property '%s'", ErrPatchConflict, op.Path)
			}
			delete(container, token)
		case patch.Test:
			if !exists || !reflect.DeepEqual(current, value) {
				return nil, fmt.Errorf("%w: test failed for '%s'", ErrPatchConflict, op.Path)
			}
		}
		return document, nil

	case []any:
		var next []any
		switch op.Op {
		case patch.Add:
			i, err := arrayIndex(token, len(container), true)
			if err != nil {
				return nil, err
			}
			next = make([]any, 0, len(container)+1)
			next = append(next, container[:i]...)
			next = append(next, value)
			next = append(next, container[i:]...)
		case patch.Replace:
			i, err := arrayIndex(token, len(container), false)
			if err != nil {
				return nil, err
			}
			container[i] = value
			return document, nil
		case patch.Remove:
			i, err := arrayIndex(token, len(container), false)
			if err != nil {
				return nil, err
			}
			next = append(append([]any{}, container[:i]...), container[i+1:]...)
		case patch.Test:
			i, err := arrayIndex(token, len(container), false)
			if err != nil {
				return nil, err
			}
			if !reflect.DeepEqual(container[i], value) {
				return nil, fmt.Errorf("%w: test failed for '%s'", ErrPatchConflict, op.Path)
			}
			return document, nil
		}
		return setPointer(document, parentPointer, next)

	default:
		return nil, fmt.Errorf("%w: '%s' is not a container", ErrPatchConflict, parentPointer)
	}
}

// Property returns the property addressed by the JSON pointer
func Property(properties json.RawMessage, pointer string) (json.RawMessage, error) {
	var document any
	if err := json.Unmarshal(properties, &document); err != nil {
		return nil, err
	}
	v, err := getPointer(document, pointer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return json.Marshal(v)
}
