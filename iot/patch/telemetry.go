package patch

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

type telemetryField struct {
	name    string
	boolean bool
}

// Telemetry properties in the order they are added to the document
var telemetryFields = []telemetryField{
	{name: "temperature"},
	{name: "airflow"},
	{name: "IsOccupied", boolean: true},
	{name: "State", boolean: true},
}

// FromTelemetry converts a device telemetry body into the patch applied to the device's twin.
// Every known property present in the body becomes an add operation on "/<name>". Numbers
// are expected for temperature and airflow, booleans for IsOccupied and State. Unknown
// properties are ignored, a body without known properties yields an empty document.
func FromTelemetry(body []byte) (Document, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, malformed(-1, "", err)
	}

	doc := Document{}
	for _, f := range telemetryFields {
		raw, ok := fields[f.name]
		if !ok {
			continue
		}
		path := "/" + f.name
		raw = bytes.TrimSpace(raw)
		if f.boolean {
			b, ok := parseBoolean(raw)
			if !ok {
				return nil, &Error{Kind: ErrTypeCoercion, Index: len(doc), Path: path, Value: raw,
					Err: fmt.Errorf("%s is not boolean", f.name)}
			}
			raw, _ = json.Marshal(b)
		} else {
			var n float64
			if err := json.Unmarshal(raw, &n); err != nil {
				return nil, &Error{Kind: ErrTypeCoercion, Index: len(doc), Path: path, Value: raw, Err: err}
			}
		}
		doc = append(doc, Operation{Op: Add, Path: path, Value: raw})
	}
	return doc, nil
}
