package validation

import (
	"encoding/json"
	"strings"
)

// SchemaVersionField optionally distinguishes layouts of the same event name.
const SchemaVersionField = "schemaVersion"

// Event is a message that passed a Schema. It is decoded once; handlers read
// fields through the accessors or Decode into their own input type.
type Event struct {
	name   string
	raw    json.RawMessage
	fields map[string]interface{}
}

// Name returns the discriminator value.
func (e *Event) Name() string { return e.name }

// SchemaVersion returns the optional schemaVersion field, or "".
func (e *Event) SchemaVersion() string {
	return e.String(SchemaVersionField)
}

// Bytes returns the original message.
func (e *Event) Bytes() json.RawMessage { return e.raw }

// Has reports whether path resolves to a non-null value.
func (e *Event) Has(path string) bool {
	v, ok := e.lookup(path)
	return ok && v != nil
}

// String returns the value at path as a string. Numbers and booleans are
// rendered in their JSON form; objects, arrays and absent paths give "".
func (e *Event) String(path string) string {
	v, ok := e.lookup(path)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Raw returns the JSON encoding of the value at path, or nil when absent.
func (e *Event) Raw(path string) json.RawMessage {
	v, ok := e.lookup(path)
	if !ok || v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// Decode unmarshals the whole message into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.raw, v)
}

func (e *Event) lookup(path string) (interface{}, bool) {
	var current interface{} = e.fields
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
