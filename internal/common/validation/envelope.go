// Package validation decodes raw bus messages into validated events.
//
// A Schema is declarative: a discriminator field with the accepted values and a
// list of required (possibly dotted) field paths. It is compiled once into a
// JSON Schema document and evaluated with gojsonschema. Validation is
// structural only. A failed validation is a *Rejected value, not an error: it
// means the message is not for this handler.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const rootField = "(root)"

// DefaultDiscriminator is the field every inbound message is keyed on.
const DefaultDiscriminator = "eventName"

// Schema declares what a handler accepts.
type Schema struct {
	// Discriminator names the field to match. Defaults to "eventName".
	Discriminator string
	// Accept is the accepted discriminator value set. One value is an exact match.
	Accept []string
	// Required lists field paths that must be present and non-null, e.g. "soknad.id".
	Required []string
}

// Rejected describes why a message did not validate.
type Rejected struct {
	Malformed  bool
	Missing    []string
	Mismatched []string
}

func (r *Rejected) String() string {
	if r == nil {
		return ""
	}
	if r.Malformed {
		return "malformed message"
	}
	parts := make([]string, 0, 2)
	if len(r.Mismatched) > 0 {
		parts = append(parts, "mismatched: "+strings.Join(r.Mismatched, ", "))
	}
	if len(r.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(r.Missing, ", "))
	}
	return strings.Join(parts, "; ")
}

// Fields returns a log-friendly view.
func (r *Rejected) Fields() map[string]interface{} {
	return map[string]interface{}{
		"malformed":  r.Malformed,
		"missing":    r.Missing,
		"mismatched": r.Mismatched,
	}
}

// Validator evaluates one compiled Schema.
type Validator struct {
	schema   Schema
	compiled *gojsonschema.Schema
}

// NewValidator compiles s.
func NewValidator(s Schema) (*Validator, error) {
	if s.Discriminator == "" {
		s.Discriminator = DefaultDiscriminator
	}
	if len(s.Accept) == 0 {
		return nil, fmt.Errorf("schema for %q accepts no values", s.Discriminator)
	}

	doc := buildDocument(s)
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema %v: %w", s.Accept, err)
	}
	return &Validator{schema: s, compiled: compiled}, nil
}

// MustValidator is NewValidator for package-level schema declarations.
func MustValidator(s Schema) *Validator {
	v, err := NewValidator(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Accepts returns the accepted discriminator values.
func (v *Validator) Accepts() []string {
	return append([]string(nil), v.schema.Accept...)
}

// Validate checks raw against the schema.
func (v *Validator) Validate(raw []byte) (*Event, *Rejected) {
	result, err := v.compiled.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &Rejected{Malformed: true}
	}

	if !result.Valid() {
		return nil, toRejected(result.Errors())
	}

	fields, err := decodeObject(raw)
	if err != nil {
		return nil, &Rejected{Malformed: true}
	}

	name, _ := fields[v.schema.Discriminator].(string)
	return &Event{name: name, raw: append(json.RawMessage(nil), raw...), fields: fields}, nil
}

func toRejected(errs []gojsonschema.ResultError) *Rejected {
	r := &Rejected{}
	for _, e := range errs {
		if e.Type() == "required" {
			property, _ := e.Details()["property"].(string)
			r.Missing = append(r.Missing, joinPath(e.Field(), property))
			continue
		}
		r.Mismatched = append(r.Mismatched, e.Field())
	}
	sort.Strings(r.Missing)
	sort.Strings(r.Mismatched)
	r.Mismatched = dedupe(r.Mismatched)
	return r
}

func joinPath(parent, property string) string {
	if parent == "" || parent == rootField {
		return property
	}
	return parent + "." + property
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// node is one object level of the generated JSON Schema.
type node struct {
	required []string
	children map[string]*node
	leaf     bool
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) require(name string) *node {
	child, ok := n.children[name]
	if !ok {
		child = newNode()
		n.children[name] = child
		n.required = append(n.required, name)
	}
	return child
}

func buildDocument(s Schema) map[string]interface{} {
	root := newNode()
	root.require(s.Discriminator).leaf = true

	for _, path := range s.Required {
		current := root
		segments := strings.Split(path, ".")
		for i, segment := range segments {
			current = current.require(segment)
			if i == len(segments)-1 {
				current.leaf = true
			}
		}
	}

	doc := render(root)
	doc["$schema"] = "http://json-schema.org/draft-07/schema#"

	props := doc["properties"].(map[string]interface{})
	accept := make([]interface{}, len(s.Accept))
	for i, a := range s.Accept {
		accept[i] = a
	}
	props[s.Discriminator] = map[string]interface{}{"type": "string", "enum": accept}
	return doc
}

func render(n *node) map[string]interface{} {
	if len(n.children) == 0 {
		// leaf: any non-null value
		return map[string]interface{}{"not": map[string]interface{}{"type": "null"}}
	}

	props := make(map[string]interface{}, len(n.children))
	for name, child := range n.children {
		props[name] = render(child)
	}
	required := make([]interface{}, len(n.required))
	for i, r := range n.required {
		required[i] = r
	}
	return map[string]interface{}{
		"type":       "object",
		"required":   required,
		"properties": props,
	}
}

func decodeObject(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
