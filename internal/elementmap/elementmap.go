// Package elementmap loads the (group, field_name) -> (enterprise_number,
// element_id, length) YAML element map (sample: hack/elements.yaml),
// distinct from the teacher's hack/elements.yaml IANA-registry format:
// top-level keys here are plugin groups, and each value is a sequence of
// maps with exactly the keys {name, pen, id, length}, matching
// original_source's element map for the exporter's field->IE binding.
package elementmap

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Element is one registered field's wire binding: the information element
// it is exported as, and its fixed length (LengthVariable for
// variable-length fields).
type Element struct {
	PEN    uint32 `yaml:"pen"`
	ID     uint16 `yaml:"id"`
	Length int    `yaml:"length"`
}

// LengthVariable is the sentinel length meaning "variable-length field",
// spelled -1 in the YAML (spec.md section 6).
const LengthVariable = -1

type rawElement struct {
	Name   string `yaml:"name"`
	PEN    uint32 `yaml:"pen"`
	ID     uint16 `yaml:"id"`
	Length int    `yaml:"length"`
}

// Map is the parsed element map: group -> field name -> Element.
type Map struct {
	groups map[string]map[string]Element
}

// Load parses an element map from r, per spec.md section 6: top-level
// keys are groups, each value a sequence of {name, pen, id, length} maps.
func Load(r io.Reader) (*Map, error) {
	raw := make(map[string][]rawElement)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMap, err)
	}

	m := &Map{groups: make(map[string]map[string]Element, len(raw))}
	for group, elements := range raw {
		fields := make(map[string]Element, len(elements))
		for _, e := range elements {
			if e.Name == "" {
				return nil, fmt.Errorf("%w: group %q has an element with no name", ErrMalformedMap, group)
			}
			if e.Length != LengthVariable && e.Length <= 0 {
				return nil, fmt.Errorf("%w: group %q field %q has non-positive fixed length %d", ErrMalformedMap, group, e.Name, e.Length)
			}
			if _, dup := fields[e.Name]; dup {
				return nil, fmt.Errorf("%w: duplicate field %q in group %q", ErrMalformedMap, e.Name, group)
			}
			fields[e.Name] = Element{PEN: e.PEN, ID: e.ID, Length: e.Length}
		}
		m.groups[group] = fields
	}
	return m, nil
}

// Lookup resolves a registered (group, name) pair to its wire binding.
func (m *Map) Lookup(group, name string) (Element, bool) {
	fields, ok := m.groups[group]
	if !ok {
		return Element{}, false
	}
	el, ok := fields[name]
	return el, ok
}

// IsVariableLength reports whether el is a variable-length field, per
// spec.md section 6's length == -1 convention.
func (el Element) IsVariableLength() bool {
	return el.Length == LengthVariable
}
