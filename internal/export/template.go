package export

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/CESNET/ipfixprobe-go/internal/elementmap"
	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
)

// Family distinguishes the two address families a template is built for,
// per spec.md section 4.5.1: "one template per distinct combination of
// 'which plugins produced fields in this record' per IP family".
type Family uint8

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

// ViewKind selects one of the field registry's four export views
// (spec.md section 4.1).
type ViewKind uint8

const (
	ViewBiflowForward ViewKind = iota
	ViewBiflowReverse
	ViewUniflowForward
	ViewUniflowReverse
)

const (
	enterpriseBit       = uint16(0x8000)
	variableLengthWire  = uint16(0xFFFF)
	firstTemplateID     = uint16(258) // spec.md section 4.5.3: "numbered from 258"
)

// VariableLength is FieldBinding.FixedLength's sentinel for a
// variable-length field (mirrors elementmap.LengthVariable, re-exported
// here so callers outside elementmap don't need to import it just for
// this comparison).
const VariableLength = elementmap.LengthVariable

// FieldBinding pairs a registered field descriptor with the wire binding
// (enterprise number, element id, fixed length or VariableLength) it was
// resolved to via the element map.
type FieldBinding struct {
	Descriptor  *fieldregistry.FieldDescriptor
	PEN         uint32
	ElementID   uint16
	FixedLength int
}

// SelectFields filters view down to the fields whose group is in
// activeGroups, preserving view's registration order, and resolves each
// one's wire binding via bindings (spec.md section 4.5.1, template
// construction's "for each protocol in the bitmask, for each field
// registered to that protocol in the selected view").
func SelectFields(view []*fieldregistry.FieldDescriptor, activeGroups []string, bindings *elementmap.Map) ([]FieldBinding, error) {
	active := make(map[string]bool, len(activeGroups))
	for _, g := range activeGroups {
		active[g] = true
	}

	out := make([]FieldBinding, 0, len(view))
	for _, d := range view {
		if !active[d.Group] {
			continue
		}
		el, ok := bindings.Lookup(d.Group, d.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", elementmap.ErrMissingBinding, d.Group, d.Name)
		}
		length := el.Length
		if el.IsVariableLength() {
			length = VariableLength
		}
		out = append(out, FieldBinding{Descriptor: d, PEN: el.PEN, ElementID: el.ID, FixedLength: length})
	}
	return out, nil
}

// Template is one precomputed IPFIX template (spec.md section 3,
// "IPFIXTemplate"): its wire bytes and static payload size are computed
// once, at first use of a given plugin-group/family/view combination, and
// reused for every record under that combination.
type Template struct {
	ID                uint16
	Fields            []FieldBinding
	WireBytes         []byte
	StaticPayloadSize int

	Unsent           bool
	LastSent         time.Time
	ExportsSinceSent int
}

// BuildTemplate constructs id's template record wire bytes, per spec.md
// section 6: field_count, then one (enterprise_flag_and_id,
// element_length, [enterprise_number]) triple per field.
func BuildTemplate(id uint16, fields []FieldBinding) *Template {
	body := make([]byte, 0, len(fields)*4)
	static := 0
	for _, f := range fields {
		enterprise := f.PEN != 0

		idField := f.ElementID
		if enterprise {
			idField |= enterpriseBit
		}
		body = binary.BigEndian.AppendUint16(body, idField)

		var length uint16
		if f.FixedLength == VariableLength {
			length = variableLengthWire
		} else {
			length = uint16(f.FixedLength)
			static += f.FixedLength
		}
		body = binary.BigEndian.AppendUint16(body, length)

		if enterprise {
			body = binary.BigEndian.AppendUint32(body, f.PEN)
		}
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint16(header[0:2], id)
	binary.BigEndian.PutUint16(header[2:4], uint16(len(fields)))

	return &Template{
		ID:                id,
		Fields:            fields,
		WireBytes:         append(header, body...),
		StaticPayloadSize: static,
		Unsent:            true,
	}
}
