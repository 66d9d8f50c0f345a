package export

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
)

// VectorValue marks a field Getter's result as a variable-length list,
// the concrete shape of spec.md's "vector-typed accessors (T or lazy
// sequence of T)" in this implementation: plugins that own a
// vector-valued field return a VectorValue from their Getter instead of a
// bare scalar. A variable-length field whose Getter returns a bare string
// or []byte is encoded as a one-element list.
type VectorValue struct {
	Elements []any
}

// EncodeRecord serializes rec's fields bound in tmpl, in template field
// order, appending to buf. A field the record's fields-available bitset
// does not mark present is written as a zero (fixed-length) or empty
// (variable-length) placeholder of the same wire width, so every record
// sharing tmpl has an identical layout (spec.md section 4.5.2).
func EncodeRecord(buf *[]byte, tmpl *Template, rec *flowrecord.Record) error {
	for _, f := range tmpl.Fields {
		var value any
		var ok bool
		if f.Descriptor.IsInRecord(rec) {
			value, ok = f.Descriptor.Getter(rec)
		}
		if f.FixedLength == VariableLength {
			if err := encodeVector(buf, value, ok); err != nil {
				return fmt.Errorf("field %s/%s: %w", f.Descriptor.Group, f.Descriptor.Name, err)
			}
			continue
		}
		if err := encodeFixed(buf, value, ok, f.FixedLength); err != nil {
			return fmt.Errorf("field %s/%s: %w", f.Descriptor.Group, f.Descriptor.Name, err)
		}
	}
	return nil
}

func encodeFixed(buf *[]byte, value any, ok bool, length int) error {
	if !ok || value == nil {
		*buf = append(*buf, make([]byte, length)...)
		return nil
	}
	encoded, err := encodeScalar(value)
	if err != nil {
		return err
	}
	if len(encoded) != length {
		return fmt.Errorf("%w: got %d bytes, template field is %d bytes", ErrFieldLengthMismatch, len(encoded), length)
	}
	*buf = append(*buf, encoded...)
	return nil
}

// encodeVector writes the basic-list encoding from spec.md section 6: a
// 1-byte 0x00 sentinel for an empty or absent list, or 0xFF followed by a
// 2-byte total payload length and the concatenated element encodings.
func encodeVector(buf *[]byte, value any, ok bool) error {
	if !ok || value == nil {
		*buf = append(*buf, 0x00)
		return nil
	}
	vec, isVec := value.(VectorValue)
	if !isVec {
		switch value.(type) {
		case string, []byte:
			// A plain string or byte value is written as a one-element list.
			vec = VectorValue{Elements: []any{value}}
		default:
			return fmt.Errorf("%w: vector field getter returned %T, want export.VectorValue", ErrFieldTypeMismatch, value)
		}
	}
	if len(vec.Elements) == 0 {
		*buf = append(*buf, 0x00)
		return nil
	}

	var payload []byte
	for _, el := range vec.Elements {
		enc, err := encodeScalar(el)
		if err != nil {
			return err
		}
		payload = append(payload, enc...)
	}

	*buf = append(*buf, 0xFF)
	*buf = binary.BigEndian.AppendUint16(*buf, uint16(len(payload)))
	*buf = append(*buf, payload...)
	return nil
}

func encodeScalar(value any) ([]byte, error) {
	switch v := value.(type) {
	case uint8:
		return []byte{v}, nil
	case int8:
		return []byte{byte(v)}, nil
	case uint16:
		return binary.BigEndian.AppendUint16(nil, v), nil
	case int16:
		return binary.BigEndian.AppendUint16(nil, uint16(v)), nil
	case uint32:
		return binary.BigEndian.AppendUint32(nil, v), nil
	case int32:
		return binary.BigEndian.AppendUint32(nil, uint32(v)), nil
	case uint64:
		return binary.BigEndian.AppendUint64(nil, v), nil
	case int64:
		return binary.BigEndian.AppendUint64(nil, uint64(v)), nil
	case float32:
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(v)), nil
	case float64:
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(v)), nil
	case time.Time:
		return binary.BigEndian.AppendUint64(nil, uint64(v.UnixMilli())), nil
	case netip.Addr:
		return v.AsSlice(), nil
	case flowrecord.MACAddress:
		return append([]byte(nil), v[:]...), nil
	case string:
		return []byte(v), nil
	case []byte:
		return append([]byte(nil), v...), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrFieldTypeMismatch, value)
	}
}
