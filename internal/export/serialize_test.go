package export

import (
	"encoding/binary"
	"testing"

	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
)

func newTestRecord(t *testing.T) *flowrecord.Record {
	t.Helper()
	layout, err := flowrecord.NewLayout(nil)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := layout.NewRecord(nil)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestEncodeRecordFixedLengthScalar(t *testing.T) {
	reg := fieldregistry.New()
	handler, err := reg.RegisterScalar("basic", "bytes", func(r *flowrecord.Record) (any, bool) {
		return uint64(1234), true
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := newTestRecord(t)
	handler.SetAvailable(rec)

	tmpl := BuildTemplate(258, []FieldBinding{
		{Descriptor: reg.BiflowForward()[0], PEN: 0, ElementID: 1, FixedLength: 8},
	})

	var buf []byte
	if err := EncodeRecord(&buf, tmpl, rec); err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	if len(buf) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(buf))
	}
	if got := binary.BigEndian.Uint64(buf); got != 1234 {
		t.Fatalf("expected 1234, got %d", got)
	}
}

func TestEncodeRecordAbsentFieldIsZeroPadded(t *testing.T) {
	reg := fieldregistry.New()
	_, err := reg.RegisterScalar("basic", "bytes", func(r *flowrecord.Record) (any, bool) {
		t.Fatal("getter must not be called when the field is unavailable")
		return nil, false
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := newTestRecord(t) // field left unavailable
	tmpl := BuildTemplate(258, []FieldBinding{
		{Descriptor: reg.BiflowForward()[0], PEN: 0, ElementID: 1, FixedLength: 8},
	})

	var buf []byte
	if err := EncodeRecord(&buf, tmpl, rec); err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	want := make([]byte, 8)
	if string(buf) != string(want) {
		t.Fatalf("expected zero-padded 8 bytes, got % x", buf)
	}
}

func TestEncodeRecordVectorFieldBasicList(t *testing.T) {
	reg := fieldregistry.New()
	handler, err := reg.RegisterScalar("tls", "alpn", func(r *flowrecord.Record) (any, bool) {
		return VectorValue{Elements: []any{"h2", "http/1.1"}}, true
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := newTestRecord(t)
	handler.SetAvailable(rec)

	tmpl := BuildTemplate(258, []FieldBinding{
		{Descriptor: reg.BiflowForward()[0], PEN: 39380, ElementID: 5, FixedLength: VariableLength},
	})

	var buf []byte
	if err := EncodeRecord(&buf, tmpl, rec); err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	if buf[0] != 0xFF {
		t.Fatalf("expected non-empty list marker 0xFF, got %#x", buf[0])
	}
	length := binary.BigEndian.Uint16(buf[1:3])
	if int(length) != len("h2")+len("http/1.1") {
		t.Fatalf("unexpected payload length %d", length)
	}
	if string(buf[3:]) != "h2http/1.1" {
		t.Fatalf("unexpected concatenated payload: %q", buf[3:])
	}
}

func TestEncodeRecordEmptyVectorFieldIsSentinel(t *testing.T) {
	reg := fieldregistry.New()
	handler, err := reg.RegisterScalar("tls", "alpn", func(r *flowrecord.Record) (any, bool) {
		return VectorValue{}, true
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := newTestRecord(t)
	handler.SetAvailable(rec)

	tmpl := BuildTemplate(258, []FieldBinding{
		{Descriptor: reg.BiflowForward()[0], PEN: 39380, ElementID: 5, FixedLength: VariableLength},
	})

	var buf []byte
	if err := EncodeRecord(&buf, tmpl, rec); err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	if len(buf) != 1 || buf[0] != 0x00 {
		t.Fatalf("expected single 0x00 sentinel byte for an empty list, got % x", buf)
	}
}

func TestEncodeRecordFieldLengthMismatch(t *testing.T) {
	reg := fieldregistry.New()
	handler, err := reg.RegisterScalar("basic", "bytes", func(r *flowrecord.Record) (any, bool) {
		return uint32(42), true // 4 bytes, but template declares 8
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := newTestRecord(t)
	handler.SetAvailable(rec)

	tmpl := BuildTemplate(258, []FieldBinding{
		{Descriptor: reg.BiflowForward()[0], PEN: 0, ElementID: 1, FixedLength: 8},
	})

	var buf []byte
	if err := EncodeRecord(&buf, tmpl, rec); err == nil {
		t.Fatal("expected ErrFieldLengthMismatch")
	}
}
