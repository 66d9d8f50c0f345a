package export

import (
	"strings"
	"testing"

	"github.com/CESNET/ipfixprobe-go/internal/elementmap"
	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
)

func noopGetter(rec *flowrecord.Record) (any, bool) { return nil, false }

func testBindings(t *testing.T) *elementmap.Map {
	t.Helper()
	yaml := `
basic:
  - name: bytes
    pen: 0
    id: 1
    length: 8
  - name: packets
    pen: 0
    id: 2
    length: 8
  - name: app_id
    pen: 39380
    id: 1
    length: -1
`
	m, err := elementmap.Load(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestSelectFieldsFiltersByGroupAndResolvesBinding(t *testing.T) {
	reg := fieldregistry.New()
	if _, err := reg.RegisterScalar("basic", "bytes", noopGetter); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.RegisterScalar("basic", "packets", noopGetter); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.RegisterScalar("http", "host", noopGetter); err != nil {
		t.Fatal(err)
	}

	bindings := testBindings(t)
	fields, err := SelectFields(reg.BiflowForward(), []string{"basic"}, bindings)
	if err != nil {
		t.Fatalf("SelectFields: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields from group 'basic', got %d", len(fields))
	}
	if fields[0].ElementID != 1 || fields[0].FixedLength != 8 {
		t.Fatalf("unexpected binding for field 0: %+v", fields[0])
	}
}

func TestSelectFieldsMissingBindingErrors(t *testing.T) {
	reg := fieldregistry.New()
	if _, err := reg.RegisterScalar("basic", "unbound", noopGetter); err != nil {
		t.Fatal(err)
	}
	bindings := testBindings(t)
	if _, err := SelectFields(reg.BiflowForward(), []string{"basic"}, bindings); err == nil {
		t.Fatal("expected an error for an unbound field")
	}
}

func TestBuildTemplateEncodesEnterpriseBitAndVariableLength(t *testing.T) {
	fields := []FieldBinding{
		{PEN: 0, ElementID: 1, FixedLength: 8},
		{PEN: 39380, ElementID: 1, FixedLength: VariableLength},
	}
	tmpl := BuildTemplate(258, fields)

	if tmpl.ID != 258 {
		t.Fatalf("expected template id 258, got %d", tmpl.ID)
	}
	if tmpl.StaticPayloadSize != 8 {
		t.Fatalf("expected static payload size 8 (variable field excluded), got %d", tmpl.StaticPayloadSize)
	}
	// header(4) + field1(4, no PEN) + field2(4 + 4 PEN) = 16
	if len(tmpl.WireBytes) != 16 {
		t.Fatalf("expected 16 wire bytes, got %d: % x", len(tmpl.WireBytes), tmpl.WireBytes)
	}
	if tmpl.WireBytes[4] != 0x00 || tmpl.WireBytes[5] != 0x01 {
		t.Fatalf("expected non-enterprise field id 1 with no high bit set, got % x", tmpl.WireBytes[4:6])
	}
	if tmpl.WireBytes[8]&0x80 == 0 {
		t.Fatal("expected enterprise bit set on the second field's id")
	}
	if tmpl.WireBytes[10] != 0xFF || tmpl.WireBytes[11] != 0xFF {
		t.Fatalf("expected variable-length sentinel 0xFFFF, got % x", tmpl.WireBytes[10:12])
	}
}
