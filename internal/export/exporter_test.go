package export

import (
	"testing"

	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
	"github.com/CESNET/ipfixprobe-go/internal/outputring"
)

type recordingWriter struct {
	writes [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, append([]byte(nil), p...))
	return len(p), nil
}

func testExporter(t *testing.T) (*Exporter, *recordingWriter, fieldregistry.FieldHandler) {
	t.Helper()
	reg := fieldregistry.New()
	handler, err := reg.RegisterScalar("basic", "bytes", func(r *flowrecord.Record) (any, bool) {
		return uint64(99), true
	})
	if err != nil {
		t.Fatal(err)
	}
	cache := NewTemplateCache(reg, testBindings(t), true, 0, 0)
	w := &recordingWriter{}
	opts := DefaultOptions()
	opts.MTU = DefaultMTU
	exp := NewExporter(opts, cache, w)
	return exp, w, handler
}

func TestExporterEmitsTemplateThenDataOnFirstUse(t *testing.T) {
	exp, w, handler := testExporter(t)
	rec := newTestRecord(t)
	handler.SetAvailable(rec)

	entry := &OutputEntry{Record: rec, PluginGroups: []string{"basic"}, Family: FamilyIPv4, View: ViewBiflowForward}
	if err := exp.ExportEntry(entry); err != nil {
		t.Fatalf("ExportEntry: %v", err)
	}
	if err := exp.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(w.writes) != 1 {
		t.Fatalf("expected exactly one flushed message, got %d", len(w.writes))
	}
	msg := w.writes[0]
	if len(msg) <= MessageHeaderLen {
		t.Fatalf("expected a non-empty message body, got %d total bytes", len(msg))
	}
	setID := uint16(msg[MessageHeaderLen])<<8 | uint16(msg[MessageHeaderLen+1])
	if setID != TemplateSetID {
		t.Fatalf("expected the first set in the message to be a template set (id %d), got %d", TemplateSetID, setID)
	}
}

func TestExporterSecondRecordSameTemplateSkipsResend(t *testing.T) {
	exp, w, handler := testExporter(t)

	rec1 := newTestRecord(t)
	handler.SetAvailable(rec1)
	entry1 := &OutputEntry{Record: rec1, PluginGroups: []string{"basic"}, Family: FamilyIPv4, View: ViewBiflowForward}
	if err := exp.ExportEntry(entry1); err != nil {
		t.Fatal(err)
	}

	rec2 := newTestRecord(t)
	handler.SetAvailable(rec2)
	entry2 := &OutputEntry{Record: rec2, PluginGroups: []string{"basic"}, Family: FamilyIPv4, View: ViewBiflowForward}
	if err := exp.ExportEntry(entry2); err != nil {
		t.Fatal(err)
	}
	if err := exp.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(w.writes) != 1 {
		t.Fatalf("expected both records to share one flushed message, got %d", len(w.writes))
	}

	// Count template sets (id 2) in the single message: must be exactly one.
	msg := w.writes[0]
	offset := MessageHeaderLen
	templateSets := 0
	for offset+SetHeaderLen <= len(msg) {
		setID := uint16(msg[offset])<<8 | uint16(msg[offset+1])
		setLen := uint16(msg[offset+2])<<8 | uint16(msg[offset+3])
		if setID == TemplateSetID {
			templateSets++
		}
		if setLen == 0 {
			break
		}
		offset += int(setLen)
	}
	if templateSets != 1 {
		t.Fatalf("expected exactly 1 template set across both exports, got %d", templateSets)
	}
}

func TestExporterOnReconnectForcesTemplateResend(t *testing.T) {
	exp, w, handler := testExporter(t)

	rec1 := newTestRecord(t)
	handler.SetAvailable(rec1)
	if err := exp.ExportEntry(&OutputEntry{Record: rec1, PluginGroups: []string{"basic"}, Family: FamilyIPv4, View: ViewBiflowForward}); err != nil {
		t.Fatal(err)
	}
	if err := exp.Flush(); err != nil {
		t.Fatal(err)
	}

	exp.OnReconnect()

	rec2 := newTestRecord(t)
	handler.SetAvailable(rec2)
	if err := exp.ExportEntry(&OutputEntry{Record: rec2, PluginGroups: []string{"basic"}, Family: FamilyIPv4, View: ViewBiflowForward}); err != nil {
		t.Fatal(err)
	}
	if err := exp.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(w.writes) != 2 {
		t.Fatalf("expected 2 flushed messages, got %d", len(w.writes))
	}
	secondSetID := uint16(w.writes[1][MessageHeaderLen])<<8 | uint16(w.writes[1][MessageHeaderLen+1])
	if secondSetID != TemplateSetID {
		t.Fatal("expected OnReconnect to force the template to be resent in the next message")
	}
}

func TestExporterRunDrainsRing(t *testing.T) {
	exp, w, handler := testExporter(t)

	ring := outputring.New[OutputEntry](8, 1)
	ring.RegisterWriter()
	rd := ring.NewReader(0)

	rec := newTestRecord(t)
	handler.SetAvailable(rec)
	ring.WriteBlocking(&OutputEntry{Record: rec, PluginGroups: []string{"basic"}, Family: FamilyIPv4, View: ViewBiflowForward})
	ring.UnregisterWriter()

	if err := exp.Run(ring, rd); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(w.writes) != 1 {
		t.Fatalf("expected Run to flush exactly one message, got %d", len(w.writes))
	}
}
