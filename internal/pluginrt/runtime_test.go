package pluginrt

import (
	"testing"

	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
)

type counterContext struct {
	Updates int32
}

// countingPlugin constructs on the first packet and asks for on_update on
// every packet after that; it never removes itself or flushes.
type countingPlugin struct {
	destroyed int
}

func (p *countingPlugin) Name() string  { return "counting" }
func (p *countingPlugin) Group() string { return "test" }
func (p *countingPlugin) Flags() OverrideFlags {
	return OverrideFlags{BeforeUpdate: true, Update: true, Export: true}
}
func (p *countingPlugin) ContextSpec() flowrecord.PluginSpec {
	return flowrecord.PluginSpec{Name: "counting", Size: 4, Align: 4}
}
func (p *countingPlugin) OnInit(rec *flowrecord.Record, idx int, pkt *Packet) InitResult {
	return ConstructedNeedsUpdate
}
func (p *countingPlugin) BeforeUpdate(rec *flowrecord.Record, idx int, pkt *Packet) BeforeUpdateResult {
	return BeforeUpdateNoAction
}
func (p *countingPlugin) OnUpdate(rec *flowrecord.Record, idx int, pkt *Packet) UpdateResult {
	ctx := TypedContext[counterContext](rec, idx)
	ctx.Updates++
	return NeedsUpdate
}
func (p *countingPlugin) OnExport(rec *flowrecord.Record, idx int) ExportResult {
	return ExportNoAction
}
func (p *countingPlugin) OnDestroy(rec *flowrecord.Record, idx int) {
	p.destroyed++
}

// panickyPlugin always panics in OnUpdate, to exercise the safeguard path.
type panickyPlugin struct {
	destroyed int
}

func (p *panickyPlugin) Name() string  { return "panicky" }
func (p *panickyPlugin) Group() string { return "test" }
func (p *panickyPlugin) Flags() OverrideFlags {
	return OverrideFlags{Update: true}
}
func (p *panickyPlugin) ContextSpec() flowrecord.PluginSpec {
	return flowrecord.PluginSpec{Name: "panicky", Size: 1, Align: 1}
}
func (p *panickyPlugin) OnInit(rec *flowrecord.Record, idx int, pkt *Packet) InitResult {
	return ConstructedNeedsUpdate
}
func (p *panickyPlugin) BeforeUpdate(rec *flowrecord.Record, idx int, pkt *Packet) BeforeUpdateResult {
	return BeforeUpdateNoAction
}
func (p *panickyPlugin) OnUpdate(rec *flowrecord.Record, idx int, pkt *Packet) UpdateResult {
	panic("boom")
}
func (p *panickyPlugin) OnExport(rec *flowrecord.Record, idx int) ExportResult {
	return ExportNoAction
}
func (p *panickyPlugin) OnDestroy(rec *flowrecord.Record, idx int) {
	p.destroyed++
}

func newTestRecord(t *testing.T, rt *Runtime) *flowrecord.Record {
	t.Helper()
	layout, err := flowrecord.NewLayout(rt.Specs())
	if err != nil {
		t.Fatal(err)
	}
	enabled := make([]bool, len(rt.Specs()))
	for i := range enabled {
		enabled[i] = true
	}
	rec, err := layout.NewRecord(enabled)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestRuntimeConstructsOnFirstPacketAndUpdatesAfter(t *testing.T) {
	p := &countingPlugin{}
	rt := New([]ProcessPlugin{p})
	rec := newTestRecord(t, rt)

	for i := 0; i < 3; i++ {
		action := rt.Dispatch(rec, &Packet{})
		if action != FlowActionNone {
			t.Fatalf("unexpected flow action %v on packet %d", action, i)
		}
	}

	ctx := TypedContext[counterContext](rec, 0)
	if ctx.Updates != 2 {
		t.Fatalf("expected 2 on_update calls (packets 2 and 3), got %d", ctx.Updates)
	}
	if !rec.PluginsConstructed.Test(0) {
		t.Fatal("plugin should be constructed after first packet")
	}

	rt.Export(rec)
	if p.destroyed != 1 {
		t.Fatalf("expected exactly one on_destroy call, got %d", p.destroyed)
	}
}

func TestRuntimePanicIsTreatedAsRemove(t *testing.T) {
	p := &panickyPlugin{}
	rt := New([]ProcessPlugin{p})
	rec := newTestRecord(t, rt)

	// First packet: on_init constructs it (no panic there).
	rt.Dispatch(rec, &Packet{})
	if !rec.PluginsConstructed.Test(0) {
		t.Fatal("expected plugin constructed after first packet")
	}

	// Second packet: on_update panics, runtime must treat it as Remove and
	// keep running rather than propagate the panic.
	rt.Dispatch(rec, &Packet{})
	if rec.PluginsAvailable.Test(0) {
		t.Fatal("expected plugin cleared from plugins-available after panic")
	}
	if p.destroyed != 1 {
		t.Fatalf("expected on_destroy called once after panic, got %d", p.destroyed)
	}
}

func TestRuntimeFlushFlowAndReinsert(t *testing.T) {
	p := &flushingPlugin{}
	rt := New([]ProcessPlugin{p})
	rec := newTestRecord(t, rt)

	rt.Dispatch(rec, &Packet{}) // constructs
	action := rt.Dispatch(rec, &Packet{})
	if action != FlowActionFlushAndReinsert {
		t.Fatalf("expected FlowActionFlushAndReinsert, got %v", action)
	}
}

type flushingPlugin struct{}

func (p *flushingPlugin) Name() string  { return "flushing" }
func (p *flushingPlugin) Group() string { return "test" }
func (p *flushingPlugin) Flags() OverrideFlags {
	return OverrideFlags{BeforeUpdate: true, Update: true}
}
func (p *flushingPlugin) ContextSpec() flowrecord.PluginSpec {
	return flowrecord.PluginSpec{Name: "flushing", Size: 1, Align: 1}
}
func (p *flushingPlugin) OnInit(rec *flowrecord.Record, idx int, pkt *Packet) InitResult {
	return ConstructedNeedsUpdate
}
func (p *flushingPlugin) BeforeUpdate(rec *flowrecord.Record, idx int, pkt *Packet) BeforeUpdateResult {
	return FlushFlowAndReinsert
}
func (p *flushingPlugin) OnUpdate(rec *flowrecord.Record, idx int, pkt *Packet) UpdateResult {
	return NeedsUpdate
}
func (p *flushingPlugin) OnExport(rec *flowrecord.Record, idx int) ExportResult {
	return ExportNoAction
}
func (p *flushingPlugin) OnDestroy(rec *flowrecord.Record, idx int) {}
