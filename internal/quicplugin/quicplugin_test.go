package quicplugin

import (
	"testing"

	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
	"github.com/CESNET/ipfixprobe-go/internal/pluginrt"
)

func TestPluginPendingOnGarbagePayload(t *testing.T) {
	reg := fieldregistry.New()
	handlers, ref, err := Register(reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	plugin := New(handlers, ref)

	rt := pluginrt.New([]pluginrt.ProcessPlugin{plugin})
	plugin.SetIndex(0)

	layout, err := flowrecord.NewLayout(rt.Specs())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	rec, err := layout.NewRecord([]bool{true})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	defer rec.Release()

	pkt := &pluginrt.Packet{Payload: []byte{0x00, 0x01, 0x02}}
	action := rt.Dispatch(rec, pkt)
	if action != pluginrt.FlowActionNone {
		t.Fatalf("unexpected flow action: %v", action)
	}

	if rec.PluginsConstructed.Test(0) {
		t.Fatalf("plugin should not construct on an unparseable payload")
	}
	if handlers.SNI.IsAvailable(rec) {
		t.Fatalf("sni must not be marked available without a parsed ClientHello")
	}
}

func TestFieldGettersReadTypedContext(t *testing.T) {
	reg := fieldregistry.New()
	handlers, ref, err := Register(reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	plugin := New(handlers, ref)
	plugin.SetIndex(0)

	rt := pluginrt.New([]pluginrt.ProcessPlugin{plugin})
	layout, err := flowrecord.NewLayout(rt.Specs())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	rec, err := layout.NewRecord([]bool{true})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	defer rec.Release()

	ctx := pluginrt.TypedContext[Context](rec, 0)
	ctx.ServerName = "example.com"
	ctx.Version = 1

	desc := reg.UniflowForward()
	found := false
	for _, d := range desc {
		if d.Group == GroupName && d.Name == "sni" {
			v, ok := d.Getter(rec)
			if !ok || v != "example.com" {
				t.Fatalf("sni getter returned (%v, %v), want (example.com, true)", v, ok)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("sni descriptor not found in uniflow-forward view")
	}
}
