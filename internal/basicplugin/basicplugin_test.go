package basicplugin

import (
	"net/netip"
	"testing"
	"time"

	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
	"github.com/CESNET/ipfixprobe-go/internal/pluginrt"
)

func buildRecord(t *testing.T, plugin pluginrt.ProcessPlugin) (*flowrecord.Record, *pluginrt.Runtime) {
	t.Helper()
	rt := pluginrt.New([]pluginrt.ProcessPlugin{plugin})
	layout, err := flowrecord.NewLayout(rt.Specs())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	rec, err := layout.NewRecord([]bool{true})
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return rec, rt
}

func TestBasicPluginMinimalBiflow(t *testing.T) {
	reg := fieldregistry.New()
	handlers, err := Register(reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	plugin := New(handlers)
	rec, rt := buildRecord(t, plugin)
	defer rec.Release()

	now := time.Now()
	fwd := &pluginrt.Packet{
		Timestamp: now,
		Direction: pluginrt.DirectionForward,
		SrcAddr:   netip.MustParseAddr("10.0.0.1"),
		DstAddr:   netip.MustParseAddr("10.0.0.2"),
		Protocol:  6,
		TCPFlags:  0x02, // SYN
		ByteLen:   64,
	}
	rev := &pluginrt.Packet{
		Timestamp: now.Add(time.Millisecond),
		Direction: pluginrt.DirectionReverse,
		SrcAddr:   netip.MustParseAddr("10.0.0.2"),
		DstAddr:   netip.MustParseAddr("10.0.0.1"),
		Protocol:  6,
		TCPFlags:  0x12, // SYN+ACK
		ByteLen:   64,
	}

	if action := rt.Dispatch(rec, fwd); action != pluginrt.FlowActionNone {
		t.Fatalf("unexpected flow action on first packet: %v", action)
	}
	if action := rt.Dispatch(rec, rev); action != pluginrt.FlowActionNone {
		t.Fatalf("unexpected flow action on reverse packet: %v", action)
	}

	if rec.Forward.Packets != 1 || rec.Reverse.Packets != 1 {
		t.Fatalf("packet counts: fwd=%d rev=%d", rec.Forward.Packets, rec.Reverse.Packets)
	}
	if rec.Forward.TCPFlags != 0x02 || rec.Reverse.TCPFlags != 0x12 {
		t.Fatalf("tcp flags: fwd=%#x rev=%#x", rec.Forward.TCPFlags, rec.Reverse.TCPFlags)
	}

	rt.Export(rec)

	if !handlers.PacketsFwd.IsAvailable(rec) || !handlers.PacketsRev.IsAvailable(rec) {
		t.Fatalf("packet fields not marked available after export")
	}
	if !rec.PluginsConstructed.Test(0) {
		t.Fatalf("basic plugin never reached constructed")
	}
}
