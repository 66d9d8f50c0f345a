// Package basicplugin implements the always-present "basic" process
// plugin: directional packet/byte counters, TCP flag union and
// first/last-seen timestamps, grounded on original_source's BasicPlugin
// (ipxp::BasicPlugin), the one plugin every flow in the original carries
// unconditionally. Unlike most process plugins it needs no per-flow
// context of its own -- the counters it exports already live in every
// flowrecord.Record's embedded Header.Forward/Header.Reverse
// DirectionalStats -- so its ContextSpec reserves zero bytes, matching
// spec.md section 4.2's "a plugin marked disabled... receives... no
// reserved bytes" for the degenerate zero-size case.
package basicplugin

import (
	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
	"github.com/CESNET/ipfixprobe-go/internal/pluginrt"
)

// GroupName is the plugin group every field registered here belongs to.
const GroupName = "basic"

// Handlers are the field handlers Register returns, needed only so
// tests and other plugins can mark/query availability directly; the
// exporter itself only ever consults fieldregistry views.
type Handlers struct {
	PacketsFwd, PacketsRev     fieldregistry.FieldHandler
	OctetsFwd, OctetsRev       fieldregistry.FieldHandler
	TCPFlagsFwd, TCPFlagsRev   fieldregistry.FieldHandler
	FirstSeenFwd, FirstSeenRev fieldregistry.FieldHandler
	LastSeenFwd, LastSeenRev   fieldregistry.FieldHandler
}

// Register binds the basic plugin's directional fields into reg, per
// spec.md section 4.1's directional-pair registration.
func Register(reg *fieldregistry.Registry) (Handlers, error) {
	var h Handlers
	var err error

	h.PacketsFwd, h.PacketsRev, err = reg.RegisterDirectionalPair(GroupName, "packets_fwd", "packets_rev",
		func(rec *flowrecord.Record) (any, bool) { return rec.Forward.Packets, true },
		func(rec *flowrecord.Record) (any, bool) { return rec.Reverse.Packets, true })
	if err != nil {
		return h, err
	}

	h.OctetsFwd, h.OctetsRev, err = reg.RegisterDirectionalPair(GroupName, "octets_fwd", "octets_rev",
		func(rec *flowrecord.Record) (any, bool) { return rec.Forward.Bytes, true },
		func(rec *flowrecord.Record) (any, bool) { return rec.Reverse.Bytes, true })
	if err != nil {
		return h, err
	}

	h.TCPFlagsFwd, h.TCPFlagsRev, err = reg.RegisterDirectionalPair(GroupName, "tcp_flags_fwd", "tcp_flags_rev",
		func(rec *flowrecord.Record) (any, bool) { return rec.Forward.TCPFlags, true },
		func(rec *flowrecord.Record) (any, bool) { return rec.Reverse.TCPFlags, true })
	if err != nil {
		return h, err
	}

	h.FirstSeenFwd, h.FirstSeenRev, err = reg.RegisterDirectionalPair(GroupName, "first_seen_fwd", "first_seen_rev",
		func(rec *flowrecord.Record) (any, bool) { return rec.Forward.FirstSeen, !rec.Forward.FirstSeen.IsZero() },
		func(rec *flowrecord.Record) (any, bool) { return rec.Reverse.FirstSeen, !rec.Reverse.FirstSeen.IsZero() })
	if err != nil {
		return h, err
	}

	h.LastSeenFwd, h.LastSeenRev, err = reg.RegisterDirectionalPair(GroupName, "last_seen_fwd", "last_seen_rev",
		func(rec *flowrecord.Record) (any, bool) { return rec.Forward.LastSeen, !rec.Forward.LastSeen.IsZero() },
		func(rec *flowrecord.Record) (any, bool) { return rec.Reverse.LastSeen, !rec.Reverse.LastSeen.IsZero() })
	if err != nil {
		return h, err
	}

	return h, nil
}

// Plugin implements pluginrt.ProcessPlugin for the basic group. It is
// always relevant (OnInit never returns Irrelevant) and always wants
// updates, since a flow's packet/byte counters change on every packet.
type Plugin struct {
	handlers Handlers
}

// New builds the basic plugin bound to the field handlers Register
// returned, so OnInit/OnUpdate can mark them available on the record.
func New(h Handlers) *Plugin {
	return &Plugin{handlers: h}
}

func (p *Plugin) Name() string  { return "basic" }
func (p *Plugin) Group() string { return GroupName }

func (p *Plugin) Flags() pluginrt.OverrideFlags {
	return pluginrt.OverrideFlags{Update: true, Export: true}
}

func (p *Plugin) ContextSpec() flowrecord.PluginSpec {
	return flowrecord.PluginSpec{Name: "basic", Size: 0, Align: 1}
}

func (p *Plugin) markAvailable(rec *flowrecord.Record) {
	p.handlers.PacketsFwd.SetAvailable(rec)
	p.handlers.PacketsRev.SetAvailable(rec)
	p.handlers.OctetsFwd.SetAvailable(rec)
	p.handlers.OctetsRev.SetAvailable(rec)
	p.handlers.TCPFlagsFwd.SetAvailable(rec)
	p.handlers.TCPFlagsRev.SetAvailable(rec)
	p.handlers.FirstSeenFwd.SetAvailable(rec)
	p.handlers.FirstSeenRev.SetAvailable(rec)
	p.handlers.LastSeenFwd.SetAvailable(rec)
	p.handlers.LastSeenRev.SetAvailable(rec)
}

func (p *Plugin) observe(rec *flowrecord.Record, pkt *pluginrt.Packet) {
	stats := &rec.Forward
	if pkt.Direction == pluginrt.DirectionReverse {
		stats = &rec.Reverse
	}
	stats.Observe(pkt.Timestamp, pkt.ByteLen, pkt.TCPFlags)
}

func (p *Plugin) OnInit(rec *flowrecord.Record, idx int, pkt *pluginrt.Packet) pluginrt.InitResult {
	p.observe(rec, pkt)
	p.markAvailable(rec)
	return pluginrt.ConstructedNeedsUpdate
}

func (p *Plugin) BeforeUpdate(rec *flowrecord.Record, idx int, pkt *pluginrt.Packet) pluginrt.BeforeUpdateResult {
	return pluginrt.BeforeUpdateNoAction
}

func (p *Plugin) OnUpdate(rec *flowrecord.Record, idx int, pkt *pluginrt.Packet) pluginrt.UpdateResult {
	p.observe(rec, pkt)
	return pluginrt.NeedsUpdate
}

func (p *Plugin) OnExport(rec *flowrecord.Record, idx int) pluginrt.ExportResult {
	return pluginrt.ExportNoAction
}

func (p *Plugin) OnDestroy(rec *flowrecord.Record, idx int) {}
