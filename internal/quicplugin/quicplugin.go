// Package quicplugin adapts internal/quicinitial's RFC 9001 Initial
// decryptor into a pluginrt.ProcessPlugin: the "quic" process plugin
// from spec.md section 4.5.6, grounded on original_source's QUICPlugin
// (ipxp::QUICPlugin), which drives the same decrypt-then-parse-TLS
// pipeline from process-plugin hooks rather than calling it directly
// from a protocol dispatcher.
package quicplugin

import (
	"unsafe"

	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
	"github.com/CESNET/ipfixprobe-go/internal/obslog"
	"github.com/CESNET/ipfixprobe-go/internal/pluginrt"
	"github.com/CESNET/ipfixprobe-go/internal/quicinitial"
)

// GroupName is the plugin group the fields Register adds belong to.
const GroupName = "quic"

// Handlers are the field handlers Register returns.
type Handlers struct {
	SNI, UserAgent, Version fieldregistry.FieldHandler
}

// slotRef is a forward reference to this plugin's own index within the
// runtime's plugin list, set by SetIndex only after the runtime's full
// plugin ordering is known. Field getters close over slotRef rather than
// a concrete index because Register (which builds the getters) runs
// before SetIndex (which first supplies the index), mirroring
// original_source's two-phase "declare fields, then construct" plugin
// lifecycle.
type slotRef struct{ idx int }

// Context is the per-flow QUIC plugin state: the cross-packet key
// material quicinitial.Context tracks, plus the TLS metadata extracted
// once decryption succeeds.
type Context struct {
	quicinitial.Context
	ServerName string
	UserAgent  string
	Version    uint16
}

// Register binds the quic plugin's connection-level fields into reg.
// Unlike basicplugin's counters these are not directional: spec.md
// section 4.5.6 extracts them once, from whichever side's Initial the
// decryptor first succeeds on, so they are plain scalars rather than a
// directional pair (spec.md section 4.1, RegisterScalar).
func Register(reg *fieldregistry.Registry) (Handlers, *slotRef, error) {
	ref := &slotRef{}
	var h Handlers
	var err error

	h.SNI, err = reg.RegisterScalar(GroupName, "sni", func(rec *flowrecord.Record) (any, bool) {
		ctx := pluginrt.TypedContext[Context](rec, ref.idx)
		if ctx == nil || ctx.ServerName == "" {
			return nil, false
		}
		return ctx.ServerName, true
	})
	if err != nil {
		return h, ref, err
	}

	h.UserAgent, err = reg.RegisterScalar(GroupName, "user_agent", func(rec *flowrecord.Record) (any, bool) {
		ctx := pluginrt.TypedContext[Context](rec, ref.idx)
		if ctx == nil || ctx.UserAgent == "" {
			return nil, false
		}
		return ctx.UserAgent, true
	})
	if err != nil {
		return h, ref, err
	}

	h.Version, err = reg.RegisterScalar(GroupName, "version", func(rec *flowrecord.Record) (any, bool) {
		ctx := pluginrt.TypedContext[Context](rec, ref.idx)
		if ctx == nil || ctx.Version == 0 {
			return nil, false
		}
		return ctx.Version, true
	})
	return h, ref, err
}

// Plugin implements pluginrt.ProcessPlugin for QUIC Initial decryption
// and metadata extraction (spec.md section 4.5.6).
type Plugin struct {
	handlers Handlers
	ref      *slotRef
}

// New builds the quic plugin from the handlers and slotRef Register
// returned. Callers must call SetIndex with this plugin's position in
// the runtime's plugin slice before dispatching any packet.
func New(h Handlers, ref *slotRef) *Plugin {
	return &Plugin{handlers: h, ref: ref}
}

// SetIndex records idx as this plugin's slot in the runtime's plugin
// list, letting the field getters built in Register find their typed
// context.
func (p *Plugin) SetIndex(idx int) { p.ref.idx = idx }

func (p *Plugin) Name() string  { return "quic" }
func (p *Plugin) Group() string { return GroupName }

func (p *Plugin) Flags() pluginrt.OverrideFlags {
	return pluginrt.OverrideFlags{Update: true}
}

func (p *Plugin) ContextSpec() flowrecord.PluginSpec {
	return flowrecord.PluginSpec{Name: "quic", Size: int(unsafe.Sizeof(Context{})), Align: 8}
}

// attempt runs the decrypt-and-parse pipeline for one packet's payload
// against ctx's known (or newly observed) client DCID, per spec.md
// section 4.5.6 steps 1-7. It never returns an error to the runtime:
// parse/crypto failures are per-packet and silent per spec.md section 7,
// only advancing ctx's cross-packet state on success.
func (p *Plugin) attempt(ctx *Context, payload []byte, isServer bool) {
	if len(payload) < 1 {
		return
	}
	lh, err := quicinitial.ParseLongHeader(payload)
	if lh != nil && lh.Version != quicinitial.VersionNegotiation && lh.Type == quicinitial.TypeRetry {
		ctx.RecordRetry()
		return
	}
	if err != nil {
		return
	}

	dcid := ctx.InitialDCID
	if dcid == nil {
		dcid = lh.DCID
	}

	reassembler := quicinitial.NewCryptoReassembler()
	if err := quicinitial.ProcessDatagram(payload, dcid, isServer, reassembler); err != nil {
		return
	}
	ctx.ObserveInitial(dcid)

	stream := reassembler.Contiguous()
	if len(stream) == 0 {
		return
	}

	hello, err := quicinitial.ParseClientHello(stream)
	if err != nil {
		obslog.Log.V(3).Info("quic: ClientHello parse failed", "err", err)
		return
	}
	ctx.ServerName = hello.ServerName
	ctx.UserAgent = hello.UserAgent
	if len(hello.SupportedVersions) > 0 {
		ctx.Version = hello.SupportedVersions[0]
	}
}

func (p *Plugin) OnInit(rec *flowrecord.Record, idx int, pkt *pluginrt.Packet) pluginrt.InitResult {
	// The record's plugin-context slab is freshly zeroed for a new flow
	// (flowrecord.Layout.getSlab), so ctx already starts empty; it must
	// not be reset here because OnInit is retried on every packet while
	// PendingConstruction, and spec.md section 4.5.6's cross-packet
	// state (InitialDCID) has to survive those retries.
	ctx := pluginrt.TypedContext[Context](rec, idx)
	p.attempt(ctx, pkt.Payload, pkt.Direction == pluginrt.DirectionReverse)
	if ctx.ServerName == "" {
		return pluginrt.PendingConstruction
	}
	p.markAvailable(rec, ctx)
	return pluginrt.ConstructedFinal
}

func (p *Plugin) BeforeUpdate(rec *flowrecord.Record, idx int, pkt *pluginrt.Packet) pluginrt.BeforeUpdateResult {
	return pluginrt.BeforeUpdateNoAction
}

func (p *Plugin) OnUpdate(rec *flowrecord.Record, idx int, pkt *pluginrt.Packet) pluginrt.UpdateResult {
	ctx := pluginrt.TypedContext[Context](rec, idx)
	p.attempt(ctx, pkt.Payload, pkt.Direction == pluginrt.DirectionReverse)
	if ctx.ServerName == "" {
		return pluginrt.NeedsUpdate
	}
	p.markAvailable(rec, ctx)
	return pluginrt.Final
}

func (p *Plugin) markAvailable(rec *flowrecord.Record, ctx *Context) {
	p.handlers.SNI.SetAvailable(rec)
	if ctx.UserAgent != "" {
		p.handlers.UserAgent.SetAvailable(rec)
	}
	if ctx.Version != 0 {
		p.handlers.Version.SetAvailable(rec)
	}
}

func (p *Plugin) OnExport(rec *flowrecord.Record, idx int) pluginrt.ExportResult {
	return pluginrt.ExportNoAction
}

func (p *Plugin) OnDestroy(rec *flowrecord.Record, idx int) {}
