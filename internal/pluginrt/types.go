// Package pluginrt implements the process-plugin lifecycle described in
// SPEC_FULL.md component 3: the on_init/before_update/on_update/on_export/
// on_destroy hook sequence that drives each attached plugin's per-flow
// context, mirroring original_source's ipxp::ProcessPlugin state machine
// re-expressed as Go interface methods over flowrecord.Record.
package pluginrt

import (
	"net/netip"
	"time"
)

// InitResult is returned from OnInit, the hook called on the first packet
// a plugin is relevant to for a given flow (spec.md section 4.3).
type InitResult int

const (
	// ConstructedNeedsUpdate means the plugin's context is fully built and
	// wants OnUpdate called on every subsequent relevant packet.
	ConstructedNeedsUpdate InitResult = iota
	// ConstructedFinal means the context is built but will never change
	// again; OnUpdate will not be called for this flow.
	ConstructedFinal
	// PendingConstruction means OnInit should be retried on the next
	// relevant packet; the plugin is not yet considered constructed.
	PendingConstruction
	// Irrelevant means this plugin has nothing to contribute to this flow
	// and should be dropped from plugins-available entirely.
	Irrelevant
)

// BeforeUpdateResult is returned from BeforeUpdate, called before state
// mutation on every packet after the first.
type BeforeUpdateResult int

const (
	// BeforeUpdateNoAction proceeds to OnUpdate as normal.
	BeforeUpdateNoAction BeforeUpdateResult = iota
	// FlushFlowAndReinsert asks the runtime to finalize the current flow
	// without the triggering packet, then re-insert that packet as the
	// first packet of a new flow.
	FlushFlowAndReinsert
	// BeforeUpdateRemove detaches this plugin from the flow immediately;
	// other plugins are unaffected.
	BeforeUpdateRemove
)

// UpdateResult is returned from OnUpdate, called on every packet after the
// first with state mutation allowed.
type UpdateResult int

const (
	// NeedsUpdate keeps the plugin constructed and wanting further calls.
	NeedsUpdate UpdateResult = iota
	// Final marks the plugin's context as finished; no further OnUpdate
	// calls will be made for this flow.
	Final
	// UpdateRemove detaches this plugin from the flow immediately.
	UpdateRemove
	// FlushFlow asks the runtime to finalize the current flow, including
	// the triggering packet (unlike FlushFlowAndReinsert, there is no
	// reinsertion).
	FlushFlow
)

// ExportResult is returned from OnExport, called once per plugin per flow
// at export time.
type ExportResult int

const (
	ExportNoAction ExportResult = iota
	ExportRemove
)

// OverrideFlags lets a plugin declare which optional hooks it implements,
// so the runtime driver can skip dispatching to hooks that are no-ops
// (spec.md section 3, "Plugin registration").
type OverrideFlags struct {
	BeforeUpdate bool
	Update       bool
	Export       bool
}

// Direction identifies which side of a flow a packet was observed on.
type Direction uint8

const (
	DirectionForward Direction = iota
	DirectionReverse
)

// Packet is the minimal per-packet input the runtime driver and plugin
// hooks need: enough to update directional stats and let plugins inspect
// payload without the runtime knowing about any particular protocol.
type Packet struct {
	Timestamp time.Time
	Direction Direction
	SrcAddr   netip.Addr
	DstAddr   netip.Addr
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8
	TCPFlags  uint8
	ByteLen   int
	Payload   []byte
}
