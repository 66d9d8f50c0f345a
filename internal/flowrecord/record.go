// Package flowrecord implements the variable-size, aligned flow record
// described in SPEC_FULL.md component 2: a single per-flow allocation
// that owns a fixed header, a plugin offset table, and each attached
// process plugin's context, laid out contiguously and aligned per
// spec.md section 4.2.
package flowrecord

import (
	"net/netip"
	"time"
)

// FieldBitsetWidth and PluginBitsetWidth satisfy spec.md's "bitset of
// width >=192" / ">=32" requirements for the header.
const (
	FieldBitsetWidth  = 192
	PluginBitsetWidth = 32
)

// DisabledOffset is the plugin-table sentinel meaning "this plugin is
// disabled for this flow" (spec.md section 3, "Plugin table").
const DisabledOffset = -1

// MACAddress is a 6-byte hardware address, stored by value so a flow
// record's header needs no secondary heap allocation for it.
type MACAddress [6]byte

// EndReason classifies why a flow was finalized, per spec.md section 3.
type EndReason uint8

const (
	EndReasonActive EndReason = iota
	EndReasonInactive
	EndReasonEOF
	EndReasonForced
	EndReasonResources
)

// DirectionalStats holds the per-direction counters that accumulate
// during a flow's lifetime (spec.md section 3, "two DirectionalStats").
type DirectionalStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Packets   uint64
	Bytes     uint64
	// TCPFlags is the union (bitwise OR) of every TCP flags byte
	// observed in this direction.
	TCPFlags uint8
}

// Observe folds one packet's observation into the directional stats.
func (s *DirectionalStats) Observe(ts time.Time, byteLen int, tcpFlags uint8) {
	if s.FirstSeen.IsZero() {
		s.FirstSeen = ts
	}
	s.LastSeen = ts
	s.Packets++
	s.Bytes += uint64(byteLen)
	s.TCPFlags |= tcpFlags
}

// FlowKey is the 5-tuple (plus both IP family variants, per spec.md
// "two IP variants") that identifies a flow.
type FlowKey struct {
	SrcAddr  netip.Addr
	DstAddr  netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Header is the fixed, non-plugin part of a flow record (spec.md
// section 3, point 1).
type Header struct {
	Hash       uint64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Key        FlowKey
	SrcMAC     MACAddress
	DstMAC     MACAddress
	Forward    DirectionalStats
	Reverse    DirectionalStats
	EndReason  EndReason

	// FieldsAvailable tracks which registered fields currently hold
	// valid data in this record (fieldregistry.FieldHandler indexes
	// into this).
	FieldsAvailable Bitset

	// PluginsAvailable, PluginsConstructed and PluginsUpdate are the
	// three plugin bitsets from spec.md section 3, point 1.
	PluginsAvailable   Bitset
	PluginsConstructed Bitset
	PluginsUpdate      Bitset
}

// Record is one flow record: the fixed Header plus the plugin table and
// plugin context slab computed by a Layout. Record owns the slab: it is
// the only thing that outlives the flow-cache worker goroutine that
// created it, up until the exporter releases it after serialization.
type Record struct {
	Header

	layout *Layout
	// pluginOffsets[i] is the byte offset of plugin i's context within
	// slab, or DisabledOffset if plugin i is not attached to this flow.
	pluginOffsets []int
	slab          []byte
}

// PluginCount returns the number of plugin slots in this record's
// layout (spec.md "Plugin table: a count followed by one offset per
// plugin").
func (r *Record) PluginCount() int {
	return len(r.pluginOffsets)
}

// PluginOffset returns the byte offset of plugin idx's context, or
// DisabledOffset if that plugin is not attached to this flow.
func (r *Record) PluginOffset(idx int) int {
	return r.pluginOffsets[idx]
}

// PluginEnabled reports whether plugin idx has a reserved context
// region in this record.
func (r *Record) PluginEnabled(idx int) bool {
	return r.pluginOffsets[idx] != DisabledOffset
}

// Size returns the total allocation size backing this record, i.e. the
// "Final allocation size" from spec.md section 4.2's layout algorithm.
func (r *Record) Size() int {
	return len(r.slab)
}

// Release returns the record's slab to its layout's pool. The caller
// must not touch the record (or any PluginContext view into it) after
// calling Release; this is the Go-GC-friendly stand-in for "destroyed
// via a custom destructor that frees with the original alignment"
// (spec.md section 4.2): instead of a manual free, the aligned backing
// array is recycled through a sync.Pool keyed by (size, alignment) so
// same-plugin-set flows don't churn the allocator.
func (r *Record) Release() {
	if r.layout != nil {
		r.layout.putSlab(r.slab)
	}
	r.slab = nil
	r.pluginOffsets = nil
}
