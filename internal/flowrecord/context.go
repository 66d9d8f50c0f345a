package flowrecord

import "unsafe"

// PluginContext returns a typed pointer into rec's plugin-context slab
// for the plugin at idx, or nil if that plugin is disabled for this
// flow. T must be the exact type the plugin registered its PluginSpec's
// Size/Align for; this package has no way to check that invariant at
// runtime, so plugin authors are expected to call this only through
// their own typed wrapper (see pluginrt.TypedContext) rather than
// directly.
//
// This is the non-overlapping, aligned region Invariant L1 in spec.md
// section 3 refers to: callers get a live view into the record's own
// backing array, not a copy, so writes through the returned pointer are
// visible to every other holder of *Record for this flow (there is
// exactly one: the owning worker goroutine, per spec.md section 5's
// "fully single-threaded w.r.t. its own flows").
func PluginContext[T any](rec *Record, idx int) *T {
	off := rec.pluginOffsets[idx]
	if off == DisabledOffset {
		return nil
	}
	return (*T)(unsafe.Pointer(&rec.slab[off]))
}
