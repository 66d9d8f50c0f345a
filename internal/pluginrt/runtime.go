package pluginrt

import (
	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
	"github.com/CESNET/ipfixprobe-go/internal/obslog"
)

// FlowAction is what the runtime asks the flow-cache to do with the
// current flow after dispatching one packet, per spec.md section 4.3's
// runtime driver step 1 and the FlushFlow outcome of on_update.
type FlowAction int

const (
	// FlowActionNone means the flow continues as normal.
	FlowActionNone FlowAction = iota
	// FlowActionFlushAndReinsert means the flow-cache must finalize the
	// current flow without the triggering packet, then re-insert that
	// packet as the first packet of a brand new flow.
	FlowActionFlushAndReinsert
	// FlowActionFlush means the flow-cache must finalize the current flow,
	// including the triggering packet.
	FlowActionFlush
)

// Runtime drives the on_init/before_update/on_update/on_export/on_destroy
// hook sequence (spec.md section 4.3) for one ordered, fixed set of
// plugins. A Runtime is built once at startup and shared by every flow;
// it holds no per-flow state itself (that all lives in *flowrecord.Record).
type Runtime struct {
	plugins []ProcessPlugin
}

// New builds a runtime driver over plugins, in the same registration order
// used to build the flowrecord.Layout these flows were allocated with.
func New(plugins []ProcessPlugin) *Runtime {
	return &Runtime{plugins: append([]ProcessPlugin(nil), plugins...)}
}

// Specs returns the flowrecord.PluginSpec list in registration order, for
// building the flowrecord.Layout this runtime's records must use.
func (rt *Runtime) Specs() []flowrecord.PluginSpec {
	specs := make([]flowrecord.PluginSpec, len(rt.plugins))
	for i, p := range rt.plugins {
		specs[i] = p.ContextSpec()
	}
	return specs
}

// safeguard recovers from a plugin hook panic and reports it as a Remove,
// per spec.md section 4.3's failure semantics: a faulting plugin must not
// corrupt the flow record or take down the caller.
func safeguard(fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
		}
	}()
	fn()
	return false
}

func (rt *Runtime) destroy(rec *flowrecord.Record, idx int) {
	p := rt.plugins[idx]
	safeguard(func() { p.OnDestroy(rec, idx) })
	rec.PluginsAvailable.Clear(idx)
	rec.PluginsConstructed.Clear(idx)
	rec.PluginsUpdate.Clear(idx)
}

// destroyOnPanic detaches the plugin at idx per spec.md section 4.3's
// "treat a plugin panic as Remove and continue", logging once so a
// faulting plugin is visible without aborting the flow.
func (rt *Runtime) destroyOnPanic(rec *flowrecord.Record, idx int, hook string) {
	obslog.Log.Error(nil, "process plugin panicked, detaching from flow",
		"hook", hook, "pluginIndex", idx, "flowHash", rec.Hash)
	rt.destroy(rec, idx)
}

// Dispatch runs one packet through every attached plugin's hooks, per the
// runtime driver algorithm in spec.md section 4.3.
func (rt *Runtime) Dispatch(rec *flowrecord.Record, pkt *Packet) FlowAction {
	// Step 1: before_update, only for plugins that are available,
	// constructed, want further updates, and implement the hook.
	for idx, p := range rt.plugins {
		if !rec.PluginEnabled(idx) {
			continue
		}
		if !(rec.PluginsAvailable.Test(idx) && rec.PluginsConstructed.Test(idx) && rec.PluginsUpdate.Test(idx)) {
			continue
		}
		if !p.Flags().BeforeUpdate {
			continue
		}

		var result BeforeUpdateResult
		panicked := safeguard(func() { result = p.BeforeUpdate(rec, idx, pkt) })
		if panicked {
			rt.destroyOnPanic(rec, idx, "before_update")
			continue
		}

		switch result {
		case FlushFlowAndReinsert:
			return FlowActionFlushAndReinsert
		case BeforeUpdateRemove:
			rt.destroy(rec, idx)
		case BeforeUpdateNoAction:
		}
	}

	// Step 2: on_init for not-yet-constructed plugins, on_update for
	// constructed ones that still want updates.
	flush := false
	for idx, p := range rt.plugins {
		if !rec.PluginEnabled(idx) {
			continue
		}
		if !(rec.PluginsAvailable.Test(idx) && rec.PluginsUpdate.Test(idx)) {
			continue
		}

		if !rec.PluginsConstructed.Test(idx) {
			var result InitResult
			panicked := safeguard(func() { result = p.OnInit(rec, idx, pkt) })
			if panicked {
				rt.destroyOnPanic(rec, idx, "on_init")
				continue
			}
			switch result {
			case ConstructedNeedsUpdate:
				rec.PluginsConstructed.Set(idx)
				rec.PluginsUpdate.Set(idx)
			case ConstructedFinal:
				rec.PluginsConstructed.Set(idx)
				rec.PluginsUpdate.Clear(idx)
			case PendingConstruction:
				// stays unconstructed, retried next relevant packet
			case Irrelevant:
				rec.PluginsAvailable.Clear(idx)
				rec.PluginsUpdate.Clear(idx)
			}
			continue
		}

		if !p.Flags().Update {
			continue
		}
		var result UpdateResult
		panicked := safeguard(func() { result = p.OnUpdate(rec, idx, pkt) })
		if panicked {
			rt.destroyOnPanic(rec, idx, "on_update")
			continue
		}
		switch result {
		case NeedsUpdate:
		case Final:
			rec.PluginsUpdate.Clear(idx)
		case UpdateRemove:
			rt.destroy(rec, idx)
		case FlushFlow:
			flush = true
		}
	}

	if flush {
		return FlowActionFlush
	}
	return FlowActionNone
}

// Export runs on_export then on_destroy for every plugin still available
// and constructed on rec, per spec.md section 4.3's runtime driver step 3
// and Invariant C1 (on_destroy called exactly once per ever-constructed
// plugin). A plugin whose on_export returns ExportRemove (or panics) is
// also cleared from rec's plugin bitsets; every other plugin keeps its
// bits, so its fields remain readable when the record is serialized.
func (rt *Runtime) Export(rec *flowrecord.Record) {
	for idx, p := range rt.plugins {
		if !rec.PluginEnabled(idx) {
			continue
		}
		if !(rec.PluginsAvailable.Test(idx) && rec.PluginsConstructed.Test(idx)) {
			continue
		}

		result := ExportNoAction
		if p.Flags().Export {
			panicked := safeguard(func() { result = p.OnExport(rec, idx) })
			if panicked {
				rt.destroyOnPanic(rec, idx, "on_export")
				continue
			}
		}
		if result == ExportRemove {
			rt.destroy(rec, idx)
			continue
		}
		// on_destroy runs once here; the plugin bits stay set so the
		// exporter can still read this plugin's fields (Invariant L2).
		safeguard(func() { p.OnDestroy(rec, idx) })
	}
}
