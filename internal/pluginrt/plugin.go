package pluginrt

import "github.com/CESNET/ipfixprobe-go/internal/flowrecord"

// ProcessPlugin is the interface every attached plugin implements. idx is
// this plugin's slot index within the flow record's layout, the same idx
// passed to flowrecord.PluginContext.
type ProcessPlugin interface {
	Name() string
	Group() string
	Flags() OverrideFlags
	ContextSpec() flowrecord.PluginSpec

	OnInit(rec *flowrecord.Record, idx int, pkt *Packet) InitResult
	BeforeUpdate(rec *flowrecord.Record, idx int, pkt *Packet) BeforeUpdateResult
	OnUpdate(rec *flowrecord.Record, idx int, pkt *Packet) UpdateResult
	OnExport(rec *flowrecord.Record, idx int) ExportResult
	OnDestroy(rec *flowrecord.Record, idx int)
}

// TypedContext is the safe wrapper flowrecord.PluginContext's doc comment
// refers to: plugins call this with the same T they declared in
// ContextSpec's Size/Align instead of calling flowrecord.PluginContext
// directly, keeping the unsafe cast in one place per plugin.
func TypedContext[T any](rec *flowrecord.Record, idx int) *T {
	return flowrecord.PluginContext[T](rec, idx)
}
