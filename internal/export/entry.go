package export

import "github.com/CESNET/ipfixprobe-go/internal/flowrecord"

// OutputEntry is the element type of the MPMC output ring between the
// flow-cache workers and the exporter thread (spec.md section 4.4's
// "OutputEntry", resolved here as a raw flow record plus the minimal
// routing metadata the exporter needs to select a template, rather than a
// pre-serialized byte buffer: serialization happens once, in the exporter
// goroutine, against whichever template that entry's plugin set and
// family resolve to).
type OutputEntry struct {
	Record *flowrecord.Record
	// PluginGroups lists the process-plugin groups that contributed
	// fields to Record, in no particular order; the exporter maps this
	// to a stable bitmask via groupBitmask for template-cache keying.
	PluginGroups []string
	Family       Family
	View         ViewKind
}

// Release returns Record's backing allocation to its layout's pool. Must
// be called exactly once per entry, after the exporter has finished
// serializing it.
func (e *OutputEntry) Release() {
	if e.Record != nil {
		e.Record.Release()
	}
}
