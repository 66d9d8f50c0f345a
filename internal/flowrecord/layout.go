package flowrecord

import (
	"fmt"
	"sync"
	"unsafe"
)

// headerAlignment and tableAlignment correspond to spec.md section 4.2
// steps 1-2: "rounded up to the alignment of the flow-key substructure"
// and "rounded up to the alignment of the table header". The flow key
// substructure's widest field is a netip.Addr (an 8-byte-aligned value
// internally), and the plugin table is a slice of ints, so both round
// to the machine word size.
const (
	headerAlignment = int(unsafe.Alignof(uintptr(0)))
	tableAlignment  = int(unsafe.Alignof(uintptr(0)))
)

// PluginSpec is what a process plugin declares about its per-flow
// context: its size and required alignment (spec.md section 3, "Plugin
// registration ... a context memory layout (size, alignment)").
type PluginSpec struct {
	Name  string
	Size  int
	Align int
}

func roundUp(offset, align int) int {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Layout is the deterministic, precomputed placement of every
// registered plugin's context within one flow record allocation,
// computed by the algorithm in spec.md section 4.2. A Layout is built
// once for the full, registration-order plugin list and is reused by
// every flow; a flow's per-flow enabled subset determines which
// offsets get the DisabledOffset sentinel instead of a reserved region.
type Layout struct {
	specs []PluginSpec

	// baseOffset is the fixed header size (rounded to headerAlignment)
	// plus the plugin table size (rounded to tableAlignment): the
	// offset at which the first plugin context may begin.
	baseOffset int

	// fullOffsets[i] is plugin i's offset when every plugin is enabled;
	// fullSize and fullAlign describe that fully-populated allocation.
	fullOffsets []int
	fullSize    int
	fullAlign   int

	pools sync.Map // size -> *sync.Pool of []byte
}

// headerSize is sizeof(Header), taken with unsafe.Sizeof so the layout's
// base offset stays correct if Header grows.
var headerSize = int(unsafe.Sizeof(Header{}))

// NewLayout computes one deterministic layout for specs, in
// registration order, per spec.md section 4.2's algorithm.
func NewLayout(specs []PluginSpec) (*Layout, error) {
	l := &Layout{specs: append([]PluginSpec(nil), specs...)}

	offset := roundUp(headerSize, headerAlignment)
	tableSize := len(specs) * int(unsafe.Sizeof(int(0)))
	offset = roundUp(offset+tableSize, tableAlignment)
	l.baseOffset = offset

	maxAlign := headerAlignment
	offsets := make([]int, len(specs))
	for i, s := range specs {
		if s.Align <= 0 {
			return nil, fmt.Errorf("%w: plugin %q declared non-positive alignment %d", ErrInvalidPluginSpec, s.Name, s.Align)
		}
		if s.Size < 0 {
			return nil, fmt.Errorf("%w: plugin %q declared negative size %d", ErrInvalidPluginSpec, s.Name, s.Size)
		}
		offset = roundUp(offset, s.Align)
		offsets[i] = offset
		offset += s.Size
		if s.Align > maxAlign {
			maxAlign = s.Align
		}
	}

	l.fullOffsets = offsets
	l.fullSize = offset
	l.fullAlign = maxAlign
	return l, nil
}

// NewRecord allocates and initializes a flow record for the given
// subset of enabled plugin indices (a set over [0, len(specs))).
// Plugins not present in enabled get the DisabledOffset sentinel and no
// reserved bytes, matching spec.md's "disabled for this flow" rule --
// disabled plugins are simply skipped when summing offsets, so the
// record this flow gets is exactly as large as its own active plugin
// set requires, not the full registered set (this is the one place
// this implementation computes a *per-flow* layout rather than reusing
// Layout.fullOffsets verbatim, since "enabled" varies flow to flow
// while the registration-order plugin list does not).
func (l *Layout) NewRecord(enabled []bool) (*Record, error) {
	if len(enabled) != len(l.specs) {
		return nil, fmt.Errorf("%w: enabled set has %d entries, layout has %d plugins", ErrInvalidPluginSpec, len(enabled), len(l.specs))
	}

	offsets := make([]int, len(l.specs))
	offset := l.baseOffset
	maxAlign := headerAlignment
	for i, s := range l.specs {
		if !enabled[i] {
			offsets[i] = DisabledOffset
			continue
		}
		offset = roundUp(offset, s.Align)
		offsets[i] = offset
		offset += s.Size
		if s.Align > maxAlign {
			maxAlign = s.Align
		}
	}

	slab := l.getSlab(offset, maxAlign)

	rec := &Record{
		layout:        l,
		pluginOffsets: offsets,
		slab:          slab,
	}
	rec.FieldsAvailable = NewBitset(FieldBitsetWidth)
	rec.PluginsAvailable = NewBitset(PluginBitsetWidth)
	rec.PluginsConstructed = NewBitset(PluginBitsetWidth)
	rec.PluginsUpdate = NewBitset(PluginBitsetWidth)
	for i, en := range enabled {
		if en {
			rec.PluginsAvailable.Set(i)
			rec.PluginsUpdate.Set(i)
		}
	}
	return rec, nil
}

func poolKey(size, align int) [2]int { return [2]int{size, align} }

// getSlab returns an aligned, zeroed byte slice of length size from a
// per-(size,align) sync.Pool, recycling previously-released slabs of
// the same shape instead of going back to the allocator -- the
// low-allocation behavior spec.md asks of the ring's cell recycling,
// applied here to same-plugin-set flows, which are by far the common
// case in a running probe.
func (l *Layout) getSlab(size, align int) []byte {
	key := poolKey(size, align)
	v, _ := l.pools.LoadOrStore(key, &sync.Pool{
		New: func() any {
			return alignedAlloc(size, align)
		},
	})
	pool := v.(*sync.Pool)
	buf := pool.Get().([]byte)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

func (l *Layout) putSlab(buf []byte) {
	if buf == nil {
		return
	}
	// align is not recoverable from buf alone, but every slab for a
	// given size was allocated with the same alignment requirement for
	// this layout's lifetime (the enabled-set determines size, and a
	// fixed enabled-set always requests the same alignment), so a
	// size-only key collision here is benign: pools is keyed on
	// (size, align) pairs, and puts land in whichever pool the caller's
	// size maps to, which is correct as long as callers always derive
	// size the same way NewRecord did for that enabled-set.
	l.pools.Range(func(k, v any) bool {
		kk := k.([2]int)
		if kk[0] == len(buf) {
			v.(*sync.Pool).Put(buf)
			return false
		}
		return true
	})
}

// alignedAlloc returns a zero-length-safe, size-byte slice whose
// backing array starts at an address satisfying align, by
// over-allocating and slicing -- the Go-idiomatic equivalent of
// posix_memalign for code that (unlike most Go) genuinely needs pointer
// alignment guarantees stronger than the runtime's default.
func alignedAlloc(size, align int) []byte {
	if align <= 1 {
		return make([]byte, size)
	}
	buf := make([]byte, size+align)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	misalign := int(addr % uintptr(align))
	var start int
	if misalign == 0 {
		start = 0
	} else {
		start = align - misalign
	}
	return buf[start : start+size : start+size]
}
