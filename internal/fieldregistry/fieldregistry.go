/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package fieldregistry implements the monotonic, process-lifetime field
// registry described in SPEC_FULL.md component 1. It assigns stable bit
// indices to registered fields and classifies them into the four views
// the exporter needs: biflow-forward, biflow-reverse, uniflow-forward and
// uniflow-reverse.
//
// The design mirrors original_source's FieldManager/FieldHandler/
// FieldDescriptor split (ipxp::process), re-expressed with Go value
// getters instead of a templated GenericValueGetter variant, and the
// teacher's (go-ipfix) convention of returning immutable descriptor
// slices from a registry that is built once and then read-only.
package fieldregistry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
)

// MaxBitIndex is the width of the fields-available bitset in a FlowRecord
// header (spec.md section 3, "fields-available"). Registering beyond this
// capacity is a fatal configuration error.
const MaxBitIndex = 192

// Getter reads a field's value out of a flow record. It returns ok=false
// when the field has no value for this record (e.g. wrong direction, or
// the owning plugin never set it), mirroring the teacher's DataType
// decode/encode contract of "present or not" rather than panicking.
type Getter func(rec *flowrecord.Record) (value any, ok bool)

// FieldHandler is the copyable capability returned from registration. It
// only carries a bit index, exactly as original_source's FieldHandler: it
// can mark a record's bit available/unavailable and query it, but cannot
// be used to re-derive the FieldDescriptor it was minted from.
type FieldHandler struct {
	bitIndex int
}

// BitIndex returns the monotonically assigned bit position of the field.
func (h FieldHandler) BitIndex() int { return h.bitIndex }

// SetAvailable marks the handler's field present in rec.
func (h FieldHandler) SetAvailable(rec *flowrecord.Record) {
	rec.FieldsAvailable.Set(h.bitIndex)
}

// SetUnavailable clears the handler's field from rec.
func (h FieldHandler) SetUnavailable(rec *flowrecord.Record) {
	rec.FieldsAvailable.Clear(h.bitIndex)
}

// IsAvailable reports whether the handler's field is present in rec.
func (h FieldHandler) IsAvailable(rec *flowrecord.Record) bool {
	return rec.FieldsAvailable.Test(h.bitIndex)
}

// FieldDescriptor is the immutable, registry-owned metadata for one
// registered field (spec.md section 3, "FieldDescriptor (immutable)").
type FieldDescriptor struct {
	Group    string
	Name     string
	BitIndex int
	Getter   Getter
}

// IsInRecord reports whether this descriptor's field is present in rec.
func (d *FieldDescriptor) IsInRecord(rec *flowrecord.Record) bool {
	return rec.FieldsAvailable.Test(d.BitIndex)
}

type fieldKey struct {
	group string
	name  string
}

// Registry is the central, append-only registrar of fields. Like the
// teacher's template/field caches, it is safe to read concurrently once
// registration has finished; registration itself is guarded by a mutex
// because plugin init happens once at startup from multiple goroutines
// is not expected, but cheap safety here costs nothing on the hot path.
type Registry struct {
	mu sync.Mutex

	nextBit atomic.Int64

	seen map[fieldKey]struct{}

	biflowForward  []*FieldDescriptor
	biflowReverse  []*FieldDescriptor
	uniflowForward []*FieldDescriptor
	uniflowReverse []*FieldDescriptor
}

// New creates an empty field registry.
func New() *Registry {
	return &Registry{
		seen: make(map[fieldKey]struct{}),
	}
}

func (r *Registry) allocateBitIndex() (int, error) {
	idx := int(r.nextBit.Add(1) - 1)
	if idx >= MaxBitIndex {
		return 0, fmt.Errorf("%w: bit index %d exceeds capacity %d", ErrCapacityExceeded, idx, MaxBitIndex)
	}
	return idx, nil
}

func (r *Registry) markSeen(group, name string) error {
	k := fieldKey{group, name}
	if _, dup := r.seen[k]; dup {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateField, group, name)
	}
	r.seen[k] = struct{}{}
	return nil
}

// RegisterScalar allocates one bit index for a non-directional field and
// inserts its descriptor into both the biflow-forward and uniflow-forward
// views, per spec.md section 4.1.
func (r *Registry) RegisterScalar(group, name string, getter Getter) (FieldHandler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.markSeen(group, name); err != nil {
		return FieldHandler{}, err
	}
	bit, err := r.allocateBitIndex()
	if err != nil {
		return FieldHandler{}, err
	}

	d := &FieldDescriptor{Group: group, Name: name, BitIndex: bit, Getter: getter}
	r.biflowForward = append(r.biflowForward, d)
	r.uniflowForward = append(r.uniflowForward, d)

	return FieldHandler{bitIndex: bit}, nil
}

// RegisterDirectionalPair allocates two bit indices for a forward/reverse
// field pair. The forward descriptor is placed in the biflow-forward
// view, the reverse one in biflow-reverse; both also appear in their
// respective uniflow views, per spec.md section 4.1.
func (r *Registry) RegisterDirectionalPair(group, nameFwd, nameRev string, gFwd, gRev Getter) (FieldHandler, FieldHandler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.markSeen(group, nameFwd); err != nil {
		return FieldHandler{}, FieldHandler{}, err
	}
	if err := r.markSeen(group, nameRev); err != nil {
		return FieldHandler{}, FieldHandler{}, err
	}

	bitFwd, err := r.allocateBitIndex()
	if err != nil {
		return FieldHandler{}, FieldHandler{}, err
	}
	bitRev, err := r.allocateBitIndex()
	if err != nil {
		return FieldHandler{}, FieldHandler{}, err
	}

	dFwd := &FieldDescriptor{Group: group, Name: nameFwd, BitIndex: bitFwd, Getter: gFwd}
	dRev := &FieldDescriptor{Group: group, Name: nameRev, BitIndex: bitRev, Getter: gRev}

	r.biflowForward = append(r.biflowForward, dFwd)
	r.biflowReverse = append(r.biflowReverse, dRev)
	r.uniflowForward = append(r.uniflowForward, dFwd)
	r.uniflowReverse = append(r.uniflowReverse, dRev)

	return FieldHandler{bitIndex: bitFwd}, FieldHandler{bitIndex: bitRev}, nil
}

// RegisterBiflowPair behaves like RegisterDirectionalPair when exporting
// as biflow, but the two fields flatten into a single uniflow direction:
// only the "a" descriptor is inserted into uniflow-forward and "b" is
// dropped from the uniflow views entirely, matching spec.md's "flattened
// into a single direction" semantics for RFC 5103 A/B biflow pairs.
func (r *Registry) RegisterBiflowPair(group, nameA, nameB string, gA, gB Getter) (FieldHandler, FieldHandler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.markSeen(group, nameA); err != nil {
		return FieldHandler{}, FieldHandler{}, err
	}
	if err := r.markSeen(group, nameB); err != nil {
		return FieldHandler{}, FieldHandler{}, err
	}

	bitA, err := r.allocateBitIndex()
	if err != nil {
		return FieldHandler{}, FieldHandler{}, err
	}
	bitB, err := r.allocateBitIndex()
	if err != nil {
		return FieldHandler{}, FieldHandler{}, err
	}

	dA := &FieldDescriptor{Group: group, Name: nameA, BitIndex: bitA, Getter: gA}
	dB := &FieldDescriptor{Group: group, Name: nameB, BitIndex: bitB, Getter: gB}

	r.biflowForward = append(r.biflowForward, dA)
	r.biflowReverse = append(r.biflowReverse, dB)
	r.uniflowForward = append(r.uniflowForward, dA)

	return FieldHandler{bitIndex: bitA}, FieldHandler{bitIndex: bitB}, nil
}

// BiflowForward returns the immutable, registration-order view of
// forward-direction fields for biflow export.
func (r *Registry) BiflowForward() []*FieldDescriptor { return r.view(r.biflowForward) }

// BiflowReverse returns the immutable view of reverse-direction fields
// for biflow export.
func (r *Registry) BiflowReverse() []*FieldDescriptor { return r.view(r.biflowReverse) }

// UniflowForward returns the immutable view used when exporting as two
// independent uniflow records, forward direction.
func (r *Registry) UniflowForward() []*FieldDescriptor { return r.view(r.uniflowForward) }

// UniflowReverse returns the immutable view used when exporting as two
// independent uniflow records, reverse direction.
func (r *Registry) UniflowReverse() []*FieldDescriptor { return r.view(r.uniflowReverse) }

func (r *Registry) view(src []*FieldDescriptor) []*FieldDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*FieldDescriptor, len(src))
	copy(out, src)
	return out
}
