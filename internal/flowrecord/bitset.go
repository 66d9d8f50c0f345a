package flowrecord

import "math/bits"

// Bitset is a fixed-capacity bit vector sized in 64-bit words, used for
// the flow record's fields-available, plugins-available,
// plugins-constructed and plugins-update sets described in spec.md
// section 3. It intentionally mirrors the width contract (>=192 for
// fields, >=32 for plugin sets) via NewBitset's word count rather than
// hard-coding either, so both header bitsets can share one type.
type Bitset struct {
	words []uint64
}

// NewBitset allocates a Bitset with at least minBits of capacity.
func NewBitset(minBits int) Bitset {
	n := (minBits + 63) / 64
	if n == 0 {
		n = 1
	}
	return Bitset{words: make([]uint64, n)}
}

// Set marks bit i present.
func (b *Bitset) Set(i int) {
	b.words[i/64] |= 1 << uint(i%64)
}

// Clear marks bit i absent.
func (b *Bitset) Clear(i int) {
	b.words[i/64] &^= 1 << uint(i%64)
}

// Test reports whether bit i is present.
func (b *Bitset) Test(i int) bool {
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

// Reset clears every bit.
func (b *Bitset) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// And returns a new Bitset holding b ∧ other (e.g. plugins-available ∧
// plugins-constructed); b and other are left unchanged.
func (b *Bitset) And(other Bitset) Bitset {
	n := len(b.words)
	if len(other.words) < n {
		n = len(other.words)
	}
	out := NewBitset(len(b.words) * 64)
	for i := 0; i < n; i++ {
		out.words[i] = b.words[i] & other.words[i]
	}
	return out
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// ForEach invokes fn for every set bit index in ascending order.
func (b *Bitset) ForEach(fn func(i int)) {
	for wi, w := range b.words {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			fn(wi*64 + tz)
			w &^= 1 << uint(tz)
		}
	}
}

// Mask returns the bitmask of the first 64 bits as a uint64, used by the
// IPFIX template cache to key templates on "which plugins produced a
// field in this record" (spec.md section 4.5.1). Plugin sets are
// guaranteed to fit within one word (capacity 32).
func (b *Bitset) Mask() uint64 {
	if len(b.words) == 0 {
		return 0
	}
	return b.words[0]
}
