package bitset

import (
	"fmt"
	"math/bits"
)

// BitSet is a fixed-size set of small non-negative integers, used to mark
// visited tokens and used pools during path search.
type BitSet []uint64

// New returns a BitSet able to hold indices in [0, n).
func New(n int) BitSet {
	return make(BitSet, (n+63)/64)
}

func (b BitSet) IsSet(i int) bool {
	return b[i/64]&(uint64(1)<<(uint(i)%64)) != 0
}

func (b BitSet) Set(i int) {
	b[i/64] |= uint64(1) << (uint(i) % 64)
}

func (b BitSet) Unset(i int) {
	b[i/64] &^= uint64(1) << (uint(i) % 64)
}

// Count returns the number of set indices.
func (b BitSet) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b BitSet) Clear() {
	for i := range b {
		b[i] = 0
	}
}

// Clone returns an independent copy of b.
func (b BitSet) Clone() BitSet {
	c := make(BitSet, len(b))
	copy(c, b)
	return c
}

// SetFrom overwrites b with o. Both sets must have the same size.
func (b BitSet) SetFrom(o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
	copy(b, o)
}
