// Package nullifier implements the nullifier set and its Bloom-filter
// accelerator: the authoritative set is the source of truth for
// double-spend prevention; the filter only ever short-circuits a
// definite-absence check.
package nullifier

import (
	"encoding/binary"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/noah-privacy/shielded-core/internal/hashing"
)

// FilterBits is the fixed 1024-bit Bloom filter width, partitioned into
// 16 64-bit words.
const FilterBits = 1024

// Set is a nullifier set with a Bloom-filter accept/reject prefilter.
// The filter is additive and never cleared.
type Set struct {
	mu     sync.RWMutex
	used   map[[hashing.Size]byte]struct{}
	filter *bitset.BitSet
}

// New creates an empty nullifier set.
func New() *Set {
	return &Set{
		used:   make(map[[hashing.Size]byte]struct{}),
		filter: bitset.New(FilterBits),
	}
}

// filterBits derives the three (word, bit) positions from overlapping
// 8-byte windows of the nullifier:
// hash_i = LE64(n[4i : 4i+8]), w_i = hash_i mod 16, b_i = (hash_i >> 4) mod 64.
func filterBits(n [hashing.Size]byte) [3]uint {
	var positions [3]uint
	for i := 0; i < 3; i++ {
		window := binary.LittleEndian.Uint64(n[4*i : 4*i+8])
		w := window % 16
		b := (window >> 4) % 64
		positions[i] = uint(w*64 + b)
	}
	return positions
}

// maybeContains reports the Bloom filter's verdict: false means
// definitely absent; true means "ask the authoritative set".
func (s *Set) maybeContains(n [hashing.Size]byte) bool {
	for _, pos := range filterBits(n) {
		if !s.filter.Test(pos) {
			return false
		}
	}
	return true
}

// Contains reports whether n is a member of the authoritative set.
func (s *Set) Contains(n [hashing.Size]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.maybeContains(n) {
		return false
	}
	_, ok := s.used[n]
	return ok
}

// Insert adds n to the authoritative set and sets its Bloom bits. It
// returns true if n was newly inserted, false if it was already
// present. Insert is idempotent: a second call returns false while
// Contains keeps returning true.
func (s *Set) Insert(n [hashing.Size]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.used[n]; ok {
		return false
	}
	s.used[n] = struct{}{}
	for _, pos := range filterBits(n) {
		s.filter.Set(pos)
	}
	return true
}

// Size returns the number of nullifiers recorded in the authoritative
// set.
func (s *Set) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.used)
}
