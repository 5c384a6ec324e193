// Package asp implements the Association Set Provider: the maintainer of
// the approved-set accumulator that withdrawal and compliance proofs are
// checked against.
package asp

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
)

var (
	// ErrCommitmentExcluded is returned by AddCommitment when the
	// commitment matches the exclusion predicate.
	ErrCommitmentExcluded = errors.New("asp: commitment excluded")
	// ErrCapacityExceeded is returned by AddCommitment when adding would
	// exceed the set's configured max size.
	ErrCapacityExceeded = errors.New("asp: capacity exceeded")
	// ErrNotFound is returned by GenerateProof when the commitment is
	// not a member of the approved set.
	ErrNotFound = errors.New("asp: commitment not found")
	// ErrExcluded is returned by GenerateProof when the commitment
	// matches the exclusion predicate, even if it was once approved.
	ErrExcluded = errors.New("asp: commitment excluded")
	// ErrRegexUnsupported is returned by SetExclusionList when the
	// supplied list carries a Regex-kind pattern. Regex exclusion
	// patterns are reserved by the wire format but this core refuses to
	// load a config it cannot faithfully enforce, rather than silently
	// treating the pattern as non-matching.
	ErrRegexUnsupported = errors.New("asp: regex exclusion patterns are not supported, refusing config")
)

// Policy is advisory metadata; it does not change is_approved/add_commitment
// semantics, which are always Permissive in this core.
type Policy string

const (
	PolicyPermissive Policy = "permissive"
	PolicyRestrictive Policy = "restrictive"
)

// CustomPolicy builds a Policy value for Policy ∈ Custom(string).
func CustomPolicy(name string) Policy { return Policy("custom:" + name) }

// Config is the ASP's static configuration.
type Config struct {
	Name                 string
	Policy               Policy
	MaxSetSize           int
	UpdateFrequencySecs  uint64
}

// PatternKind distinguishes the exclusion pattern forms an
// ExclusionList entry can take.
type PatternKind int

const (
	PatternExact PatternKind = iota
	PatternPrefix
	PatternRegex // reserved; rejected at SetExclusionList time
)

// Pattern is one exclusion-list entry beyond the flat address set.
type Pattern struct {
	Kind  PatternKind
	Bytes []byte
}

// ExclusionList is the deny-list consulted on every add and every proof
// emission.
type ExclusionList struct {
	Addresses [][hashing.Size]byte
	Patterns  []Pattern
}

func (l ExclusionList) matches(c [hashing.Size]byte) bool {
	for _, a := range l.Addresses {
		if a == c {
			return true
		}
	}
	for _, p := range l.Patterns {
		switch p.Kind {
		case PatternExact:
			if bytes.Equal(p.Bytes, c[:]) {
				return true
			}
		case PatternPrefix:
			if bytes.HasPrefix(c[:], p.Bytes) {
				return true
			}
		case PatternRegex:
			// Reserved: never matches. Configs carrying a Regex
			// pattern are rejected before they reach here.
		}
	}
	return false
}

func validateExclusionList(l ExclusionList) error {
	for _, p := range l.Patterns {
		if p.Kind == PatternRegex {
			return ErrRegexUnsupported
		}
	}
	return nil
}

// Set is an Association Set Provider: an approved commitment set plus a
// Merkle tree mirroring membership.
type Set struct {
	mu sync.RWMutex

	config    Config
	exclusion ExclusionList

	approved map[[hashing.Size]byte]struct{}
	indices  map[[hashing.Size]byte]uint64
	order    []indexedCommitment // insertion order, for rebuild

	tree *merkle.Tree
}

type indexedCommitment struct {
	commitment [hashing.Size]byte
	index      uint64
}

// New creates an empty ASP Set with the given config and a fresh
// depth-20 membership tree.
func New(cfg Config) *Set {
	return &Set{
		config:   cfg,
		approved: make(map[[hashing.Size]byte]struct{}),
		indices:  make(map[[hashing.Size]byte]uint64),
		tree:     merkle.New(merkle.DefaultDepth),
	}
}

// Root returns the current membership tree root.
func (s *Set) Root() [hashing.Size]byte {
	return s.tree.Root()
}

// Size returns the number of currently approved commitments.
func (s *Set) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.approved)
}

// AddCommitment inserts c into the approved set at the next index,
// appends it to the membership tree, and returns the assigned index.
// Adding a commitment that is already approved returns its existing
// index.
func (s *Set) AddCommitment(c [hashing.Size]byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exclusion.matches(c) {
		return 0, ErrCommitmentExcluded
	}
	if s.config.MaxSetSize > 0 && len(s.approved) >= s.config.MaxSetSize {
		return 0, ErrCapacityExceeded
	}
	if _, ok := s.approved[c]; ok {
		return s.indices[c], nil
	}

	index, err := s.tree.Append(c)
	if err != nil {
		return 0, fmt.Errorf("asp: append to membership tree: %w", err)
	}
	s.approved[c] = struct{}{}
	s.indices[c] = index
	s.order = append(s.order, indexedCommitment{commitment: c, index: index})
	return index, nil
}

// RemoveCommitment removes c from the approved set and rebuilds the
// tree, returning whether c had been a member.
func (s *Set) RemoveCommitment(c [hashing.Size]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.approved[c]; !ok {
		return false
	}
	delete(s.approved, c)
	delete(s.indices, c)
	s.rebuildLocked()
	return true
}

// IsApproved reports c ∈ approved_set ∧ ¬excluded(c).
func (s *Set) IsApproved(c [hashing.Size]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.approved[c]
	return ok && !s.exclusion.matches(c)
}

// GenerateProof returns a membership proof for c, or ErrNotFound /
// ErrExcluded.
func (s *Set) GenerateProof(c [hashing.Size]byte) (merkle.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.exclusion.matches(c) {
		return merkle.Proof{}, ErrExcluded
	}
	index, ok := s.indices[c]
	if !ok {
		return merkle.Proof{}, ErrNotFound
	}
	return s.tree.GenerateProof(index)
}

// VerifyProof applies the identical dual-check algorithm used by the
// deposit tree.
func (s *Set) VerifyProof(c [hashing.Size]byte, proof merkle.Proof) bool {
	return s.tree.VerifyProof(c, proof)
}

// SetExclusionList replaces the exclusion predicate and forces a
// rebuild of the membership tree. A list carrying a Regex pattern is
// rejected rather than silently ignored.
func (s *Set) SetExclusionList(list ExclusionList) error {
	if err := validateExclusionList(list); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exclusion = list
	s.rebuildLocked()
	return nil
}

// rebuildLocked recomputes the membership tree from scratch over the
// commitments still in the approved set, at their original insertion
// indices. Callers must hold s.mu for writing.
func (s *Set) rebuildLocked() {
	fresh := merkle.New(merkle.DefaultDepth)
	var live []indexedCommitment
	for _, ic := range s.order {
		if _, ok := s.approved[ic.commitment]; !ok {
			continue
		}
		_ = fresh.Insert(ic.index, ic.commitment)
		live = append(live, ic)
	}
	s.tree = fresh
	s.order = live
}
