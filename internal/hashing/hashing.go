// Package hashing implements the three named compression functions the
// rest of the core builds on: H-pair for Merkle compression, H-commit for
// entry-level hashing, and H-null for nullifier derivation.
package hashing

import (
	"crypto/sha256"
)

// Size is the width of every hash output in this package.
const Size = 32

// Zero is the all-zero leaf/root value used to pad unbalanced trees.
var Zero [Size]byte

// Pair computes H-pair(l, r) = SHA-256(l || r), the compression function
// used throughout the deposit tree, the ASP tree, and the audit entry tree.
// The left operand is always the lower-index sibling.
func Pair(l, r [Size]byte) [Size]byte {
	h := sha256.New()
	h.Write(l[:])
	h.Write(r[:])
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Commit computes H-commit(c) = SHA-256(c), the entry-level hash used when
// recording a commitment in the audit journal.
func Commit(c [Size]byte) [Size]byte {
	h := sha256.Sum256(c[:])
	return h
}

// Null computes H-null(c) = SHA-256("nullifier" || c), the anchor a
// withdrawal's nullifier is bound to. Only the low 16 bytes of the result
// are ever compared against a nullifier's low 16 bytes (see package
// withdrawal); the remaining bytes exist only so the anchor itself is a
// full 32-byte hash.
func Null(c [Size]byte) [Size]byte {
	h := sha256.New()
	h.Write([]byte("nullifier"))
	h.Write(c[:])
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Hasher abstracts the compression function used by a Merkle tree so that
// an alternative field-friendly hash (e.g. MiMC, see package circuitplugin)
// can be substituted without touching tree logic. The default Hasher used
// everywhere in this repo is SHA256Hasher; swapping it is a protocol
// version bump and must never be done silently.
type Hasher interface {
	Pair(l, r [Size]byte) [Size]byte
}

// SHA256Hasher is the default Hasher used throughout this repo.
type SHA256Hasher struct{}

// Pair implements Hasher.
func (SHA256Hasher) Pair(l, r [Size]byte) [Size]byte { return Pair(l, r) }
