// Package compliance implements the compliance (association) proof: the
// envelope asserting that a commitment is simultaneously a leaf of the
// deposit tree and of an ASP's membership tree.
package compliance

import (
	"crypto/sha256"
	"errors"

	"github.com/noah-privacy/shielded-core/internal/hashing"
)

// ErrNotApproved is returned when the commitment is not approved by the
// targeted ASP.
var ErrNotApproved = errors.New("compliance: commitment not approved")

// EnvelopeSize is the fixed size of the compliance proof envelope.
const EnvelopeSize = 97

const envelopeVersion = 0x02

// ApprovalChecker is the minimal surface compliance.GenerateProof needs
// from an Association Set Provider, so this package does not import
// internal/asp directly and stays testable against a stub.
type ApprovalChecker interface {
	IsApproved(c [hashing.Size]byte) bool
	Root() [hashing.Size]byte
}

// Envelope is the 97-byte compliance proof envelope.
type Envelope [EnvelopeSize]byte

// Version returns the envelope's version byte.
func (e Envelope) Version() byte { return e[0] }

// IntegrityHash returns bytes 1..33.
func (e Envelope) IntegrityHash() [hashing.Size]byte {
	var out [hashing.Size]byte
	copy(out[:], e[1:33])
	return out
}

// DepositRoot returns bytes 33..65.
func (e Envelope) DepositRoot() [hashing.Size]byte {
	var out [hashing.Size]byte
	copy(out[:], e[33:65])
	return out
}

// AssociationRoot returns bytes 65..97.
func (e Envelope) AssociationRoot() [hashing.Size]byte {
	var out [hashing.Size]byte
	copy(out[:], e[65:97])
	return out
}

func integrityHash(depositRoot, associationRoot [hashing.Size]byte) [hashing.Size]byte {
	h := sha256.New()
	h.Write(depositRoot[:])
	h.Write(associationRoot[:])
	var out [hashing.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// GenerateProof verifies is_approved(commitment) against asp and, on
// success, emits the 97-byte envelope binding depositRoot and the ASP's
// current root. No additional witness is disclosed beyond the two roots
// and their integrity hash: the separate ZK membership witnesses this
// envelope stands in for are optional, see internal/circuitplugin.
func GenerateProof(aspInstance ApprovalChecker, commitment [hashing.Size]byte, depositRoot [hashing.Size]byte) (Envelope, error) {
	if !aspInstance.IsApproved(commitment) {
		return Envelope{}, ErrNotApproved
	}
	associationRoot := aspInstance.Root()

	var env Envelope
	env[0] = envelopeVersion
	hash := integrityHash(depositRoot, associationRoot)
	copy(env[1:33], hash[:])
	copy(env[33:65], depositRoot[:])
	copy(env[65:97], associationRoot[:])
	return env, nil
}

// VerifyProof recomputes the integrity hash from the embedded roots and
// checks the version byte, returning false (not an error) on mismatch.
func VerifyProof(env Envelope) bool {
	if env.Version() != envelopeVersion {
		return false
	}
	want := integrityHash(env.DepositRoot(), env.AssociationRoot())
	return env.IntegrityHash() == want
}
