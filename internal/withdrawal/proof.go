// Package withdrawal implements the withdrawal proof generator and
// verifier: the component that binds a commitment/nullifier/recipient/
// amount tuple to a deposit root and emits the 256-byte proof envelope
// external settlement consumes.
package withdrawal

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
)

// Error kinds. NotAuthorized, InsufficientFunds,
// DecryptionError, AttestationFailed, and StateCorrupted are not raised by
// this package directly — they belong to the orchestrator's wider request
// handling — but are declared here so the whole Withdrawal error taxonomy
// lives in one place.
var (
	ErrNotAuthorized        = errors.New("withdrawal: not authorized")
	ErrInvalidProof         = errors.New("withdrawal: invalid proof")
	ErrNullifierAlreadyUsed = errors.New("withdrawal: nullifier already used")
	ErrInsufficientFunds    = errors.New("withdrawal: insufficient funds")
	ErrInvalidMerkleProof   = errors.New("withdrawal: invalid merkle proof")
	ErrDecryptionError      = errors.New("withdrawal: decryption error")
	ErrAttestationFailed    = errors.New("withdrawal: attestation failed")
	ErrInvalidRequest       = errors.New("withdrawal: invalid request")
	ErrStateCorrupted       = errors.New("withdrawal: state corrupted")
)

// EnvelopeSize is the fixed size of the withdrawal proof envelope.
const EnvelopeSize = 256

const (
	envelopeVersion    = 0x01
	proofHashOffset    = 1
	depositRootOffset  = 33
	nullifierOffset    = 65
	paddingOffset      = 97
)

// State is a stage in the single-withdrawal state machine:
//
//	NEW → VALIDATED → MEMBERSHIP_OK → NULLIFIER_BOUND → PROOF_EMITTED → AUDIT_LOGGED → COMPLETED
//
// This package drives a request up to PROOF_EMITTED; AUDIT_LOGGED and
// COMPLETED are reached by the orchestrator once the audit journal append
// and nullifier-set insertion also succeed. Any transition failing aborts
// the request with no persisted state change.
type State int

const (
	StateNew State = iota
	StateValidated
	StateMembershipOK
	StateNullifierBound
	StateProofEmitted
	StateAuditLogged
	StateCompleted
)

// Request is a withdrawal request's public fields.
type Request struct {
	Commitment [hashing.Size]byte
	Nullifier  [hashing.Size]byte
	Recipient  [20]byte
	Amount     *big.Int
	Path       [][hashing.Size]byte
	Indices    []bool
}

// Envelope is the 256-byte withdrawal proof envelope.
type Envelope [EnvelopeSize]byte

// Version returns the envelope's version byte.
func (e Envelope) Version() byte { return e[0] }

// ProofHash returns bytes 1..33.
func (e Envelope) ProofHash() [hashing.Size]byte {
	var out [hashing.Size]byte
	copy(out[:], e[proofHashOffset:depositRootOffset])
	return out
}

// DepositRoot returns bytes 33..65.
func (e Envelope) DepositRoot() [hashing.Size]byte {
	var out [hashing.Size]byte
	copy(out[:], e[depositRootOffset:nullifierOffset])
	return out
}

// Nullifier returns bytes 65..97.
func (e Envelope) Nullifier() [hashing.Size]byte {
	var out [hashing.Size]byte
	copy(out[:], e[nullifierOffset:paddingOffset])
	return out
}

// amountLE16 encodes amount as a 16-byte little-endian unsigned integer
// (u128). Callers are expected to have already validated 0 < amount <
// 2^128 via validateRequest.
func amountLE16(amount *big.Int) [16]byte {
	var out [16]byte
	b := amount.Bytes() // big-endian, no leading zero byte
	for i := 0; i < len(b) && i < 16; i++ {
		out[i] = b[len(b)-1-i]
	}
	return out
}

// computeProofHash implements SHA-256(commitment ‖ nullifier ‖ recipient
// ‖ amount-LE16 ‖ deposit-root).
func computeProofHash(commitment, nullifier [hashing.Size]byte, recipient [20]byte, amount *big.Int, depositRoot [hashing.Size]byte) [hashing.Size]byte {
	h := sha256.New()
	h.Write(commitment[:])
	h.Write(nullifier[:])
	h.Write(recipient[:])
	le := amountLE16(amount)
	h.Write(le[:])
	h.Write(depositRoot[:])
	var out [hashing.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// bindNullifier derives the anchor H-null(commitment) and returns its
// low 16 bytes, which must equal the low 16 bytes of the request's
// nullifier.
//
// Only the low 16 bytes are bound to the commitment; the upper 16 are
// user-chosen randomness. Whether this partial binding is intentional
// domain separation or an oversight is unclear, so it is preserved
// exactly rather than "fixed" to bind the full 32 bytes.
func bindNullifier(commitment [hashing.Size]byte) [16]byte {
	anchor := hashing.Null(commitment)
	var low [16]byte
	copy(low[:], anchor[:16])
	return low
}

func validateRequest(req Request) error {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return ErrInvalidRequest
	}
	maxU128 := new(big.Int).Lsh(big.NewInt(1), 128)
	if req.Amount.Cmp(maxU128) >= 0 {
		return ErrInvalidRequest
	}
	if len(req.Path) != len(req.Indices) {
		return ErrInvalidRequest
	}
	if len(req.Path) == 0 {
		return ErrInvalidRequest
	}
	return nil
}

// Outcome is the result of running a withdrawal request through the
// proof generator, including the state machine stage actually reached.
type Outcome struct {
	State    State
	Envelope Envelope
}

// GenerateProof runs the withdrawal request through three ordered
// checks — request validity, membership, nullifier binding — and, on
// success, emits the proof envelope. Nullifier-reuse is not checked
// here: it requires the NullifierSet and is the orchestrator's
// responsibility, since the orchestrator is the only component allowed
// to mutate shared state across subsystems.
func GenerateProof(req Request, depositRoot [hashing.Size]byte) (Outcome, error) {
	return GenerateProofWithHasher(req, depositRoot, hashing.SHA256Hasher{})
}

// GenerateProofWithHasher is GenerateProof parameterized over the
// Merkle compression function, so an alternative Hasher can be
// exercised without duplicating this logic.
func GenerateProofWithHasher(req Request, depositRoot [hashing.Size]byte, hasher hashing.Hasher) (Outcome, error) {
	if err := validateRequest(req); err != nil {
		return Outcome{State: StateNew}, err
	}

	folded := merkle.Fold(hasher, req.Commitment, req.Path, req.Indices)
	if folded != depositRoot {
		return Outcome{State: StateValidated}, ErrInvalidMerkleProof
	}

	want := bindNullifier(req.Commitment)
	var got [16]byte
	copy(got[:], req.Nullifier[:16])
	if want != got {
		return Outcome{State: StateMembershipOK}, ErrInvalidProof
	}

	proofHash := computeProofHash(req.Commitment, req.Nullifier, req.Recipient, req.Amount, depositRoot)

	var env Envelope
	env[0] = envelopeVersion
	copy(env[proofHashOffset:depositRootOffset], proofHash[:])
	copy(env[depositRootOffset:nullifierOffset], depositRoot[:])
	copy(env[nullifierOffset:paddingOffset], req.Nullifier[:])
	// env[paddingOffset:] is already zero.

	return Outcome{State: StateProofEmitted, Envelope: env}, nil
}

// Batch queues withdrawal requests up to a fixed capacity so an
// orchestrator can run them through GenerateProof in one pass instead
// of one request at a time.
type Batch struct {
	requests []Request
	maxSize  int
}

// NewBatch creates an empty batch with the given capacity.
func NewBatch(maxSize int) *Batch {
	return &Batch{maxSize: maxSize}
}

// Add stages req. It reports true if the batch was already full and
// req was NOT added; the caller should flush the batch and retry.
func (b *Batch) Add(req Request) bool {
	if len(b.requests) >= b.maxSize {
		return true
	}
	b.requests = append(b.requests, req)
	return false
}

// PendingCount reports how many requests are currently staged.
func (b *Batch) PendingCount() int {
	return len(b.requests)
}

// IsFull reports whether the batch has reached its capacity.
func (b *Batch) IsFull() bool {
	return len(b.requests) >= b.maxSize
}

// Requests returns the currently staged requests.
func (b *Batch) Requests() []Request {
	return b.requests
}

// Clear drops every staged request.
func (b *Batch) Clear() {
	b.requests = nil
}

// VerifyProof is the symmetric verifier: it recomputes the
// proof-hash from the provided public inputs and checks the version
// byte and the embedded deposit-root/nullifier fields. It returns false,
// not an error, on any mismatch.
func VerifyProof(env Envelope, commitment, nullifier [hashing.Size]byte, recipient [20]byte, amount *big.Int, depositRoot [hashing.Size]byte) bool {
	if env.Version() != envelopeVersion {
		return false
	}
	if env.DepositRoot() != depositRoot {
		return false
	}
	if env.Nullifier() != nullifier {
		return false
	}
	want := computeProofHash(commitment, nullifier, recipient, amount, depositRoot)
	return env.ProofHash() == want
}
