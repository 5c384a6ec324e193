// Package attestation is a reference implementation of the "trusted
// execution attestation provider" collaborator the core treats as
// opaque bytes. The core never inspects an attestation blob's
// structure; this package exists so local runs and tests have
// something concrete behind that interface.
//
// It is adapted from an ECDSA secp256k1 signer originally built for a
// different chain's signature-verification precompile; it is NOT a
// real TEE quote.
package attestation

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/secp256k1"

	"github.com/noah-privacy/shielded-core/internal/hashing"
)

// OperationType tags which orchestrator operation a report attests to.
type OperationType byte

const (
	OpDeposit         OperationType = 0
	OpWithdrawal      OperationType = 1
	OpComplianceCheck OperationType = 2
	OpASPUpdate       OperationType = 3
)

// Signer produces signed attestation reports over
// SHA-256(operation-type || commitment-hash || timestamp).
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	id         uint
}

// NewSigner builds a Signer from a secp256k1 private key.
func NewSigner(privateKey *ecdsa.PrivateKey, id uint) *Signer {
	return &Signer{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		id:         id,
	}
}

// NewSignerFromHex builds a Signer from a hex-encoded private key.
func NewSignerFromHex(privateKeyHex string, id uint) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("attestation: invalid private key: %w", err)
	}
	return NewSigner(privateKey, id), nil
}

// GenerateKeyPair generates a new secp256k1 key pair for local runs and
// tests.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(secp256k1.S256(), rand.Reader)
}

// ID returns the signer's stable numeric identity.
func (s *Signer) ID() uint { return s.id }

// PublicKey returns the compressed public key bytes.
func (s *Signer) PublicKey() []byte {
	return crypto.CompressPubkey(s.publicKey)
}

// reportHash computes SHA-256(operation-type || commitment-hash ||
// timestamp), the message an attestation report signs.
func reportHash(op OperationType, commitmentHash [hashing.Size]byte, timestamp uint64) [hashing.Size]byte {
	h := sha256.New()
	h.Write([]byte{byte(op)})
	h.Write(commitmentHash[:])
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], timestamp)
	h.Write(ts[:])
	var out [hashing.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Report is a signed attestation over one orchestrator operation. The
// core only ever treats this as an opaque blob (via Encode); the
// structured fields exist for this package's own tests and for callers
// that want to inspect a locally produced report.
type Report struct {
	Operation      OperationType
	CommitmentHash [hashing.Size]byte
	Timestamp      uint64
	Signature      []byte // 64 bytes: r(32) || low-s(32)
}

// Sign produces a Report over (op, commitmentHash, timestamp), using
// low-S normalization so the signature is canonical regardless of
// which half of the curve order the raw ECDSA signature landed in.
func (s *Signer) Sign(op OperationType, commitmentHash [hashing.Size]byte, timestamp uint64) (Report, error) {
	msg := reportHash(op, commitmentHash, timestamp)

	sig, err := crypto.Sign(msg[:], s.privateKey)
	if err != nil {
		return Report{}, fmt.Errorf("attestation: sign: %w", err)
	}

	r := sig[:32]
	sVal := new(big.Int).SetBytes(sig[32:64])

	curveOrder := secp256k1.S256().N
	halfOrder := new(big.Int).Div(curveOrder, big.NewInt(2))
	if sVal.Cmp(halfOrder) > 0 {
		sVal = new(big.Int).Sub(curveOrder, sVal)
	}
	sBytes := make([]byte, 32)
	sVal.FillBytes(sBytes)

	signature := append(append([]byte{}, r...), sBytes...)

	return Report{
		Operation:      op,
		CommitmentHash: commitmentHash,
		Timestamp:      timestamp,
		Signature:      signature,
	}, nil
}

// Encode serializes a Report into the opaque attestation-blob bytes the
// orchestrator stores alongside an AuditEntry.
func (r Report) Encode() []byte {
	out := make([]byte, 0, 1+hashing.Size+8+len(r.Signature))
	out = append(out, byte(r.Operation))
	out = append(out, r.CommitmentHash[:]...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], r.Timestamp)
	out = append(out, ts[:]...)
	out = append(out, r.Signature...)
	return out
}

// Verify checks report against the given compressed public key.
func Verify(report Report, publicKey []byte) (bool, error) {
	msg := reportHash(report.Operation, report.CommitmentHash, report.Timestamp)

	pub, err := crypto.DecompressPubkey(publicKey)
	if err != nil {
		return false, fmt.Errorf("attestation: invalid public key: %w", err)
	}
	if len(report.Signature) != 64 {
		return false, fmt.Errorf("attestation: invalid signature length %d", len(report.Signature))
	}

	r := new(big.Int).SetBytes(report.Signature[:32])
	sVal := new(big.Int).SetBytes(report.Signature[32:64])
	return ecdsa.Verify(pub, msg[:], r, sVal), nil
}
