package withdrawal_test

import (
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
	"github.com/noah-privacy/shielded-core/internal/withdrawal"
)

func fill(b byte) [hashing.Size]byte {
	var v [hashing.Size]byte
	for i := range v {
		v[i] = b
	}
	return v
}

// buildRequest deposits commitment into a fresh tree at index idx and
// returns a Request with a valid membership path and a nullifier bound
// to the commitment.
func buildRequest(t *testing.T, commitment [hashing.Size]byte, idx uint64, amount int64) (withdrawal.Request, [hashing.Size]byte) {
	t.Helper()
	tr := merkle.New(merkle.DefaultDepth)
	require.NoError(t, tr.Insert(idx, commitment))
	proof, err := tr.GenerateProof(idx)
	require.NoError(t, err)

	anchor := hashing.Null(commitment)
	var nullifier [hashing.Size]byte
	copy(nullifier[:16], anchor[:16])
	copy(nullifier[16:], []byte("userchosenrandom"))

	var recipient [20]byte
	copy(recipient[:], []byte("recipient-address-x"))

	req := withdrawal.Request{
		Commitment: commitment,
		Nullifier:  nullifier,
		Recipient:  recipient,
		Amount:     big.NewInt(amount),
		Path:       proof.Path,
		Indices:    proof.Indices,
	}
	return req, tr.Root()
}

// Withdrawal envelope shape.
func TestWithdrawalEnvelopeShape(t *testing.T) {
	commitment := fill(0x01)
	req, root := buildRequest(t, commitment, 5, 1000)

	out, err := withdrawal.GenerateProof(req, root)
	require.NoError(t, err)
	assert.Equal(t, withdrawal.StateProofEmitted, out.State)

	env := out.Envelope
	assert.Len(t, env, withdrawal.EnvelopeSize)
	assert.EqualValues(t, 0x01, env.Version())
	assert.Equal(t, root, env.DepositRoot())
	assert.Equal(t, req.Nullifier, env.Nullifier())

	h := sha256.New()
	h.Write(req.Commitment[:])
	h.Write(req.Nullifier[:])
	h.Write(req.Recipient[:])
	var le [16]byte
	le[0] = 0xE8
	le[1] = 0x03 // 1000 little-endian
	h.Write(le[:])
	h.Write(root[:])
	var want [hashing.Size]byte
	copy(want[:], h.Sum(nil))
	assert.Equal(t, want, env.ProofHash())
}

func TestVerifyProofSymmetric(t *testing.T) {
	commitment := fill(0x02)
	req, root := buildRequest(t, commitment, 10, 500)

	out, err := withdrawal.GenerateProof(req, root)
	require.NoError(t, err)

	ok := withdrawal.VerifyProof(out.Envelope, req.Commitment, req.Nullifier, req.Recipient, req.Amount, root)
	assert.True(t, ok)

	wrongAmount := big.NewInt(501)
	ok = withdrawal.VerifyProof(out.Envelope, req.Commitment, req.Nullifier, req.Recipient, wrongAmount, root)
	assert.False(t, ok)
}

func TestInvalidMerkleProofRejected(t *testing.T) {
	commitment := fill(0x03)
	req, root := buildRequest(t, commitment, 3, 1)

	// Corrupt the membership path.
	req.Path[0] = fill(0xFF)

	_, err := withdrawal.GenerateProof(req, root)
	assert.ErrorIs(t, err, withdrawal.ErrInvalidMerkleProof)
}

func TestNullifierBindingMismatchRejected(t *testing.T) {
	commitment := fill(0x04)
	req, root := buildRequest(t, commitment, 4, 1)
	req.Nullifier[0] ^= 0xFF // corrupt a bound byte

	_, err := withdrawal.GenerateProof(req, root)
	assert.ErrorIs(t, err, withdrawal.ErrInvalidProof)
}

func TestZeroAmountRejected(t *testing.T) {
	commitment := fill(0x05)
	req, root := buildRequest(t, commitment, 2, 1)
	req.Amount = big.NewInt(0)

	_, err := withdrawal.GenerateProof(req, root)
	assert.ErrorIs(t, err, withdrawal.ErrInvalidRequest)
}

func TestEmptyPathRejected(t *testing.T) {
	commitment := fill(0x06)
	req, root := buildRequest(t, commitment, 1, 1)
	req.Path = nil
	req.Indices = nil

	_, err := withdrawal.GenerateProof(req, root)
	assert.ErrorIs(t, err, withdrawal.ErrInvalidRequest)
}

func TestBatchStaging(t *testing.T) {
	batch := withdrawal.NewBatch(3)
	assert.Equal(t, 0, batch.PendingCount())
	assert.False(t, batch.IsFull())

	req, _ := buildRequest(t, fill(0x07), 0, 1)

	full := batch.Add(req)
	assert.False(t, full)
	assert.Equal(t, 1, batch.PendingCount())
	assert.False(t, batch.IsFull())

	batch.Add(req)
	batch.Add(req)
	assert.Equal(t, 3, batch.PendingCount())
	assert.True(t, batch.IsFull())

	full = batch.Add(req)
	assert.True(t, full)
	assert.Equal(t, 3, batch.PendingCount())

	batch.Clear()
	assert.Equal(t, 0, batch.PendingCount())
	assert.False(t, batch.IsFull())
}
