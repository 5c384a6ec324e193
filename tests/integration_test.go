package tests

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-privacy/shielded-core/internal/api"
	"github.com/noah-privacy/shielded-core/internal/asp"
	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
	"github.com/noah-privacy/shielded-core/internal/orchestrator"
	"github.com/noah-privacy/shielded-core/internal/withdrawal"
)

func fill(b byte) [hashing.Size]byte {
	var v [hashing.Size]byte
	for i := range v {
		v[i] = b
	}
	return v
}

func newCore(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	var tick uint64
	return orchestrator.New(orchestrator.Config{
		DepositDepth: merkle.DefaultDepth,
		Clock: func() uint64 {
			tick++
			return tick
		},
	})
}

func withdrawalRequestFor(t *testing.T, commitment [hashing.Size]byte, idx uint64, amount int64) withdrawal.Request {
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

	return withdrawal.Request{
		Commitment: commitment,
		Nullifier:  nullifier,
		Recipient:  recipient,
		Amount:     big.NewInt(amount),
		Path:       proof.Path,
		Indices:    proof.Indices,
	}
}

// A commitment deposits, generates a compliant withdrawal against the
// deposit tree's current root, and the withdrawal response round-trips
// across the wire encoding the server boundary would actually send.
func TestDepositThenWithdrawEndToEnd(t *testing.T) {
	core := newCore(t)
	commitment := fill(0x01)

	index, depositEntry, err := core.Deposit(commitment, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.EqualValues(t, 0, index)
	assert.NotEqual(t, [hashing.Size]byte{}, depositEntry)

	req := withdrawalRequestFor(t, commitment, index, 1_000_000)
	result, err := core.Withdraw(req)
	require.NoError(t, err)

	resp := api.WithdrawalResponse{
		Success: true,
		Proof:   result.Envelope[:],
	}
	encoded := resp.Encode()
	decoded, err := api.DecodeWithdrawalResponse(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.Success)
	assert.Equal(t, result.Envelope[:], decoded.Proof)
}

// Submitting the same nullifier twice: the first withdrawal succeeds,
// the second is rejected, and the audit journal records exactly one
// withdrawal entry.
func TestDoubleSpendRejected(t *testing.T) {
	core := newCore(t)
	commitment := fill(0x02)

	_, _, err := core.Deposit(commitment, big.NewInt(500))
	require.NoError(t, err)

	req := withdrawalRequestFor(t, commitment, 0, 500)

	_, err = core.Withdraw(req)
	require.NoError(t, err)

	_, err = core.Withdraw(req)
	assert.ErrorIs(t, err, withdrawal.ErrNullifierAlreadyUsed)

	assert.Equal(t, 1, core.NullifierSetSize())
}

// A commitment added to an ASP passes compliance; one that was never
// added is rejected, and removing an approved commitment flips the
// outcome for a subsequent check.
func TestComplianceLifecycle(t *testing.T) {
	core := newCore(t)
	core.RegisterASP("kyc", asp.Config{
		Name:       "kyc",
		Policy:     asp.PolicyPermissive,
		MaxSetSize: 1024,
	})

	approved := fill(0x03)
	_, _, err := core.AddToASP("kyc", approved)
	require.NoError(t, err)

	result, err := core.CheckCompliance("kyc", approved)
	require.NoError(t, err)
	assert.Equal(t, core.DepositRoot(), result.Envelope.DepositRoot())

	notApproved := fill(0x04)
	_, err = core.CheckCompliance("kyc", notApproved)
	assert.Error(t, err)

	_, err = core.RemoveFromASP("kyc", approved)
	require.NoError(t, err)

	_, err = core.CheckCompliance("kyc", approved)
	assert.Error(t, err)
}

// A disclosed entry's re-encrypted bundle carries an inclusion proof
// that verifies against the journal's published root, and the details
// re-encrypted under the regulator key differ from the entry's stored
// ciphertext, since that key differs from the journal's internal
// per-entry encryption key.
func TestSelectiveDisclosure(t *testing.T) {
	core := newCore(t)
	commitment := fill(0x05)

	_, entryID, err := core.Deposit(commitment, big.NewInt(42))
	require.NoError(t, err)

	regulatorKey := fill(0x99)
	bundle, err := core.Journal().Disclose(entryID, regulatorKey)
	require.NoError(t, err)

	assert.Equal(t, entryID, bundle.EntryID)
	assert.NotEmpty(t, bundle.EncryptedForRegulator)

	entry, err := core.Journal().Get(entryID)
	require.NoError(t, err)
	assert.NotEqual(t, entry.EncryptedDetails, bundle.EncryptedForRegulator)
	assert.True(t, core.Journal().VerifyInclusionProof(entry, bundle.InclusionProof))
}
