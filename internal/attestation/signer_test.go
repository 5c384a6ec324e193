package attestation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-privacy/shielded-core/internal/attestation"
	"github.com/noah-privacy/shielded-core/internal/hashing"
)

func fill(b byte) [hashing.Size]byte {
	var v [hashing.Size]byte
	for i := range v {
		v[i] = b
	}
	return v
}

func TestSignAndVerify(t *testing.T) {
	key, err := attestation.GenerateKeyPair()
	require.NoError(t, err)
	signer := attestation.NewSigner(key, 7)
	assert.EqualValues(t, 7, signer.ID())

	report, err := signer.Sign(attestation.OpWithdrawal, fill(0x01), 1_700_000_000)
	require.NoError(t, err)

	ok, err := attestation.Verify(report, signer.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsTamperedReport(t *testing.T) {
	key, err := attestation.GenerateKeyPair()
	require.NoError(t, err)
	signer := attestation.NewSigner(key, 1)

	report, err := signer.Sign(attestation.OpDeposit, fill(0x02), 1)
	require.NoError(t, err)

	report.CommitmentHash = fill(0x03)
	ok, err := attestation.Verify(report, signer.PublicKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncodeIncludesOperationAndTimestamp(t *testing.T) {
	key, err := attestation.GenerateKeyPair()
	require.NoError(t, err)
	signer := attestation.NewSigner(key, 1)

	report, err := signer.Sign(attestation.OpComplianceCheck, fill(0x04), 42)
	require.NoError(t, err)

	blob := report.Encode()
	assert.Equal(t, byte(attestation.OpComplianceCheck), blob[0])
	assert.Equal(t, fill(0x04), [hashing.Size]byte(blob[1:33]))
	assert.Equal(t, []byte{42, 0, 0, 0, 0, 0, 0, 0}, blob[33:41]) // timestamp, little-endian
}
