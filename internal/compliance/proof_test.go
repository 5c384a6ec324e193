package compliance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-privacy/shielded-core/internal/asp"
	"github.com/noah-privacy/shielded-core/internal/compliance"
	"github.com/noah-privacy/shielded-core/internal/hashing"
)

func fill(b byte) [hashing.Size]byte {
	var v [hashing.Size]byte
	for i := range v {
		v[i] = b
	}
	return v
}

func TestGenerateAndVerifyProof(t *testing.T) {
	set := asp.New(asp.Config{Name: "test", MaxSetSize: 10})
	commitment := fill(0x01)
	_, err := set.AddCommitment(commitment)
	require.NoError(t, err)

	depositRoot := fill(0x99)
	env, err := compliance.GenerateProof(set, commitment, depositRoot)
	require.NoError(t, err)

	assert.Len(t, env, compliance.EnvelopeSize)
	assert.EqualValues(t, 0x02, env.Version())
	assert.Equal(t, depositRoot, env.DepositRoot())
	assert.Equal(t, set.Root(), env.AssociationRoot())
	assert.True(t, compliance.VerifyProof(env))
}

func TestGenerateProofNotApproved(t *testing.T) {
	set := asp.New(asp.Config{Name: "test", MaxSetSize: 10})
	_, err := compliance.GenerateProof(set, fill(0x02), fill(0x99))
	assert.ErrorIs(t, err, compliance.ErrNotApproved)
}

func TestVerifyProofRejectsTamperedRoot(t *testing.T) {
	set := asp.New(asp.Config{Name: "test", MaxSetSize: 10})
	commitment := fill(0x03)
	_, err := set.AddCommitment(commitment)
	require.NoError(t, err)

	env, err := compliance.GenerateProof(set, commitment, fill(0x99))
	require.NoError(t, err)

	env[40] ^= 0xFF // tamper with the embedded deposit root
	assert.False(t, compliance.VerifyProof(env))
}
