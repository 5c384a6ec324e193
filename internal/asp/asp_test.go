package asp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-privacy/shielded-core/internal/asp"
	"github.com/noah-privacy/shielded-core/internal/hashing"
)

func fill(b byte) [hashing.Size]byte {
	var v [hashing.Size]byte
	for i := range v {
		v[i] = b
	}
	return v
}

func newSet(t *testing.T) *asp.Set {
	t.Helper()
	return asp.New(asp.Config{Name: "test", Policy: asp.PolicyPermissive, MaxSetSize: 10})
}

// is_approved true for added commitments, false for an
// unrelated one.
func TestIsApprovedBasic(t *testing.T) {
	set := newSet(t)
	c1, c2, c3 := fill(0x01), fill(0x02), fill(0x03)

	for _, c := range []([hashing.Size]byte){c1, c2, c3} {
		_, err := set.AddCommitment(c)
		require.NoError(t, err)
	}

	assert.True(t, set.IsApproved(c1))
	assert.True(t, set.IsApproved(c2))
	assert.True(t, set.IsApproved(c3))
	assert.False(t, set.IsApproved(fill(0x04)))
}

// Exclusion blocks add.
func TestExclusionBlocksAdd(t *testing.T) {
	set := newSet(t)
	excluded := fill(0xBA)

	require.NoError(t, set.SetExclusionList(asp.ExclusionList{
		Addresses: [][hashing.Size]byte{excluded},
	}))

	_, err := set.AddCommitment(excluded)
	assert.ErrorIs(t, err, asp.ErrCommitmentExcluded)
	assert.Equal(t, 0, set.Size())
}

func TestCapacityExceeded(t *testing.T) {
	set := asp.New(asp.Config{Name: "tiny", MaxSetSize: 1})
	_, err := set.AddCommitment(fill(0x01))
	require.NoError(t, err)
	_, err = set.AddCommitment(fill(0x02))
	assert.ErrorIs(t, err, asp.ErrCapacityExceeded)
}

// is_approved true iff added and not subsequently excluded/removed.
func TestIsApprovedFalseAfterRemoval(t *testing.T) {
	set := newSet(t)
	c := fill(0x05)
	_, err := set.AddCommitment(c)
	require.NoError(t, err)
	assert.True(t, set.IsApproved(c))

	removed := set.RemoveCommitment(c)
	assert.True(t, removed)
	assert.False(t, set.IsApproved(c))
}

func TestGenerateProofRoundtrip(t *testing.T) {
	set := newSet(t)
	c := fill(0x07)
	_, err := set.AddCommitment(c)
	require.NoError(t, err)

	proof, err := set.GenerateProof(c)
	require.NoError(t, err)
	assert.True(t, set.VerifyProof(c, proof))
}

func TestGenerateProofNotFound(t *testing.T) {
	set := newSet(t)
	_, err := set.GenerateProof(fill(0x09))
	assert.ErrorIs(t, err, asp.ErrNotFound)
}

func TestGenerateProofExcluded(t *testing.T) {
	set := newSet(t)
	c := fill(0x0A)
	_, err := set.AddCommitment(c)
	require.NoError(t, err)

	require.NoError(t, set.SetExclusionList(asp.ExclusionList{
		Addresses: [][hashing.Size]byte{c},
	}))

	_, err = set.GenerateProof(c)
	assert.ErrorIs(t, err, asp.ErrExcluded)
}

func TestSetExclusionListRejectsRegex(t *testing.T) {
	set := newSet(t)
	err := set.SetExclusionList(asp.ExclusionList{
		Patterns: []asp.Pattern{{Kind: asp.PatternRegex, Bytes: []byte("^0xBA")}},
	})
	assert.ErrorIs(t, err, asp.ErrRegexUnsupported)
}

func TestPrefixExclusion(t *testing.T) {
	set := newSet(t)
	require.NoError(t, set.SetExclusionList(asp.ExclusionList{
		Patterns: []asp.Pattern{{Kind: asp.PatternPrefix, Bytes: []byte{0xBA, 0xBA}}},
	}))

	blocked := fill(0xBA)
	_, err := set.AddCommitment(blocked)
	assert.ErrorIs(t, err, asp.ErrCommitmentExcluded)

	allowed := fill(0x11)
	_, err = set.AddCommitment(allowed)
	assert.NoError(t, err)
}

func TestRebuildPreservesRemainingProofs(t *testing.T) {
	set := newSet(t)
	c1, c2 := fill(0x20), fill(0x21)
	_, err := set.AddCommitment(c1)
	require.NoError(t, err)
	_, err = set.AddCommitment(c2)
	require.NoError(t, err)

	require.True(t, set.RemoveCommitment(c1))

	proof, err := set.GenerateProof(c2)
	require.NoError(t, err)
	assert.True(t, set.VerifyProof(c2, proof))
}
