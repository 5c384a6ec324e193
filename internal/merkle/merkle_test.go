package merkle_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/merkle"
)

func leaf(b byte) [hashing.Size]byte {
	var v [hashing.Size]byte
	for i := range v {
		v[i] = b
	}
	return v
}

// Deposit tree basic.
func TestDepositTreeBasic(t *testing.T) {
	tr := merkle.New(merkle.DefaultDepth)

	c1, c2, c3 := leaf(0x01), leaf(0x02), leaf(0x03)
	require.NoError(t, tr.Insert(0, c1))
	require.NoError(t, tr.Insert(1, c2))
	require.NoError(t, tr.Insert(2, c3))

	assert.EqualValues(t, 3, tr.Size())
	assert.NotEqual(t, [hashing.Size]byte{}, tr.Root())
}

// Merkle proof roundtrip at depth 20.
func TestProofRoundtripAtDepth20(t *testing.T) {
	tr := merkle.New(merkle.DefaultDepth)

	c := sha256.Sum256([]byte("deposit"))
	require.NoError(t, tr.Insert(1000, c))

	proof, err := tr.GenerateProof(1000)
	require.NoError(t, err)
	assert.Len(t, proof.Path, 20)
	assert.Len(t, proof.Indices, 20)

	assert.True(t, tr.VerifyProof(c, proof))

	var zero [hashing.Size]byte
	assert.False(t, tr.VerifyProof(zero, proof))
}

// insert then generate_proof then verify_proof succeeds for every
// inserted leaf.
func TestInsertGenerateVerifyRoundtrip(t *testing.T) {
	tr := merkle.New(8)
	leaves := make(map[uint64][hashing.Size]byte)
	for i := uint64(0); i < 20; i++ {
		v := sha256.Sum256([]byte{byte(i)})
		leaves[i] = v
		require.NoError(t, tr.Insert(i, v))
	}
	for idx, v := range leaves {
		proof, err := tr.GenerateProof(idx)
		require.NoError(t, err)
		assert.True(t, tr.VerifyProof(v, proof), "index %d", idx)
	}
}

// a proof captured against a stale root must fail verification once
// the tree has moved on, even though the fold itself is still internally
// consistent.
func TestStaleRootRejected(t *testing.T) {
	tr := merkle.New(8)
	v0 := sha256.Sum256([]byte("a"))
	require.NoError(t, tr.Insert(0, v0))

	staleProof, err := tr.GenerateProof(0)
	require.NoError(t, err)
	assert.True(t, tr.VerifyProof(v0, staleProof))

	v1 := sha256.Sum256([]byte("b"))
	require.NoError(t, tr.Insert(1, v1))

	// The fold is still internally consistent against the captured
	// root, but that root is no longer the tree's current root.
	folded := merkle.Fold(hashing.SHA256Hasher{}, v0, staleProof.Path, staleProof.Indices)
	assert.Equal(t, staleProof.Root, folded)
	assert.NotEqual(t, staleProof.Root, tr.Root())
	assert.False(t, tr.VerifyProof(v0, staleProof))
}

func TestEmptyTreeRootIsZero(t *testing.T) {
	tr := merkle.New(4)
	assert.Equal(t, [hashing.Size]byte{}, tr.Root())
}

func TestInsertOutOfRange(t *testing.T) {
	tr := merkle.New(2)
	err := tr.Insert(4, leaf(0x01))
	assert.ErrorIs(t, err, merkle.ErrIndexOutOfRange)
}

func TestAppendAssignsSequentialIndices(t *testing.T) {
	tr := merkle.New(4)
	i0, err := tr.Append(leaf(0x01))
	require.NoError(t, err)
	i1, err := tr.Append(leaf(0x02))
	require.NoError(t, err)
	assert.EqualValues(t, 0, i0)
	assert.EqualValues(t, 1, i1)
}

func TestReinsertSameIndexDoesNotDoubleCountSize(t *testing.T) {
	tr := merkle.New(4)
	require.NoError(t, tr.Insert(0, leaf(0x01)))
	require.NoError(t, tr.Insert(0, leaf(0x02)))
	assert.EqualValues(t, 1, tr.Size())
}
