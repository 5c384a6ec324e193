package nullifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-privacy/shielded-core/internal/hashing"
	"github.com/noah-privacy/shielded-core/internal/nullifier"
)

func fill(b byte) [hashing.Size]byte {
	var v [hashing.Size]byte
	for i := range v {
		v[i] = b
	}
	return v
}

// NullifierSet.insert(n) is idempotent.
func TestInsertIdempotent(t *testing.T) {
	s := nullifier.New()
	n := fill(0x01)

	assert.True(t, s.Insert(n))
	assert.False(t, s.Insert(n))
	assert.True(t, s.Contains(n))
	assert.Equal(t, 1, s.Size())
}

func TestContainsFalseForUnseenNullifier(t *testing.T) {
	s := nullifier.New()
	assert.False(t, s.Contains(fill(0x02)))
}

func TestManyDistinctNullifiersAllTracked(t *testing.T) {
	s := nullifier.New()
	for i := 0; i < 200; i++ {
		n := fill(byte(i))
		assert.True(t, s.Insert(n))
	}
	for i := 0; i < 200; i++ {
		n := fill(byte(i))
		assert.True(t, s.Contains(n))
	}
	assert.Equal(t, 200, s.Size())
}
