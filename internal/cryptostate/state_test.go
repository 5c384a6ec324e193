package cryptostate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-privacy/shielded-core/internal/cryptostate"
	"github.com/noah-privacy/shielded-core/internal/hashing"
)

// Encrypt then decrypt of any EncryptedState returns a struct with
// identical fields.
func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := cryptostate.DeriveContractKey()
	s := cryptostate.State{
		ContractKey:     key,
		StateVersion:    3,
		CommitmentCount: 42,
		LastUpdate:      1_700_000_000,
	}

	blob := cryptostate.Encrypt(s, key)
	assert.Equal(t, cryptostate.Magic[:], blob[:4])

	got, err := cryptostate.Decrypt(blob, key)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecryptRejectsBadMagic(t *testing.T) {
	key := cryptostate.DeriveContractKey()
	blob := cryptostate.Encrypt(cryptostate.State{ContractKey: key}, key)
	blob[0] ^= 0xFF

	_, err := cryptostate.Decrypt(blob, key)
	assert.ErrorIs(t, err, cryptostate.ErrDecryptionError)
}

func TestDeriveContractKeyIsStable(t *testing.T) {
	a := cryptostate.DeriveContractKey()
	b := cryptostate.DeriveContractKey()
	assert.Equal(t, a, b)
	assert.NotEqual(t, [hashing.Size]byte{}, a)
}
