// Package cryptostate implements the encrypted contract-local state
// blob: a versioned struct of key material and monotonic counters,
// persisted XOR-encrypted behind a fixed magic header.
package cryptostate

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/noah-privacy/shielded-core/internal/hashing"
)

// ErrDecryptionError is returned when a blob's magic header does not
// match.
var ErrDecryptionError = errors.New("cryptostate: decryption error")

// Magic is the 4-byte header every EncryptedState blob begins with.
var Magic = [4]byte{0xE0, 0x01, 0x00, 0x00}

// canonicalSize is the length of the plaintext canonical encoding:
// contract_key(32) + state_version(4) + commitment_count(8) + last_update(8).
const canonicalSize = hashing.Size + 4 + 8 + 8

// State is the versioned plaintext struct an EncryptedState blob wraps.
type State struct {
	ContractKey     [hashing.Size]byte
	StateVersion    uint32
	CommitmentCount uint64
	LastUpdate      uint64
}

// legacySeed is the placeholder deterministic seed this core derives
// its contract key from. This is explicitly a test-only placeholder;
// production MUST derive the key from sealed enclave storage and
// rotate it per deployment.
const legacySeed = "key_seed_for_testing_only_v1.0.0"

// DeriveContractKey returns the fixed placeholder contract key
// sha256("key_seed_for_testing_only_v1.0.0").
func DeriveContractKey() [hashing.Size]byte {
	return sha256.Sum256([]byte(legacySeed))
}

func canonicalEncode(s State) []byte {
	buf := make([]byte, 0, canonicalSize)
	buf = append(buf, s.ContractKey[:]...)
	var v4 [4]byte
	binary.LittleEndian.PutUint32(v4[:], s.StateVersion)
	buf = append(buf, v4[:]...)
	var c8, u8 [8]byte
	binary.LittleEndian.PutUint64(c8[:], s.CommitmentCount)
	binary.LittleEndian.PutUint64(u8[:], s.LastUpdate)
	buf = append(buf, c8[:]...)
	buf = append(buf, u8[:]...)
	return buf
}

func canonicalDecode(buf []byte) (State, error) {
	if len(buf) != canonicalSize {
		return State{}, ErrDecryptionError
	}
	var s State
	copy(s.ContractKey[:], buf[0:hashing.Size])
	off := hashing.Size
	s.StateVersion = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	s.CommitmentCount = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	s.LastUpdate = binary.LittleEndian.Uint64(buf[off : off+8])
	return s, nil
}

// xorTiled XORs data against key, repeating (tiling) key as needed.
func xorTiled(data []byte, key [hashing.Size]byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// Encrypt serializes s canonically, XORs it against contractKey tiled,
// and prefixes the result with the magic header.
func Encrypt(s State, contractKey [hashing.Size]byte) []byte {
	plain := canonicalEncode(s)
	cipher := xorTiled(plain, contractKey)
	out := make([]byte, 0, len(Magic)+len(cipher))
	out = append(out, Magic[:]...)
	out = append(out, cipher...)
	return out
}

// Decrypt verifies the magic header, strips it, XOR-decodes against
// contractKey, and parses the canonical struct.
func Decrypt(blob []byte, contractKey [hashing.Size]byte) (State, error) {
	if len(blob) < len(Magic) {
		return State{}, ErrDecryptionError
	}
	for i, m := range Magic {
		if blob[i] != m {
			return State{}, ErrDecryptionError
		}
	}
	cipher := blob[len(Magic):]
	plain := xorTiled(cipher, contractKey)
	return canonicalDecode(plain)
}
