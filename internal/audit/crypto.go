package audit

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/noah-privacy/shielded-core/internal/hashing"
)

// ErrAuthFailed is returned by an AEADCipher when the ciphertext does
// not authenticate under the supplied key (wrong key or tampered blob).
var ErrAuthFailed = errors.New("audit: aead authentication failed")

// EntryCipher encrypts and decrypts an AuditEntry's detail bytes under a
// per-entry key. Two implementations exist: XORCipher, the placeholder
// the journal defaults to, and AEADCipher, a ChaCha20-Poly1305
// implementation that can be swapped in without changing the journal's
// test vectors.
type EntryCipher interface {
	Encrypt(key [hashing.Size]byte, plaintext []byte) ([]byte, error)
	Decrypt(key [hashing.Size]byte, ciphertext []byte) ([]byte, error)
}

// XORCipher is a single-pass streaming XOR against the key, tiled to
// the plaintext length. It offers no confidentiality against an
// attacker who can guess plaintext structure and MUST NOT be shipped to
// production.
type XORCipher struct{}

// Encrypt implements EntryCipher.
func (XORCipher) Encrypt(key [hashing.Size]byte, plaintext []byte) ([]byte, error) {
	return xorStream(key, plaintext), nil
}

// Decrypt implements EntryCipher. XOR is its own inverse, and the
// placeholder has no way to detect a wrong key: it always succeeds and
// simply returns the XOR of the input with key.
func (XORCipher) Decrypt(key [hashing.Size]byte, ciphertext []byte) ([]byte, error) {
	return xorStream(key, ciphertext), nil
}

func xorStream(key [hashing.Size]byte, data []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// AEADCipher encrypts entry details with ChaCha20-Poly1305 under a fresh
// random nonce per call, prefixing the nonce to the returned ciphertext.
// It is the concrete replacement for XORCipher once the placeholder is
// retired.
type AEADCipher struct{}

// Encrypt implements EntryCipher.
func (AEADCipher) Encrypt(key [hashing.Size]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("audit: aead cipher init: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("audit: aead nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Decrypt implements EntryCipher.
func (AEADCipher) Decrypt(key [hashing.Size]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("audit: aead cipher init: %w", err)
	}
	if len(ciphertext) < chacha20poly1305.NonceSize {
		return nil, ErrAuthFailed
	}
	nonce, sealed := ciphertext[:chacha20poly1305.NonceSize], ciphertext[chacha20poly1305.NonceSize:]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plain, nil
}
