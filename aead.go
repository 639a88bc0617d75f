// aead.go: AEAD algorithm selection over counter nonces.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the key size in bytes of every supported AEAD algorithm.
const KeySize = 32

// Algorithm identifies an AEAD construction.
type Algorithm int

const (
	// AES256GCM is AES-256 in Galois/Counter Mode (12-byte nonce, 16-byte tag).
	AES256GCM Algorithm = iota + 1

	// ChaCha20Poly1305 is the RFC 8439 construction (12-byte nonce, 16-byte tag).
	ChaCha20Poly1305
)

var supportedAlgorithms = []Algorithm{AES256GCM, ChaCha20Poly1305}

// Public standard errors for AEAD operations, usable with errors.Is().
var (
	// ErrInvalidKeySize is returned when the provided key is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrUnsupportedAlgorithm is returned for an Algorithm value that is not defined.
	ErrUnsupportedAlgorithm = errors.New("crypto: unsupported algorithm")

	// ErrInvalidNonceSize is returned when a Nonce does not have the algorithm's nonce size.
	ErrInvalidNonceSize = errors.New("crypto: invalid nonce size")

	// ErrCipherInit is returned when the underlying cipher cannot be created.
	ErrCipherInit = errors.New("crypto: cipher initialization error")

	// ErrDecrypt is returned when authentication fails.
	ErrDecrypt = errors.New("crypto: decryption error")
)

// Error codes for rich error handling
const (
	ErrCodeInvalidKey     = "CRYPTO_INVALID_KEY"
	ErrCodeAlgorithm      = "CRYPTO_UNSUPPORTED_ALGORITHM"
	ErrCodeInvalidNonce   = "CRYPTO_INVALID_NONCE"
	ErrCodeCipherInit     = "CRYPTO_CIPHER_INIT"
	ErrCodeDecrypt        = "CRYPTO_DECRYPT"
	ErrCodeNonceExhausted = "CRYPTO_NONCE_EXHAUSTED"
	ErrCodeNonceReplay    = "CRYPTO_NONCE_REPLAY"
)

// String returns the conventional name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AES256GCM:
		return "AES-256-GCM"
	case ChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

func (a Algorithm) valid() bool {
	return a == AES256GCM || a == ChaCha20Poly1305
}

// KeySize returns the key size in bytes, or 0 for an unsupported algorithm.
func (a Algorithm) KeySize() int {
	if !a.valid() {
		return 0
	}
	return KeySize
}

// NonceSize returns the nonce size in bytes, or 0 for an unsupported
// algorithm. A Nonce used with a must have exactly this Size().
func (a Algorithm) NonceSize() int {
	if !a.valid() {
		return 0
	}
	return 12
}

// TagSize returns the authentication tag size in bytes, or 0 for an
// unsupported algorithm.
func (a Algorithm) TagSize() int {
	if !a.valid() {
		return 0
	}
	return 16
}

func (a Algorithm) newAEAD(key []byte) (cipher.AEAD, error) {
	switch a {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
		}
		return gcm, nil
	case ChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
		}
		return aead, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// Cipher cache for the one-shot Encrypt and Decrypt calls, so repeated calls
// with the same key skip the key schedule. Sealer and Opener hold their own
// cipher and never touch it. The cache is dropped as a whole once it reaches
// maxCachedCiphers entries.
const maxCachedCiphers = 64

type cipherCacheKey struct {
	alg Algorithm
	sum [sha256.Size]byte
}

var (
	cipherCacheMu sync.RWMutex
	cipherCache   = make(map[cipherCacheKey]cipher.AEAD)
)

// getCachedAEAD returns a cached AEAD for alg and key, creating it if needed.
func (a Algorithm) getCachedAEAD(key []byte) (cipher.AEAD, error) {
	ck := cipherCacheKey{alg: a, sum: sha256.Sum256(key)}

	cipherCacheMu.RLock()
	if aead, exists := cipherCache[ck]; exists {
		cipherCacheMu.RUnlock()
		return aead, nil
	}
	cipherCacheMu.RUnlock()

	aead, err := a.newAEAD(key)
	if err != nil {
		return nil, err
	}

	cipherCacheMu.Lock()
	if len(cipherCache) >= maxCachedCiphers {
		clear(cipherCache)
	}
	cipherCache[ck] = aead
	cipherCacheMu.Unlock()

	return aead, nil
}

// checkKey validates the backend, the algorithm and the key length.
func (a Algorithm) checkKey(key []byte) error {
	if err := Initialize(); err != nil {
		return err
	}
	if !a.valid() {
		richErr := goerrors.New(ErrCodeAlgorithm, fmt.Sprintf("unsupported algorithm %d", int(a)))
		return fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, richErr)
	}
	if len(key) != a.KeySize() {
		richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("invalid key size: must be %d bytes for %s (got %d)", a.KeySize(), a, len(key)))
		return fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}
	return nil
}

func (a Algorithm) checkNonce(nonce Nonce) error {
	if nonce.Size() != a.NonceSize() {
		richErr := goerrors.New(ErrCodeInvalidNonce, fmt.Sprintf("invalid nonce size: must be %d bytes for %s (got %d)", a.NonceSize(), a, nonce.Size()))
		return fmt.Errorf("%w: %w", ErrInvalidNonceSize, richErr)
	}
	return nil
}

// prepare runs the checks shared by Encrypt and Decrypt.
func (a Algorithm) prepare(key []byte, nonce Nonce) (cipher.AEAD, error) {
	if err := a.checkKey(key); err != nil {
		return nil, err
	}
	if err := a.checkNonce(nonce); err != nil {
		return nil, err
	}

	aead, err := a.getCachedAEAD(key)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to get cached cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}
	return aead, nil
}

// ownAEAD builds a cipher that belongs to a single Sealer or Opener.
func (a Algorithm) ownAEAD(key []byte) (cipher.AEAD, error) {
	if err := a.checkKey(key); err != nil {
		return nil, err
	}
	aead, err := a.newAEAD(key)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to create cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}
	return aead, nil
}

// Encrypt seals plaintext under key and nonce, authenticating aad as well.
//
// The nonce's exported bytes (Nonce.CopyTo) are the literal IV. The caller is
// responsible for never reusing a nonce with the same key; Sealer does that
// bookkeeping automatically.
//
// Parameters:
//   - key: KeySize-byte key
//   - nonce: nonce whose Size() equals a.NonceSize()
//   - aad: additional authenticated data, may be nil
//   - plaintext: data to encrypt, may be empty
//
// Returns:
//   - ciphertext followed by the authentication tag
//   - An error if the backend, algorithm, key or nonce is invalid
//
// Example:
//
//	nonce, _ := crypto.NewNonceWithFixedField(fixed, 8)
//	nonce.TryIncrement()
//	ct, err := crypto.ChaCha20Poly1305.Encrypt(key, nonce, nil, []byte("hello"))
func (a Algorithm) Encrypt(key []byte, nonce Nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := a.prepare(key, nonce)
	if err != nil {
		return nil, err
	}
	return sealWith(aead, nonce, aad, plaintext)
}

// Decrypt opens ciphertext sealed by Encrypt with the same key, nonce and aad.
// Authentication failures wrap ErrDecrypt.
func (a Algorithm) Decrypt(key []byte, nonce Nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := a.prepare(key, nonce)
	if err != nil {
		return nil, err
	}
	return openWith(aead, nonce, aad, ciphertext)
}

// sealWith encrypts under nonce, staging the IV in a pooled buffer. The nonce
// size must already match aead.NonceSize().
func sealWith(aead cipher.AEAD, nonce Nonce, aad, plaintext []byte) ([]byte, error) {
	nonceBuffer := getBuffer(nonce.Size())
	defer putBuffer(nonceBuffer)
	iv := (*nonceBuffer)[:nonce.Size()]
	if _, err := nonce.CopyTo(iv); err != nil {
		return nil, err
	}

	return aead.Seal(nil, iv, plaintext, aad), nil // #nosec G407 -- nonce uniqueness is managed by the caller's counter
}

func openWith(aead cipher.AEAD, nonce Nonce, aad, ciphertext []byte) ([]byte, error) {
	nonceBuffer := getBuffer(nonce.Size())
	defer putBuffer(nonceBuffer)
	iv := (*nonceBuffer)[:nonce.Size()]
	if _, err := nonce.CopyTo(iv); err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, aad)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDecrypt, "authentication failed (wrong key, nonce, aad or tampered data)")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}
	return plaintext, nil
}
