// keyutils.go: Key and fixed-field generation, zeroization, and fingerprinting.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
)

// Zeroize securely wipes a byte slice from memory.
//
// This function overwrites all bytes in the slice with zeros to prevent
// sensitive data from remaining in memory after use.
//
// Note: This function modifies the original slice in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GetKeyFingerprint generates a fingerprint for a key (non-cryptographic).
//
// The fingerprint is the first 8 bytes of the SHA-256 of the key, hex encoded.
// It is useful for logging and identifying keys without exposing the actual
// key material.
//
// Returns an empty string if the key is empty.
func GetKeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := sha256.Sum256(key)
	return fmt.Sprintf("%016x", hash[:8])
}

// GenerateKey generates a cryptographically secure random key of KeySize bytes,
// suitable for every supported Algorithm.
//
// Example:
//
//	key, err := crypto.GenerateKey()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer crypto.Zeroize(key)
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, goerrors.Wrap(err, "KEY_GEN_ERROR", "failed to generate key")
	}
	return key, nil
}

// GenerateFixedField generates a random nonce fixed field of size bytes.
//
// A random fixed field lets several senders share one key as long as their
// fixed fields differ; with size 4 the birthday bound is about 2^16 senders.
func GenerateFixedField(size int) ([]byte, error) {
	if size <= 0 || size > NonceMaxSize {
		return nil, goerrors.New("INVALID_FIXED_FIELD_SIZE", fmt.Sprintf("fixed field size must be between 1 and %d", NonceMaxSize))
	}
	field := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, field); err != nil {
		return nil, goerrors.Wrap(err, "FIXED_FIELD_GEN_ERROR", "failed to generate fixed field")
	}
	return field, nil
}

// DeriveFixedField deterministically derives a nonce fixed field of size bytes
// from shared secret material with HKDF-SHA256. Both ends of a session that
// share the secret, salt and info obtain the same fixed field, which makes it
// unnecessary to transmit.
//
// Parameters:
//   - secret: input keying material (must not be empty)
//   - salt: optional salt, may be nil
//   - info: context string binding the field to its use, e.g. "client->server"
//   - size: field size in bytes, between 1 and NonceMaxSize
//
// Example:
//
//	fixed, err := crypto.DeriveFixedField(sessionSecret, nil, []byte("client->server"), 4)
//	sealer, err := crypto.NewSealer(crypto.ChaCha20Poly1305, key, fixed)
func DeriveFixedField(secret, salt, info []byte, size int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, goerrors.New("INVALID_SECRET", "secret cannot be empty")
	}
	if size <= 0 || size > NonceMaxSize {
		return nil, goerrors.New("INVALID_FIXED_FIELD_SIZE", fmt.Sprintf("fixed field size must be between 1 and %d", NonceMaxSize))
	}

	return hkdfSHA256(secret, salt, info, size)
}

// ValidateKey checks that a key has the size required by every supported Algorithm.
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return goerrors.New("INVALID_KEY_SIZE", fmt.Sprintf("key size must be %d bytes, got %d", KeySize, len(key)))
	}
	return nil
}
