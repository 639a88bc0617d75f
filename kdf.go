// kdf.go: Derivation of AEAD keys from passwords (Argon2id) and from
// high-entropy secrets (HKDF-SHA256).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Default Argon2id parameters.
const (
	// DefaultTime is the default number of Argon2id passes.
	DefaultTime = 3

	// DefaultMemory is the default Argon2id memory in MB.
	DefaultMemory = 64

	// DefaultThreads is the default Argon2id parallelism.
	DefaultThreads = 4
)

// Error codes for key derivation
const (
	ErrCodeKDFInput = "KDF_INVALID_INPUT"
	ErrCodeKDF      = "KDF_FAILED"
)

// maxHKDFLength is the RFC 5869 output limit for SHA-256.
const maxHKDFLength = 255 * sha256.Size

// KDFParams tunes Argon2id. Zero fields fall back to the defaults.
//
// Example:
//
//	params := &crypto.KDFParams{Time: 4, Memory: 128, Threads: 2}
//	key, err := crypto.DeriveKey(password, salt, params)
type KDFParams struct {
	// Time is the number of passes. If zero, DefaultTime is used.
	Time uint32 `json:"time,omitempty"`

	// Memory is the memory cost in MB. If zero, DefaultMemory is used.
	Memory uint32 `json:"memory,omitempty"`

	// Threads is the degree of parallelism. If zero, DefaultThreads is used.
	Threads uint8 `json:"threads,omitempty"`
}

// FastKDFParams returns low-cost parameters for tests and development
// (Time=1, Memory=32MB, Threads=2).
func FastKDFParams() *KDFParams {
	return &KDFParams{Time: 1, Memory: 32, Threads: 2}
}

// HighSecurityKDFParams returns parameters for long-lived master keys
// (Time=5, Memory=128MB, Threads=4).
func HighSecurityKDFParams() *KDFParams {
	return &KDFParams{Time: 5, Memory: 128, Threads: 4}
}

func (p *KDFParams) resolve() (time, memoryKB uint32, threads uint8) {
	time, memoryKB, threads = DefaultTime, DefaultMemory*1024, DefaultThreads
	if p == nil {
		return
	}
	if p.Time > 0 {
		time = p.Time
	}
	if p.Memory > 0 {
		memoryKB = p.Memory * 1024
	}
	if p.Threads > 0 {
		threads = p.Threads
	}
	return
}

// DeriveKey derives a KeySize-byte AEAD key from a password with Argon2id.
// A nil params uses the defaults.
//
// The salt must be random and stored next to whatever the key protects; the
// same password and salt always give the same key.
//
// Example:
//
//	salt, _ := crypto.GenerateFixedField(crypto.NonceMaxSize)
//	key, err := crypto.DeriveKey([]byte("correct horse"), salt, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer crypto.Zeroize(key)
//	sealer, err := crypto.NewSealer(crypto.ChaCha20Poly1305, key, fixed)
func DeriveKey(password, salt []byte, params *KDFParams) ([]byte, error) {
	if len(password) == 0 {
		return nil, goerrors.New(ErrCodeKDFInput, "password cannot be empty")
	}
	if len(salt) < 8 {
		return nil, goerrors.New(ErrCodeKDFInput, fmt.Sprintf("salt must be at least 8 bytes (got %d)", len(salt)))
	}

	time, memoryKB, threads := params.resolve()
	return argon2.IDKey(password, salt, time, memoryKB, threads, KeySize), nil
}

// DeriveKeyHKDF derives keyLen bytes from a high-entropy master secret with
// HKDF-SHA256 (RFC 5869). Distinct info strings give independent keys, e.g.
// one per direction of a session. For passwords use DeriveKey instead.
//
// Example:
//
//	c2s, _ := crypto.DeriveKeyHKDF(sessionSecret, nil, []byte("client->server key"), crypto.KeySize)
//	s2c, _ := crypto.DeriveKeyHKDF(sessionSecret, nil, []byte("server->client key"), crypto.KeySize)
func DeriveKeyHKDF(masterKey, salt, info []byte, keyLen int) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, goerrors.New(ErrCodeKDFInput, "master key cannot be empty")
	}
	if keyLen <= 0 || keyLen > maxHKDFLength {
		return nil, goerrors.New(ErrCodeKDFInput, fmt.Sprintf("key length must be between 1 and %d", maxHKDFLength))
	}
	return hkdfSHA256(masterKey, salt, info, keyLen)
}

func hkdfSHA256(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKDF, "HKDF expansion failed")
	}
	return out, nil
}
