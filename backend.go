// backend.go: One-time initialization of the AEAD primitive backend.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
)

// ErrInitializationFailed is returned by Initialize, and by every operation
// that needs the backend, when the backend self-test failed. The failure is
// permanent for the life of the process.
var ErrInitializationFailed = errors.New("crypto: backend initialization failed")

// ErrCodeInitialization is the go-errors code attached to ErrInitializationFailed.
const ErrCodeInitialization = "CRYPTO_INIT_FAILED"

// initGate runs an initialization function at most once and memoizes its result.
// Concurrent first callers block until the single run completes.
type initGate struct {
	result func() bool
}

func newInitGate(core func() bool) *initGate {
	return &initGate{result: sync.OnceValue(core)}
}

func (g *initGate) tryInitialize() bool {
	return g.result()
}

func (g *initGate) initialize() error {
	if !g.result() {
		richErr := goerrors.New(ErrCodeInitialization, "AEAD backend self-test failed")
		return fmt.Errorf("%w: %w", ErrInitializationFailed, richErr)
	}
	return nil
}

var backend = newInitGate(initializeBackend)

// Initialize prepares the cryptographic backend.
//
// The first call runs a self-test of every supported AEAD algorithm; later
// calls return the memoized outcome without doing any work. It is safe to call
// from any number of goroutines. Every function of this package that performs
// encryption calls Initialize itself, so explicit calls are only needed to
// fail fast at startup.
//
// Example:
//
//	if err := crypto.Initialize(); err != nil {
//		log.Fatal(err) // nothing in this package will work
//	}
func Initialize() error {
	return backend.initialize()
}

// TryInitialize is like Initialize but reports the outcome as a boolean.
func TryInitialize() bool {
	return backend.tryInitialize()
}

func initializeBackend() bool {
	for _, alg := range supportedAlgorithms {
		if err := selfTest(alg); err != nil {
			return false
		}
	}
	return true
}

// selfTest checks that alg round-trips a message and rejects a forged one.
func selfTest(alg Algorithm) error {
	key := make([]byte, alg.KeySize())
	nonce := make([]byte, alg.NonceSize())
	for i := range key {
		key[i] = byte(i)
	}
	plaintext := []byte("sigil backend self-test")
	aad := []byte{0x00, 0x01}

	aead, err := alg.newAEAD(key)
	if err != nil {
		return err
	}

	sealed := aead.Seal(nil, nonce, plaintext, aad) // #nosec G407 -- fixed nonce for a self-test only
	if len(sealed) != len(plaintext)+alg.TagSize() {
		return errors.New("unexpected ciphertext length")
	}

	opened, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil || !bytes.Equal(opened, plaintext) {
		return errors.New("round trip failed")
	}

	sealed[0] ^= 0x01
	if _, err := aead.Open(nil, nonce, sealed, aad); err == nil {
		return errors.New("forgery accepted")
	}
	return nil
}
