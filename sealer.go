// sealer.go: Per-key message sealing with counter nonces and replay-checked opening.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
)

var (
	// ErrNonceExhausted is returned by Sealer.Seal once the counter field has no
	// values left. The sealer cannot be used again; create a new one with a new
	// key or fixed field.
	ErrNonceExhausted = errors.New("crypto: nonce counter exhausted")

	// ErrNonceReplay is returned by Opener.Open when a nonce has already been accepted.
	ErrNonceReplay = errors.New("crypto: nonce replay detected")
)

// ErrCodeOpenerClosed is the error code returned by Open after Close.
const ErrCodeOpenerClosed = "CRYPTO_OPENER_CLOSED"

// Sealer encrypts a sequence of messages under one key. Each message gets a
// fresh nonce made of the sealer's fixed field followed by a counter that is
// advanced before every encryption, so no nonce is ever used twice.
//
// A Sealer is safe for concurrent use.
type Sealer struct {
	mu    sync.Mutex
	alg   Algorithm
	aead  cipher.AEAD
	nonce Nonce
	spent bool
}

// NewSealer creates a sealer for alg. The nonce counter occupies the bytes of
// alg.NonceSize() not taken by fixedField; a 4-byte fixed field leaves an
// 8-byte counter, as recommended by RFC 5116.
//
// The cipher is keyed once here and belongs to the sealer; Close releases it.
//
// Example:
//
//	key, _ := crypto.GenerateKey()
//	fixed, _ := crypto.GenerateFixedField(4)
//	sealer, err := crypto.NewSealer(crypto.AES256GCM, key, fixed)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sealer.Close()
//
//	nonce, ciphertext, err := sealer.Seal(nil, []byte("message"))
func NewSealer(alg Algorithm, key, fixedField []byte) (*Sealer, error) {
	if err := alg.checkKey(key); err != nil {
		return nil, err
	}

	nonce, err := NewNonceWithFixedField(fixedField, alg.NonceSize()-len(fixedField))
	if err != nil {
		return nil, err
	}

	aead, err := alg.ownAEAD(key)
	if err != nil {
		return nil, err
	}

	return &Sealer{alg: alg, aead: aead, nonce: nonce}, nil
}

// Seal encrypts plaintext and returns the nonce it was sealed under together
// with the ciphertext. The receiver needs both.
//
// When the counter is exhausted Seal returns ErrNonceExhausted and every later
// call fails the same way.
func (s *Sealer) Seal(aad, plaintext []byte) (Nonce, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spent || !s.nonce.TryIncrement() {
		s.spent = true
		richErr := goerrors.New(ErrCodeNonceExhausted, fmt.Sprintf("no nonces left for this %s key", s.alg))
		return Nonce{}, nil, fmt.Errorf("%w: %w", ErrNonceExhausted, richErr)
	}

	ciphertext, err := sealWith(s.aead, s.nonce, aad, plaintext)
	if err != nil {
		return Nonce{}, nil, err
	}
	return s.nonce, ciphertext, nil
}

// Algorithm returns the sealer's algorithm.
func (s *Sealer) Algorithm() Algorithm {
	return s.alg
}

// Close releases the sealer's cipher and marks it spent.
func (s *Sealer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aead = nil
	s.spent = true
}

// Opener decrypts messages produced by a Sealer. With a ReplayFilter it also
// rejects any nonce it has already accepted.
//
// Open is safe for concurrent use; Close must not race with Open.
type Opener struct {
	alg    Algorithm
	aead   cipher.AEAD
	filter *ReplayFilter
}

// NewOpener creates an opener. filter may be nil to disable replay checks.
func NewOpener(alg Algorithm, key []byte, filter *ReplayFilter) (*Opener, error) {
	aead, err := alg.ownAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Opener{alg: alg, aead: aead, filter: filter}, nil
}

// Open authenticates and decrypts ciphertext sealed under nonce.
//
// A nonce is recorded only after successful authentication, so forged
// messages cannot poison the replay filter.
func (o *Opener) Open(nonce Nonce, aad, ciphertext []byte) ([]byte, error) {
	if o.aead == nil {
		return nil, goerrors.New(ErrCodeOpenerClosed, "opener is closed")
	}
	if err := o.alg.checkNonce(nonce); err != nil {
		return nil, err
	}
	if o.filter != nil && o.filter.Test(nonce) {
		return nil, replayError(nonce)
	}

	plaintext, err := openWith(o.aead, nonce, aad, ciphertext)
	if err != nil {
		return nil, err
	}

	// a concurrent Open may have accepted the same nonce meanwhile
	if o.filter != nil && o.filter.CheckAndAdd(nonce) {
		Zeroize(plaintext)
		return nil, replayError(nonce)
	}
	return plaintext, nil
}

// Close releases the opener's cipher. Later calls to Open fail.
func (o *Opener) Close() {
	o.aead = nil
}

func replayError(nonce Nonce) error {
	richErr := goerrors.New(ErrCodeNonceReplay, fmt.Sprintf("nonce %s already used", nonce))
	return fmt.Errorf("%w: %w", ErrNonceReplay, richErr)
}
