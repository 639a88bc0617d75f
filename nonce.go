// nonce.go: Split fixed-field/counter-field nonces for AEAD constructions (RFC 5116).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	goerrors "github.com/agilira/go-errors"
)

// NonceMaxSize is the maximum number of active bytes a Nonce can hold.
// The fixed field and the counter field together never exceed this value.
const NonceMaxSize = 15

// nonceReprSize is the size of the comparable representation: the active
// bytes followed by one packed size byte (fixed<<4 | counter).
const nonceReprSize = NonceMaxSize + 1

// Public nonce errors, usable with errors.Is().
var (
	// ErrNonceFieldSize is returned when fixed or counter field sizes are out of range.
	ErrNonceFieldSize = errors.New("crypto: invalid nonce field size")

	// ErrInvalidAddend is returned when a negative value is added to a nonce counter.
	ErrInvalidAddend = errors.New("crypto: invalid nonce addend")

	// ErrNonceOverflow is returned by the strict Add and Increment variants when
	// the counter field is exhausted. It is not retryable: the caller must rotate
	// the key or the fixed field before encrypting again.
	ErrNonceOverflow = errors.New("crypto: nonce counter overflow")

	// ErrNonceXorSize is returned when the XOR operand length differs from the nonce size.
	ErrNonceXorSize = errors.New("crypto: invalid nonce xor operand size")

	// ErrDestinationTooShort is returned when an export buffer cannot hold the nonce.
	ErrDestinationTooShort = errors.New("crypto: destination too short")
)

// Error codes for nonce operations
const (
	ErrCodeNonceFieldSize   = "CRYPTO_NONCE_FIELD_SIZE"
	ErrCodeNonceAddend      = "CRYPTO_NONCE_ADDEND"
	ErrCodeNonceOverflow    = "CRYPTO_NONCE_OVERFLOW"
	ErrCodeNonceXorSize     = "CRYPTO_NONCE_XOR_SIZE"
	ErrCodeDestinationShort = "CRYPTO_DESTINATION_SHORT"
)

// Nonce is a fixed-capacity AEAD nonce made of a fixed field followed by a
// counter field, as described in RFC 5116 section 3.2.
//
// A Nonce is a plain value: assignment copies it and no operation allocates.
// The zero value is the empty nonce (no fixed field, no counter field), which
// is also the value a nonce is reset to when its counter is exhausted.
//
// Layout of the active bytes:
//
//	[ fixed field ][ counter field ][ unused ]
//	 0              FixedFieldSize   Size    15
//
// Two nonces are equal only if their active bytes, their unused bytes and their
// field sizes all match, so == can be used directly.
type Nonce struct {
	bytes            [NonceMaxSize]byte
	fixedFieldSize   uint8
	counterFieldSize uint8
}

// NewNonce creates a nonce with a zeroed fixed field of fixedFieldSize bytes
// and a zeroed counter field of counterFieldSize bytes.
//
// Parameters:
//   - fixedFieldSize: size of the fixed field, between 0 and NonceMaxSize
//   - counterFieldSize: size of the counter field, at most NonceMaxSize-fixedFieldSize
//
// Returns:
//   - The new nonce
//   - An error wrapping ErrNonceFieldSize if a size is out of range
//
// Example:
//
//	nonce, err := crypto.NewNonce(4, 8) // 12-byte nonce for AES-GCM
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(nonce) // Output: [00000000][0000000000000000]
func NewNonce(fixedFieldSize, counterFieldSize int) (Nonce, error) {
	if fixedFieldSize < 0 || fixedFieldSize > NonceMaxSize {
		return Nonce{}, fieldSizeError(fmt.Sprintf("fixed field size must be between 0 and %d (got %d)", NonceMaxSize, fixedFieldSize))
	}
	if counterFieldSize < 0 || counterFieldSize > NonceMaxSize-fixedFieldSize {
		return Nonce{}, fieldSizeError(fmt.Sprintf("counter field size must be between 0 and %d (got %d)", NonceMaxSize-fixedFieldSize, counterFieldSize))
	}

	return Nonce{
		fixedFieldSize:   uint8(fixedFieldSize),   // #nosec G115 -- range checked above
		counterFieldSize: uint8(counterFieldSize), // #nosec G115 -- range checked above
	}, nil
}

// NewNonceWithFixedField creates a nonce whose fixed field is a copy of
// fixedField, followed by a zeroed counter field of counterFieldSize bytes.
//
// This is the usual way to start a per-key message sequence: the fixed field
// is random or derived per session and the counter starts at zero.
func NewNonceWithFixedField(fixedField []byte, counterFieldSize int) (Nonce, error) {
	if len(fixedField) > NonceMaxSize {
		return Nonce{}, fieldSizeError(fmt.Sprintf("fixed field must be at most %d bytes (got %d)", NonceMaxSize, len(fixedField)))
	}
	if counterFieldSize < 0 || counterFieldSize > NonceMaxSize-len(fixedField) {
		return Nonce{}, fieldSizeError(fmt.Sprintf("counter field size must be between 0 and %d (got %d)", NonceMaxSize-len(fixedField), counterFieldSize))
	}

	n := Nonce{
		fixedFieldSize:   uint8(len(fixedField)),  // #nosec G115 -- range checked above
		counterFieldSize: uint8(counterFieldSize), // #nosec G115 -- range checked above
	}
	copy(n.bytes[:], fixedField)
	return n, nil
}

// NewNonceFromFields creates a nonce from explicit fixed and counter field contents.
// The combined length must not exceed NonceMaxSize.
func NewNonceFromFields(fixedField, counterField []byte) (Nonce, error) {
	if len(fixedField) > NonceMaxSize {
		return Nonce{}, fieldSizeError(fmt.Sprintf("fixed field must be at most %d bytes (got %d)", NonceMaxSize, len(fixedField)))
	}
	if len(counterField) > NonceMaxSize-len(fixedField) {
		return Nonce{}, fieldSizeError(fmt.Sprintf("counter field must be at most %d bytes (got %d)", NonceMaxSize-len(fixedField), len(counterField)))
	}

	n := Nonce{
		fixedFieldSize:   uint8(len(fixedField)),   // #nosec G115 -- range checked above
		counterFieldSize: uint8(len(counterField)), // #nosec G115 -- range checked above
	}
	copy(n.bytes[:], fixedField)
	copy(n.bytes[len(fixedField):], counterField)
	return n, nil
}

func fieldSizeError(msg string) error {
	richErr := goerrors.New(ErrCodeNonceFieldSize, msg)
	return fmt.Errorf("%w: %w", ErrNonceFieldSize, richErr)
}

// FixedFieldSize returns the size of the fixed field in bytes.
func (n Nonce) FixedFieldSize() int {
	return int(n.fixedFieldSize)
}

// CounterFieldSize returns the size of the counter field in bytes.
func (n Nonce) CounterFieldSize() int {
	return int(n.counterFieldSize)
}

// Size returns the number of active bytes (fixed field plus counter field).
func (n Nonce) Size() int {
	return int(n.fixedFieldSize) + int(n.counterFieldSize)
}

// TryAdd adds addend to the counter field, treating it as a big-endian
// unsigned integer. Only counter bytes are ever modified.
//
// When the sum does not fit in the counter field the nonce is reset to the
// zero Nonce and false is returned. Exhaustion is a normal outcome that the
// caller is expected to handle (fail the message, rotate the fixed field or
// rotate the key); it is never reported as an error.
//
// Parameters:
//   - addend: value to add, must not be negative
//
// Returns:
//   - true if the counter was advanced, false if it was exhausted
//   - An error wrapping ErrInvalidAddend if addend is negative
//
// Example:
//
//	nonce, _ := crypto.NewNonceWithFixedField(fixed, 8)
//	if ok, _ := nonce.TryAdd(1); !ok {
//		return errors.New("rotate key")
//	}
func (n *Nonce) TryAdd(addend int) (bool, error) {
	if addend < 0 {
		richErr := goerrors.New(ErrCodeNonceAddend, fmt.Sprintf("addend must not be negative (got %d)", addend))
		return false, fmt.Errorf("%w: %w", ErrInvalidAddend, richErr)
	}
	return n.add(uint64(addend)), nil // #nosec G115 -- addend is not negative
}

// TryIncrement adds one to the counter field. See TryAdd.
func (n *Nonce) TryIncrement() bool {
	return n.add(1)
}

// Add is the strict form of TryAdd. It returns an error wrapping
// ErrNonceOverflow when the counter is exhausted, in which case the nonce has
// been reset to the zero Nonce and must not be used.
func (n *Nonce) Add(addend int) error {
	ok, err := n.TryAdd(addend)
	if err != nil {
		return err
	}
	if !ok {
		return overflowError()
	}
	return nil
}

// Increment is the strict form of TryIncrement.
func (n *Nonce) Increment() error {
	if !n.add(1) {
		return overflowError()
	}
	return nil
}

func overflowError() error {
	richErr := goerrors.New(ErrCodeNonceOverflow, "nonce counter field exhausted")
	return fmt.Errorf("%w: %w", ErrNonceOverflow, richErr)
}

// add performs ripple-carry addition from the last counter byte toward the
// first one. A carry that would reach the fixed field resets the nonce.
func (n *Nonce) add(addend uint64) bool {
	carry := addend
	end := int(n.fixedFieldSize)
	pos := n.Size()

	for carry != 0 {
		if pos <= end {
			*n = Nonce{}
			return false
		}
		pos--
		carry += uint64(n.bytes[pos])
		n.bytes[pos] = byte(carry)
		carry >>= 8
	}

	return true
}

// Xor returns the nonce XORed with b, which must be exactly Size() bytes long.
//
// The result has a fixed field of len(b) bytes and no counter field: the
// original split is not preserved. XORing a per-key IV into a counter nonce
// (as TLS 1.3 and ChaCha20-Poly1305 record layers do) therefore yields a final
// nonce that can be exported but not incremented further.
func (n Nonce) Xor(b []byte) (Nonce, error) {
	if len(b) != n.Size() {
		richErr := goerrors.New(ErrCodeNonceXorSize, fmt.Sprintf("xor operand must be %d bytes (got %d)", n.Size(), len(b)))
		return Nonce{}, fmt.Errorf("%w: %w", ErrNonceXorSize, richErr)
	}

	n.fixedFieldSize = uint8(len(b)) // #nosec G115 -- len(b) == Size() <= NonceMaxSize
	n.counterFieldSize = 0

	for i := range b {
		n.bytes[i] ^= b[i]
	}
	return n, nil
}

// packedSize returns the field sizes packed in one byte, fixed size in the
// high nibble.
func (n Nonce) packedSize() byte {
	return n.fixedFieldSize<<4 | n.counterFieldSize
}

// repr returns the 16-byte representation used for ordering and hashing.
func (n Nonce) repr() [nonceReprSize]byte {
	var r [nonceReprSize]byte
	copy(r[:], n.bytes[:])
	r[NonceMaxSize] = n.packedSize()
	return r
}

// Compare orders nonces by their 16-byte representation (all 15 bytes followed
// by the packed field sizes) read as a big-endian unsigned integer.
// It returns -1, 0 or +1.
//
// The order is deterministic and consistent with Equal, which makes it suitable
// for sorting; it carries no security meaning.
func (n Nonce) Compare(other Nonce) int {
	if c := bytes.Compare(n.bytes[:], other.bytes[:]); c != 0 {
		return c
	}
	return cmp.Compare(n.packedSize(), other.packedSize())
}

// Equal reports whether both nonces have identical bytes and field sizes.
func (n Nonce) Equal(other Nonce) bool {
	return n == other
}

// Hash returns a 64-bit FNV-1a hash of the nonce representation.
// Equal nonces always have equal hashes.
func (n Nonce) Hash() uint64 {
	r := n.repr()
	h := fnv.New64a()
	_, _ = h.Write(r[:]) // hash.Hash never returns an error
	return h.Sum64()
}

// CopyTo copies the Size() active bytes of the nonce into dst and returns the
// number of bytes copied. These bytes are the literal IV handed to an AEAD.
func (n Nonce) CopyTo(dst []byte) (int, error) {
	size := n.Size()
	if len(dst) < size {
		richErr := goerrors.New(ErrCodeDestinationShort, fmt.Sprintf("destination must be at least %d bytes (got %d)", size, len(dst)))
		return 0, fmt.Errorf("%w: %w", ErrDestinationTooShort, richErr)
	}
	return copy(dst, n.bytes[:size]), nil
}

// Bytes returns a new slice holding the Size() active bytes of the nonce.
func (n Nonce) Bytes() []byte {
	b := make([]byte, n.Size())
	copy(b, n.bytes[:])
	return b
}

// String renders the fixed and counter fields as bracketed upper-case hex,
// for example "[AABB][CCDDEE]".
func (n Nonce) String() string {
	s := strings.ToUpper(hex.EncodeToString(n.bytes[:n.Size()]))
	split := 2 * n.FixedFieldSize()
	return "[" + s[:split] + "][" + s[split:] + "]"
}
