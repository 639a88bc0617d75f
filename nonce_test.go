// nonce_test.go: Test cases for counter nonces.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto_test

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crypto "github.com/agilira/sigil"
)

func mustNonce(t *testing.T, fixed, counter []byte) crypto.Nonce {
	t.Helper()
	n, err := crypto.NewNonceFromFields(fixed, counter)
	require.NoError(t, err)
	return n
}

func TestNewNonce_Sizes(t *testing.T) {
	tests := []struct {
		fixed, counter int
		valid          bool
	}{
		{0, 0, true},
		{4, 8, true},
		{0, 15, true},
		{15, 0, true},
		{7, 8, true},
		{8, 8, false},
		{16, 0, false},
		{0, 16, false},
		{-1, 4, false},
		{4, -1, false},
	}

	for _, tt := range tests {
		n, err := crypto.NewNonce(tt.fixed, tt.counter)
		if !tt.valid {
			require.Error(t, err, "fixed=%d counter=%d", tt.fixed, tt.counter)
			assert.ErrorIs(t, err, crypto.ErrNonceFieldSize)
			continue
		}
		require.NoError(t, err, "fixed=%d counter=%d", tt.fixed, tt.counter)
		assert.Equal(t, tt.fixed, n.FixedFieldSize())
		assert.Equal(t, tt.counter, n.CounterFieldSize())
		assert.Equal(t, tt.fixed+tt.counter, n.Size())
		assert.Equal(t, make([]byte, tt.fixed+tt.counter), n.Bytes())
	}
}

func TestNewNonceWithFixedField(t *testing.T) {
	n, err := crypto.NewNonceWithFixedField([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 8)
	require.NoError(t, err)
	assert.Equal(t, 4, n.FixedFieldSize())
	assert.Equal(t, 8, n.CounterFieldSize())
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0, 0, 0, 0, 0, 0, 0, 0}, n.Bytes())

	_, err = crypto.NewNonceWithFixedField(make([]byte, 16), 0)
	assert.ErrorIs(t, err, crypto.ErrNonceFieldSize)

	_, err = crypto.NewNonceWithFixedField(make([]byte, 10), 6)
	assert.ErrorIs(t, err, crypto.ErrNonceFieldSize)

	_, err = crypto.NewNonceWithFixedField(make([]byte, 10), -1)
	assert.ErrorIs(t, err, crypto.ErrNonceFieldSize)

	_, err = crypto.NewNonceWithFixedField(make([]byte, 10), 5)
	assert.NoError(t, err)
}

func TestNewNonceFromFields(t *testing.T) {
	n := mustNonce(t, []byte{1, 2}, []byte{3, 4, 5})
	assert.Equal(t, 2, n.FixedFieldSize())
	assert.Equal(t, 3, n.CounterFieldSize())
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, n.Bytes())

	_, err := crypto.NewNonceFromFields(make([]byte, 16), nil)
	assert.ErrorIs(t, err, crypto.ErrNonceFieldSize)

	_, err = crypto.NewNonceFromFields(make([]byte, 8), make([]byte, 8))
	assert.ErrorIs(t, err, crypto.ErrNonceFieldSize)
}

func TestNonce_String(t *testing.T) {
	n := mustNonce(t, []byte{0xAA, 0xBB}, []byte{0xCC, 0xDD, 0xEE})
	assert.Equal(t, "[AABB][CCDDEE]", n.String())

	assert.Equal(t, "[][]", crypto.Nonce{}.String())
	assert.Equal(t, "[][0001]", mustNonce(t, nil, []byte{0, 1}).String())
	assert.Equal(t, "[0F][]", mustNonce(t, []byte{0x0F}, nil).String())
}

func TestNonce_TryIncrement(t *testing.T) {
	n := mustNonce(t, []byte{0xAA}, []byte{0x00, 0xFE})

	require.True(t, n.TryIncrement())
	assert.Equal(t, []byte{0xAA, 0x00, 0xFF}, n.Bytes())

	require.True(t, n.TryIncrement())
	assert.Equal(t, []byte{0xAA, 0x01, 0x00}, n.Bytes(), "carry must ripple into the next counter byte")
	assert.Equal(t, 1, n.FixedFieldSize())
	assert.Equal(t, 2, n.CounterFieldSize())
}

func TestNonce_TryAdd(t *testing.T) {
	n := mustNonce(t, []byte{0x11, 0x22}, []byte{0x00, 0x00, 0xF0})

	ok, err := n.TryAdd(0x1234)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x11, 0x22, 0x00, 0x13, 0x24}, n.Bytes())

	ok, err = n.TryAdd(0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x11, 0x22, 0x00, 0x13, 0x24}, n.Bytes())

	ok, err = n.TryAdd(-1)
	assert.ErrorIs(t, err, crypto.ErrInvalidAddend)
	assert.False(t, ok)
	assert.Equal(t, []byte{0x11, 0x22, 0x00, 0x13, 0x24}, n.Bytes(), "rejected addend must not modify the nonce")
}

func TestNonce_CounterExhaustion(t *testing.T) {
	t.Run("four byte counter", func(t *testing.T) {
		n, err := crypto.NewNonce(4, 4)
		require.NoError(t, err)

		// 2^32 - 1 increments fit, the next one does not
		ok, err := n.TryAdd(1<<32 - 2)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, n.TryIncrement())
		assert.Equal(t, []byte{0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}, n.Bytes())

		assert.False(t, n.TryIncrement())
		assert.Equal(t, crypto.Nonce{}, n)
		assert.Equal(t, 0, n.Size())
	})

	t.Run("every value of a two byte counter", func(t *testing.T) {
		n, err := crypto.NewNonceWithFixedField([]byte{0xDE, 0xAD}, 2)
		require.NoError(t, err)

		for i := 1; i < 1<<16; i++ {
			require.True(t, n.TryIncrement(), "increment %d", i)
		}
		assert.Equal(t, []byte{0xDE, 0xAD, 0xFF, 0xFF}, n.Bytes())
		assert.False(t, n.TryIncrement())
		assert.True(t, n.Equal(crypto.Nonce{}))
	})

	t.Run("no counter field", func(t *testing.T) {
		n := mustNonce(t, []byte{1, 2, 3}, nil)
		assert.False(t, n.TryIncrement())
		assert.Equal(t, crypto.Nonce{}, n)
	})

	t.Run("addend larger than counter", func(t *testing.T) {
		n := mustNonce(t, []byte{9}, []byte{0})
		ok, err := n.TryAdd(256)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, crypto.Nonce{}, n)
	})
}

func TestNonce_OverflowIntoFixedField(t *testing.T) {
	n := mustNonce(t, []byte{0xFF}, []byte{0xFF})

	ok, err := n.TryAdd(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, crypto.Nonce{}, n, "exhaustion must reset to the zero nonce")
	assert.Equal(t, []byte{}, n.Bytes())
}

func TestNonce_StrictVariants(t *testing.T) {
	n := mustNonce(t, []byte{0x01}, []byte{0xFE})

	require.NoError(t, n.Increment())
	assert.Equal(t, []byte{0x01, 0xFF}, n.Bytes())

	err := n.Increment()
	require.Error(t, err)
	assert.ErrorIs(t, err, crypto.ErrNonceOverflow)
	assert.Equal(t, crypto.Nonce{}, n)

	m := mustNonce(t, nil, []byte{0x00, 0x10})
	require.NoError(t, m.Add(0x10))
	assert.Equal(t, []byte{0x00, 0x20}, m.Bytes())

	assert.ErrorIs(t, m.Add(-5), crypto.ErrInvalidAddend)
	assert.ErrorIs(t, m.Add(1<<16), crypto.ErrNonceOverflow)
}

func TestNonce_ValueSemantics(t *testing.T) {
	a := mustNonce(t, []byte{1}, []byte{0})
	b := a

	require.True(t, b.TryIncrement())
	assert.Equal(t, []byte{1, 0}, a.Bytes(), "copies must be independent")
	assert.Equal(t, []byte{1, 1}, b.Bytes())
}

func TestNonce_Xor(t *testing.T) {
	n := mustNonce(t, []byte{0xF0, 0x0F}, []byte{0xAA, 0x55, 0x00})

	x, err := n.Xor([]byte{0xFF, 0xFF, 0x0F, 0xF0, 0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0F, 0xF0, 0xA5, 0xA5, 0x01}, x.Bytes())
	assert.Equal(t, 5, x.FixedFieldSize(), "xor result keeps all bytes as fixed field")
	assert.Equal(t, 0, x.CounterFieldSize())

	// the receiver is unchanged
	assert.Equal(t, []byte{0xF0, 0x0F, 0xAA, 0x55, 0x00}, n.Bytes())
	assert.Equal(t, 2, n.FixedFieldSize())

	_, err = n.Xor([]byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, crypto.ErrNonceXorSize)
	_, err = n.Xor(make([]byte, 6))
	assert.ErrorIs(t, err, crypto.ErrNonceXorSize)

	// long operands exercise every byte position
	long, err := crypto.NewNonce(3, 12)
	require.NoError(t, err)
	mask := bytes.Repeat([]byte{0x5A}, 15)
	x, err = long.Xor(mask)
	require.NoError(t, err)
	assert.Equal(t, mask, x.Bytes())

	back, err := x.Xor(mask)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 15), back.Bytes())
}

func TestNonce_CopyTo(t *testing.T) {
	n := mustNonce(t, []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8})

	dst := make([]byte, 12)
	written, err := n.CopyTo(dst)
	require.NoError(t, err)
	assert.Equal(t, 8, written)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0}, dst)

	written, err = n.CopyTo(make([]byte, 7))
	assert.ErrorIs(t, err, crypto.ErrDestinationTooShort)
	assert.Zero(t, written)

	written, err = crypto.Nonce{}.CopyTo(nil)
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestNonce_Compare(t *testing.T) {
	a := mustNonce(t, []byte{0x01}, []byte{0x00})
	b := mustNonce(t, []byte{0x01}, []byte{0x01})
	c := mustNonce(t, []byte{0x02}, []byte{0x00})

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, 0, a.Compare(a))

	// same bytes, different split: ordered by packed sizes
	split1 := mustNonce(t, []byte{0x01}, []byte{0x00})
	split2 := mustNonce(t, []byte{0x01, 0x00}, nil)
	assert.False(t, split1.Equal(split2))
	assert.Equal(t, -1, split1.Compare(split2)) // 0x11 < 0x20
	assert.NotEqual(t, 0, split2.Compare(split1))
}

func randomNonce(r *rand.Rand) crypto.Nonce {
	fixed := r.Intn(crypto.NonceMaxSize + 1)
	counter := r.Intn(crypto.NonceMaxSize - fixed + 1)
	f := make([]byte, fixed)
	c := make([]byte, counter)
	// small alphabet so that collisions happen
	for i := range f {
		f[i] = byte(r.Intn(2))
	}
	for i := range c {
		c[i] = byte(r.Intn(2))
	}
	n, _ := crypto.NewNonceFromFields(f, c)
	return n
}

func TestNonce_OrderEqualityHashConsistency(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	nonces := make([]crypto.Nonce, 300)
	for i := range nonces {
		if i%10 == 0 {
			nonces[i] = crypto.Nonce{}
			continue
		}
		nonces[i] = randomNonce(r)
	}

	for _, a := range nonces {
		for _, b := range nonces {
			ab := a.Compare(b)
			ba := b.Compare(a)
			require.Equal(t, -ab, ba, "antisymmetry for %v and %v", a, b)
			require.Equal(t, ab == 0, a.Equal(b), "compare consistent with equal for %v and %v", a, b)
			require.Equal(t, a == b, a.Equal(b))
			if a.Equal(b) {
				require.Equal(t, a.Hash(), b.Hash())
			}
		}
	}

	sorted := make([]crypto.Nonce, len(nonces))
	copy(sorted, nonces)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	for i := 1; i < len(sorted); i++ {
		require.LessOrEqual(t, sorted[i-1].Compare(sorted[i]), 0)
		// transitivity against a later element
		if i+1 < len(sorted) {
			require.LessOrEqual(t, sorted[i-1].Compare(sorted[i+1]), 0)
		}
	}
}

func TestNonce_UsableAsMapKey(t *testing.T) {
	seen := make(map[crypto.Nonce]int)
	n, err := crypto.NewNonceWithFixedField([]byte{7, 7, 7, 7}, 8)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		require.True(t, n.TryIncrement())
		seen[n]++
	}
	assert.Len(t, seen, 1000)
}

func BenchmarkNonce_TryIncrement(b *testing.B) {
	n, _ := crypto.NewNonce(4, 8)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if !n.TryIncrement() {
			n, _ = crypto.NewNonce(4, 8)
		}
	}
}

func BenchmarkNonce_Compare(b *testing.B) {
	x, _ := crypto.NewNonceFromFields([]byte{1, 2, 3, 4}, []byte{5, 6, 7, 8, 9, 10, 11, 12})
	y := x
	_ = y.TryIncrement()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = x.Compare(y)
	}
}
