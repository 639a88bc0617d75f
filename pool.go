// pool.go: Scratch buffer pooling for nonces and frame headers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"sync"
)

// smallBufferSize covers exported nonces (at most NonceMaxSize bytes) and
// stream frame headers.
const smallBufferSize = 32

var smallBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, smallBufferSize)
		return &buf
	},
}

// getBuffer retrieves a buffer of the requested size, pooled when it is small
func getBuffer(size int) *[]byte {
	if size <= smallBufferSize {
		buf := smallBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size] // Slice to requested size to avoid clear overhead
		return buf
	}
	// Larger sizes are allocated directly
	buf := make([]byte, size)
	return &buf
}

// putBuffer clears a buffer and returns it to the pool when it came from there
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}

	Zeroize(*buf)

	if cap(*buf) == smallBufferSize {
		smallBufferPool.Put(buf)
	}
}
