// base64.go: Standard base64 primitives used by the armor codec.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package armor

import (
	"encoding/base64"
)

// alphabet is the RFC 4648 standard alphabet, matching base64.StdEncoding.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// invalidDigit marks bytes outside the alphabet in decodeMap.
const invalidDigit = 0xFF

// decodeMap maps an input byte to its 6-bit value, or invalidDigit.
var decodeMap = func() [256]byte {
	var m [256]byte
	for i := range m {
		m[i] = invalidDigit
	}
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = byte(i)
	}
	return m
}()

// base64Len returns the padded base64 length of n input bytes.
func base64Len(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

// encodeBase64 writes the padded base64 encoding of src to dst,
// which must be exactly base64Len(len(src)) bytes.
func encodeBase64(dst, src []byte) {
	base64.StdEncoding.Encode(dst, src)
}

// decode6Bits returns the value of a base64 digit and whether ch is one.
func decode6Bits(ch byte) (byte, bool) {
	v := decodeMap[ch]
	return v, v != invalidDigit
}

// isSpace reports whether ch is skipped inside an armored body:
// space and the ASCII range from tab to carriage return.
func isSpace(ch byte) bool {
	return ch == ' ' || (ch >= '\t' && ch <= '\r')
}
