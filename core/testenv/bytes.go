package testenv

import (
	"math/rand"

	"github.com/stretchr/testify/assert"
)

// RandBytes fills []byte with non-crypto-safe random bytes.
func RandBytes(p []byte) {
	rand.Read(p)
}

// Payload returns n bytes where byte i is i mod 256.
// This matches the payload pattern used by the hardware testbench.
func Payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

// BytesEqual asserts that actual bytes equals expected bytes.
// It considers nil slice and zero-length slice to be the same.
func BytesEqual(a *assert.Assertions, expected, actual []byte, msgAndArgs ...any) bool {
	if len(expected) == 0 && len(actual) == 0 {
		return true
	}
	return a.Equal(expected, actual, msgAndArgs...)
}
