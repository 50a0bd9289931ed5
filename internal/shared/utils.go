// Package shared provides small helpers for handling secret material:
// random byte generation and wiping buffers after use.
package shared

import "crypto/rand"

// GenerateRandByteArray returns size bytes read from crypto/rand.
// Content-encryption keys and GCM nonces are drawn from here.
func GenerateRandByteArray(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Unwrapped content keys are wiped once decryption finishes.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
