package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

const (
	cekSize = 32 // AES-256
	ivSize  = 12
	tagSize = 16
)

// sealGCM encrypts plaintext with AES-GCM and returns the cipher text and
// the authentication tag separately, as the compact token carries them in
// different segments.
func sealGCM(key, iv, plaintext, aad []byte) (ciphertext, tag []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, aad)
	n := len(sealed) - aead.Overhead()
	return sealed[:n], sealed[n:], nil
}

// openGCM authenticates aad together with ciphertext and tag, then decrypts.
func openGCM(key, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	if len(iv) != ivSize {
		return nil, errors.New("unexpected IV length")
	}
	if len(tag) != tagSize {
		return nil, errors.New("unexpected tag length")
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	return aead.Open(nil, iv, sealed, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != cekSize {
		return nil, errors.New("unexpected content key length")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
