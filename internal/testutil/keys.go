// Package testutil provides RSA key fixtures for tests.
//
// Key generation is slow, so keys are generated once per test binary and
// cached by name. Two names give two independent key pairs, e.g. "sender"
// and "recipient".
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/youmark/pkcs8"
)

var (
	mu   sync.Mutex
	keys = map[string]*rsa.PrivateKey{}
)

// RSAKey returns the cached 2048-bit key registered under name, generating
// it on first use.
func RSAKey(t testing.TB, name string) *rsa.PrivateKey {
	t.Helper()
	mu.Lock()
	defer mu.Unlock()

	if k, ok := keys[name]; ok {
		return k
	}
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key %q: %v", name, err)
	}
	keys[name] = k
	return k
}

// PrivatePEM encodes key as an unencrypted PKCS#8 PEM block.
func PrivatePEM(t testing.TB, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal PKCS#8: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// PKCS1PEM encodes key as an "RSA PRIVATE KEY" block.
func PKCS1PEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

// EncryptedPrivatePEM encodes key as a password-protected PKCS#8 block.
func EncryptedPrivatePEM(t testing.TB, key *rsa.PrivateKey, password string) []byte {
	t.Helper()
	der, err := pkcs8.MarshalPrivateKey(key, []byte(password), nil)
	if err != nil {
		t.Fatalf("marshal encrypted PKCS#8: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})
}

// PublicPEM encodes the public half of key as a PKIX block.
func PublicPEM(t testing.TB, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal PKIX: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}
