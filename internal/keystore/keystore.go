// Package keystore holds the RSA key material used to unseal submissions,
// addressed by a purpose tag such as "submission".
//
// Each purpose carries a private key and a public key. When consuming, the
// private key decrypts the wrapped content key and the public key verifies
// the sender's signature. When sealing (tests and tooling) the roles flip:
// the private key signs and the public key wraps.
//
// A Store is immutable once built and safe for concurrent readers.
package keystore

import (
	"crypto/rsa"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/seftconsumer/internal/common"
)

// KeyMaterial is the key pair registered under one purpose.
type KeyMaterial struct {
	Purpose    string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// Store is a read-only purpose → KeyMaterial lookup.
type Store struct {
	keys map[string]KeyMaterial
}

// New builds a Store from materials. Every purpose listed in required must be
// present with both keys, otherwise common.ErrConfiguration is returned; the
// process must not start consuming without them.
func New(materials map[string]KeyMaterial, required ...string) (*Store, error) {
	keys := make(map[string]KeyMaterial, len(materials))
	for purpose, m := range materials {
		m.Purpose = purpose
		keys[purpose] = m
	}

	var missing []string
	for _, purpose := range required {
		m, ok := keys[purpose]
		switch {
		case !ok:
			missing = append(missing, purpose)
		case m.PrivateKey == nil:
			missing = append(missing, purpose+" (private key)")
		case m.PublicKey == nil:
			missing = append(missing, purpose+" (public key)")
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: missing key material for %v", common.ErrConfiguration, missing)
	}

	return &Store{keys: keys}, nil
}

// Get returns the material for purpose or common.ErrKeyNotFound.
func (s *Store) Get(purpose string) (KeyMaterial, error) {
	m, ok := s.keys[purpose]
	if !ok {
		return KeyMaterial{}, fmt.Errorf("%w: purpose %q", common.ErrKeyNotFound, purpose)
	}
	return m, nil
}

// Purposes lists the registered purposes in sorted order.
func (s *Store) Purposes() []string {
	out := make([]string, 0, len(s.keys))
	for p := range s.keys {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
