// Package cryptox unseals encrypted submissions.
//
// A submission is a compact token (see package token) produced by:
//
//  1. signing the claims as an RS256 JWS with the sender's private key;
//  2. encrypting the JWS with AES-256-GCM under a random content key, using
//     the encoded protected header as additional authenticated data;
//  3. wrapping the content key with RSA-OAEP (SHA-1 hash and SHA-1 MGF1)
//     for the recipient.
//
// Unsealer reverses these steps; Sealer performs them and exists for tests
// and tooling.
package cryptox

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/seftconsumer/internal/common"
	"github.com/dmitrijs2005/seftconsumer/internal/keystore"
	"github.com/dmitrijs2005/seftconsumer/internal/logging"
	"github.com/dmitrijs2005/seftconsumer/internal/shared"
	"github.com/dmitrijs2005/seftconsumer/internal/token"
	"github.com/golang-jwt/jwt/v5"
)

const (
	keyAlgorithm     = "RSA-OAEP"
	contentAlgorithm = "A256GCM"
)

// KeyGetter resolves key material by purpose. *keystore.Store implements it.
type KeyGetter interface {
	Get(purpose string) (keystore.KeyMaterial, error)
}

type protectedHeader struct {
	Alg string `json:"alg"`
	Enc string `json:"enc"`
	Kid string `json:"kid,omitempty"`
}

// Unsealer decrypts and verifies compact tokens.
type Unsealer struct {
	keys   KeyGetter
	logger logging.Logger
}

func NewUnsealer(keys KeyGetter, logger logging.Logger) *Unsealer {
	return &Unsealer{keys: keys, logger: logger.With("module", "unsealer")}
}

// Decrypt unseals raw with the key material registered for purpose and
// returns the verified claim set.
//
// Errors:
//   - common.ErrMalformedToken when raw does not have five segments;
//   - common.ErrKeyNotFound / common.ErrConfiguration for key material faults;
//   - common.ErrDecrypt, unwrapped, for every cryptographic failure. Which
//     primitive failed is only logged at debug level.
func (u *Unsealer) Decrypt(ctx context.Context, raw, purpose string) (map[string]any, error) {
	tok, err := token.Parse(raw)
	if err != nil {
		return nil, err
	}

	km, err := u.keys.Get(purpose)
	if err != nil {
		return nil, err
	}
	if km.PrivateKey == nil || km.PublicKey == nil {
		return nil, fmt.Errorf("%w: incomplete key material for purpose %q", common.ErrConfiguration, purpose)
	}

	claims, err := open(tok, km.PrivateKey, km.PublicKey)
	if err != nil {
		u.logger.Debug(ctx, "failed to unseal token", "purpose", purpose, "error", err)
		return nil, common.ErrDecrypt
	}
	return claims, nil
}

func open(tok *token.CompactToken, priv *rsa.PrivateKey, verify *rsa.PublicKey) (map[string]any, error) {
	if err := checkHeader(tok.Header); err != nil {
		return nil, err
	}

	wrapped, err := token.DecodeSegment(tok.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("encrypted key: %w", err)
	}
	cek, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrapping content key: %w", err)
	}
	defer shared.WipeByteArray(cek)

	iv, err := token.DecodeSegment(tok.IV)
	if err != nil {
		return nil, fmt.Errorf("iv: %w", err)
	}
	tag, err := token.DecodeSegment(tok.Tag)
	if err != nil {
		return nil, fmt.Errorf("tag: %w", err)
	}
	ciphertext, err := token.DecodeSegment(tok.CipherText)
	if err != nil {
		return nil, fmt.Errorf("cipher text: %w", err)
	}

	signed, err := openGCM(cek, iv, ciphertext, tag, []byte(tok.Header))
	if err != nil {
		return nil, fmt.Errorf("content decryption: %w", err)
	}

	return verifySigned(string(signed), verify)
}

func checkHeader(segment string) error {
	raw, err := token.DecodeSegment(segment)
	if err != nil {
		return fmt.Errorf("protected header: %w", err)
	}
	var h protectedHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return fmt.Errorf("protected header: %w", err)
	}
	if h.Alg != keyAlgorithm || h.Enc != contentAlgorithm {
		return fmt.Errorf("unsupported algorithms alg=%q enc=%q", h.Alg, h.Enc)
	}
	return nil
}

// verifySigned checks the RS256 signature of a compact JWS and returns its
// claims. Any other signing method is refused. Numbers are kept as
// json.Number so integers beyond 2^53 survive intact.
func verifySigned(signed string, pub *rsa.PublicKey) (map[string]any, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithJSONNumber())
	if err != nil {
		return nil, fmt.Errorf("signature verification: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("signature verification: token not valid")
	}
	return claims, nil
}
