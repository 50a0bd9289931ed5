package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/seftconsumer/internal/common"
	"github.com/dmitrijs2005/seftconsumer/internal/shared"
	"github.com/dmitrijs2005/seftconsumer/internal/token"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultKeyID is the kid placed in the signature header by Sealer.
const DefaultKeyID = "SEFT"

// Sealer produces compact tokens from the sender side. The key material for
// a purpose must hold the sender's signing key as PrivateKey and the
// recipient's public key as PublicKey.
type Sealer struct {
	keys KeyGetter
	kid  string
}

func NewSealer(keys KeyGetter, kid string) *Sealer {
	if kid == "" {
		kid = DefaultKeyID
	}
	return &Sealer{keys: keys, kid: kid}
}

// Encrypt signs claims and encrypts the signed token for the recipient.
func (s *Sealer) Encrypt(claims map[string]any, purpose string) (string, error) {
	km, err := s.keys.Get(purpose)
	if err != nil {
		return "", err
	}
	if km.PrivateKey == nil || km.PublicKey == nil {
		return "", fmt.Errorf("%w: incomplete key material for purpose %q", common.ErrConfiguration, purpose)
	}

	jws := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(claims))
	jws.Header["kid"] = s.kid
	signed, err := jws.SignedString(km.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("signing claims: %w", err)
	}

	header, err := json.Marshal(protectedHeader{Alg: keyAlgorithm, Enc: contentAlgorithm})
	if err != nil {
		return "", err
	}

	tok, err := seal(km.PublicKey, token.EncodeSegment(header), []byte(signed))
	if err != nil {
		return "", err
	}
	return tok.String(), nil
}

// seal encrypts payload under a fresh content key. encodedHeader is used
// verbatim as the first segment and as additional authenticated data.
func seal(recipient *rsa.PublicKey, encodedHeader string, payload []byte) (*token.CompactToken, error) {
	cek, err := shared.GenerateRandByteArray(cekSize)
	if err != nil {
		return nil, err
	}
	defer shared.WipeByteArray(cek)

	iv, err := shared.GenerateRandByteArray(ivSize)
	if err != nil {
		return nil, err
	}

	wrapped, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, recipient, cek, nil)
	if err != nil {
		return nil, fmt.Errorf("wrapping content key: %w", err)
	}

	ciphertext, tag, err := sealGCM(cek, iv, payload, []byte(encodedHeader))
	if err != nil {
		return nil, fmt.Errorf("content encryption: %w", err)
	}

	return &token.CompactToken{
		Header:       encodedHeader,
		EncryptedKey: token.EncodeSegment(wrapped),
		IV:           token.EncodeSegment(iv),
		CipherText:   token.EncodeSegment(ciphertext),
		Tag:          token.EncodeSegment(tag),
	}, nil
}
