// Package token parses and serialises the five-part compact token used for
// encrypted submissions:
//
//	header.encryptedKey.iv.cipherText.tag
//
// Every segment is unpadded base64url on the wire.
package token

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/seftconsumer/internal/common"
)

// SegmentCount is the number of dot-separated parts in a compact token.
const SegmentCount = 5

// CompactToken holds the raw (still encoded) segments of a token.
type CompactToken struct {
	Header       string
	EncryptedKey string
	IV           string
	CipherText   string
	Tag          string
}

// Parse splits raw on '.' and fails with common.ErrMalformedToken unless
// exactly five segments result. Segments are not decoded.
func Parse(raw string) (*CompactToken, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != SegmentCount {
		return nil, fmt.Errorf("%w: expected %d segments, got %d", common.ErrMalformedToken, SegmentCount, len(parts))
	}
	return &CompactToken{
		Header:       parts[0],
		EncryptedKey: parts[1],
		IV:           parts[2],
		CipherText:   parts[3],
		Tag:          parts[4],
	}, nil
}

// String serialises the token back to its compact form.
func (t *CompactToken) String() string {
	return strings.Join([]string{t.Header, t.EncryptedKey, t.IV, t.CipherText, t.Tag}, ".")
}

// DecodeSegment restores '=' padding until len(s) is a multiple of 4 and
// base64url-decodes the result. A length of 1 mod 4 can never be decoded
// and is rejected along with bad characters, as common.ErrEncoding.
// Decoding is strict: line breaks and non-zero trailing bits in the last
// character are rejected, so each byte string has exactly one accepted
// encoding.
func DecodeSegment(s string) ([]byte, error) {
	if strings.ContainsAny(s, "\r\n") {
		return nil, fmt.Errorf("%w: line break in segment", common.ErrEncoding)
	}
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	b, err := base64.URLEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncoding, err)
	}
	return b, nil
}

// EncodeSegment base64url-encodes b and strips trailing padding.
func EncodeSegment(b []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "=")
}
