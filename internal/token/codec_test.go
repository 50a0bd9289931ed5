package token

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/seftconsumer/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("five segments", func(t *testing.T) {
		tok, err := Parse("aGVhZGVy.a2V5.aXY.Y2lwaGVy.dGFn")
		require.NoError(t, err)

		assert.Equal(t, "aGVhZGVy", tok.Header)
		assert.Equal(t, "a2V5", tok.EncryptedKey)
		assert.Equal(t, "aXY", tok.IV)
		assert.Equal(t, "Y2lwaGVy", tok.CipherText)
		assert.Equal(t, "dGFn", tok.Tag)
		assert.Equal(t, "aGVhZGVy.a2V5.aXY.Y2lwaGVy.dGFn", tok.String())
	})

	t.Run("empty segments still count", func(t *testing.T) {
		tok, err := Parse("h..iv.ct.")
		require.NoError(t, err)
		assert.Equal(t, "", tok.EncryptedKey)
		assert.Equal(t, "", tok.Tag)
	})

	for _, raw := range []string{"", "a.b.c", "a.b.c.d", "a.b.c.d.e.f", "header.payload.signature"} {
		t.Run("malformed "+raw, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrMalformedToken), "got %v", err)
		})
	}
}

func TestDecodeSegment_PaddingRestoration(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"len mod 4 == 0", "aGVsbG8h", []byte("hello!")},
		{"len mod 4 == 2", "aGk", []byte("hi")},
		{"len mod 4 == 3", "aGVsbG8", []byte("hello")},
		{"len mod 4 == 2, one byte", "_w", []byte{0xff}},
		{"already padded", "aGk=", []byte("hi")},
		{"url alphabet", "-_-_", []byte{0xfb, 0xff, 0xbf}},
		{"empty", "", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSegment(tt.in)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.want, got), "want %x got %x", tt.want, got)
		})
	}
}

func TestDecodeSegment_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"len mod 4 == 1", "aGVsb"},
		{"single char", "a"},
		{"len mod 4 == 1 with padding", "aGVsb==="},
		{"standard alphabet plus", "ab+c"},
		{"standard alphabet slash", "ab/c"},
		{"corrupt padding", "a=bc"},
		{"space", "aG k"},
		{"non-zero trailing bits, 2 mod 4", "aGl"},
		{"non-zero trailing bits, 3 mod 4", "aGVsbG9"},
		{"newline", "aGVs\nbG8h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSegment(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrEncoding), "got %v", err)
		})
	}
}

func TestEncodeSegment_StripsPadding(t *testing.T) {
	for n := 0; n < 40; n++ {
		data := bytes.Repeat([]byte{0xfa}, n)
		enc := EncodeSegment(data)

		assert.False(t, strings.HasSuffix(enc, "="), "encoded %q still padded", enc)
		assert.NotEqual(t, 1, len(enc)%4, "unpadded length can never be 1 mod 4")

		dec, err := DecodeSegment(enc)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, dec), "round trip mismatch for n=%d", n)
	}
}
