// Package common defines the sentinel errors shared by the unsealing,
// validation and configuration layers of the SEFT consumer. Callers should
// use errors.Is to match these values; wrapping with %w keeps context.
package common

import "errors"

var (
	// Token structure errors.
	ErrMalformedToken = errors.New("malformed token")
	ErrEncoding       = errors.New("invalid base64url encoding")

	// ErrDecrypt is returned for every cryptographic failure. It never wraps
	// the underlying cause.
	ErrDecrypt = errors.New("decrypt error")

	// Payload errors.
	ErrValidation = errors.New("validation error")

	// Configuration faults. These are fatal and stop message consumption.
	ErrConfiguration = errors.New("configuration error")
	ErrKeyNotFound   = errors.New("key not found")
)

// IsFatal reports whether err is a configuration fault that must not be
// handled per message.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrKeyNotFound)
}
