package keystore

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/youmark/pkcs8"
)

// ErrPasswordRequired is returned when an encrypted private key is found but
// no password was supplied.
var ErrPasswordRequired = errors.New("private key is encrypted and no password was supplied")

// ParsePrivateKey decodes an RSA private key from PEM. PKCS#1, PKCS#8,
// password-protected PKCS#8 ("ENCRYPTED PRIVATE KEY") and legacy
// "Proc-Type: 4,ENCRYPTED" blocks are understood.
func ParsePrivateKey(data, password []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	der := block.Bytes

	// Legacy encrypted PEM is still produced by older tooling.
	if x509.IsEncryptedPEMBlock(block) {
		if len(password) == 0 {
			return nil, ErrPasswordRequired
		}
		var err error
		der, err = x509.DecryptPEMBlock(block, password)
		if err != nil {
			return nil, fmt.Errorf("decrypting PEM block: %w", err)
		}
	}

	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		if len(password) == 0 {
			return nil, ErrPasswordRequired
		}
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(der, password)
		if err != nil {
			return nil, fmt.Errorf("decrypting PKCS#8 key: %w", err)
		}
		return key, nil
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(der)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
	}
}

// ParsePublicKey decodes an RSA public key from a PKIX or PKCS#1 PEM block,
// or takes it from a certificate.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "PUBLIC KEY":
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		var cert *x509.Certificate
		cert, err = x509.ParseCertificate(block.Bytes)
		if err == nil {
			key = cert.PublicKey
		}
	default:
		return nil, fmt.Errorf("unsupported PEM block type: %s", block.Type)
	}
	if err != nil {
		return nil, err
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T", key)
	}
	return rsaKey, nil
}
