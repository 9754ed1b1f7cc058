// Copyright (c) 2025 Justin Cranford
//
//

// Package jose implements the envelope cipher (C4): authenticated
// encryption of private-key material at rest, keyed by a master secret
// from process configuration. Grounded on the teacher's barrier package,
// which layers JWE content-encryption under a key-wrapping hierarchy; here
// a single master secret derives the content-encryption key directly
// (jwa.DIRECT), since there is no operator-supplied unseal-key hierarchy
// to protect in this deployment.
package jose

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"golang.org/x/crypto/hkdf"

	"mpoauthn/internal/apperr"
)

const (
	derivedKeyLen = 32 // bytes, for A256GCM
	hkdfInfo      = "mpoauthn/envelope-cipher/v1"
)

// EnvelopeCipher performs authenticated encryption/decryption of UTF-8
// strings (private-key PEM material), per the Envelope Cipher contract.
type EnvelopeCipher struct {
	contentKey []byte
}

// NewEnvelopeCipher derives a 256-bit content-encryption key from
// masterSecret via HKDF-SHA256.
func NewEnvelopeCipher(masterSecret string) (*EnvelopeCipher, error) {
	if masterSecret == "" {
		return nil, apperr.WrapError(apperr.ErrConfigInvalid, fmt.Errorf("master encryption key must not be empty"))
	}

	reader := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(hkdfInfo))

	key := make([]byte, derivedKeyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive envelope cipher key: %w", err)
	}

	return &EnvelopeCipher{contentKey: key}, nil
}

// EncryptToString encrypts plaintext into a self-describing compact JWE
// string (algorithm, nonce, ciphertext, and tag are all embedded).
func (c *EnvelopeCipher) EncryptToString(plaintext string) (string, error) {
	encrypted, err := jwe.Encrypt(
		[]byte(plaintext),
		jwe.WithKey(jwa.DIRECT(), c.contentKey),
		jwe.WithContentEncryption(jwa.A256GCM()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt private key material: %w", err)
	}

	return string(encrypted), nil
}

// DecryptFromString decrypts a string produced by EncryptToString.
// Decryption failure is always fatal: apperr.ErrDecryptionFailure, never a
// silent fallback to an unencrypted path.
func (c *EnvelopeCipher) DecryptFromString(ciphertext string) (string, error) {
	decrypted, err := jwe.Decrypt([]byte(ciphertext), jwe.WithKey(jwa.DIRECT(), c.contentKey))
	if err != nil {
		return "", apperr.WrapError(apperr.ErrDecryptionFailure, err)
	}

	return string(decrypted), nil
}
