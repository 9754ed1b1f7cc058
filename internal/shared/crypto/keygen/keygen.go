// Copyright (c) 2025 Justin Cranford
//
//

// Package keygen generates RSA key pairs for JWT signing keys.
package keygen

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

// KeyPair holds a generated asymmetric key pair.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

var allowedRSAKeySizes = map[int]bool{2048: true, 3072: true, 4096: true}

// GenerateRSAKeyPair generates an RSA key pair of the given bit size.
// Only 2048, 3072, and 4096 are accepted, matching the JWT_KEY_SIZE contract.
func GenerateRSAKeyPair(bits int) (*KeyPair, error) {
	if !allowedRSAKeySizes[bits] {
		return nil, fmt.Errorf("invalid RSA key size: %d", bits)
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}
