// Copyright (c) 2025 Justin Cranford
//
//

// Package jwks implements the JWKS Publisher (C7): the read-only JWK Set
// view built from the Key Store's publishable keys.
package jwks

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"mpoauthn/internal/repository/orm"
)

// Publisher exposes the single read operation of §4.7.
type Publisher struct {
	keys orm.KeyRepository
}

// NewPublisher constructs a Publisher over the Key Store.
func NewPublisher(keys orm.KeyRepository) *Publisher {
	return &Publisher{keys: keys}
}

// CurrentJWKS builds the JWK Set from the Key Store's publishable keys:
// ACTIVE first, then RETIRED newest-first; PENDING keys are never
// included.
func (p *Publisher) CurrentJWKS(ctx context.Context) (jwk.Set, error) {
	publishable, err := p.keys.ListPublishable(ctx)
	if err != nil {
		return nil, err
	}

	set := jwk.NewSet()

	for _, key := range publishable {
		block, _ := pem.Decode([]byte(key.PublicKeyPEM))
		if block == nil {
			return nil, fmt.Errorf("no PEM block found for public key of %s", key.KeyID)
		}

		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key of %s: %w", key.KeyID, err)
		}

		rsaPub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key of %s is not RSA", key.KeyID)
		}

		jwkKey, err := jwk.Import(rsaPub)
		if err != nil {
			return nil, fmt.Errorf("failed to import public key of %s: %w", key.KeyID, err)
		}

		if err := jwkKey.Set(jwk.KeyIDKey, key.KeyID); err != nil {
			return nil, err
		}

		if err := jwkKey.Set(jwk.KeyUsageKey, "sig"); err != nil {
			return nil, err
		}

		if err := jwkKey.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
			return nil, err
		}

		if err := set.AddKey(jwkKey); err != nil {
			return nil, fmt.Errorf("failed to add key %s to set: %w", key.KeyID, err)
		}
	}

	return set, nil
}
