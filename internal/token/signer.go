// Copyright (c) 2025 Justin Cranford
//
//

// Package token implements the Token Signer (C8): short-lived RS256
// bearer tokens signed with the Rotation Engine's current active pair.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"mpoauthn/internal/rotation"
)

// activeKeyLoader is the single operation the Token Signer needs from the
// Rotation Engine: the current active pair, reloaded on every call.
type activeKeyLoader interface {
	GetActiveSigningKey(ctx context.Context) (*rotation.SigningPair, error)
}

// Signer issues bearer tokens per §4.8. It never caches a signing key
// itself; every call asks the Rotation Engine for the active pair so a
// rotation is reflected on the very next token issued.
type Signer struct {
	keys     activeKeyLoader
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
}

// NewSigner constructs a Signer.
func NewSigner(keys activeKeyLoader, issuer, audience string, lifetime time.Duration) *Signer {
	return &Signer{keys: keys, issuer: issuer, audience: audience, lifetime: lifetime, now: time.Now}
}

// Sign issues a compact RS256 JWS for subject, per §4.8's claims and
// header contract: {iss, aud, sub, iat, exp} and header kid = the active
// key id.
func (s *Signer) Sign(ctx context.Context, subject string) (string, error) {
	pair, err := s.keys.GetActiveSigningKey(ctx)
	if err != nil {
		return "", err
	}

	signingKey, err := jwk.Import(pair.Private)
	if err != nil {
		return "", fmt.Errorf("failed to import signing key: %w", err)
	}

	if err := signingKey.Set(jwk.KeyIDKey, pair.KeyID); err != nil {
		return "", err
	}

	if err := signingKey.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return "", err
	}

	now := s.now().UTC()

	claims := jwt.New()
	if err := claims.Set(jwt.IssuerKey, s.issuer); err != nil {
		return "", err
	}

	if err := claims.Set(jwt.AudienceKey, []string{s.audience}); err != nil {
		return "", err
	}

	if err := claims.Set(jwt.SubjectKey, subject); err != nil {
		return "", err
	}

	if err := claims.Set(jwt.IssuedAtKey, now); err != nil {
		return "", err
	}

	if err := claims.Set(jwt.ExpirationKey, now.Add(s.lifetime)); err != nil {
		return "", err
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.TypeKey, "JWT"); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(claims, jwt.WithKey(jwa.RS256(), signingKey, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), nil
}
