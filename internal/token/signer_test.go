// Copyright (c) 2025 Justin Cranford
//
//

package token

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/require"

	"mpoauthn/internal/rotation"
	"mpoauthn/internal/shared/crypto/keygen"
)

type stubKeyLoader struct {
	pair *rotation.SigningPair
	err  error
}

func (s *stubKeyLoader) GetActiveSigningKey(_ context.Context) (*rotation.SigningPair, error) {
	return s.pair, s.err
}

func newStubSigningPair(t *testing.T, keyID string) *rotation.SigningPair {
	t.Helper()

	pair, err := keygen.GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	return &rotation.SigningPair{KeyID: keyID, Private: pair.Private, Public: pair.Public}
}

func TestSigner_Sign_ProducesExpectedClaimsAndHeader(t *testing.T) {
	t.Parallel()

	pair := newStubSigningPair(t, "webauthn-bootstrap")
	loader := &stubKeyLoader{pair: pair}

	signer := NewSigner(loader, "https://rp.example.test", "mpoauthn-clients", 15*time.Minute)

	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return fixedNow }

	signed, err := signer.Sign(context.Background(), "alice")
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	message, err := jws.Parse([]byte(signed))
	require.NoError(t, err)
	require.Len(t, message.Signatures(), 1)

	header := message.Signatures()[0].ProtectedHeaders()

	kid, ok := header.KeyID()
	require.True(t, ok)
	require.Equal(t, "webauthn-bootstrap", kid)

	alg, ok := header.Algorithm()
	require.True(t, ok)
	require.Equal(t, jwa.RS256().String(), alg.String())

	var typ string
	require.NoError(t, header.Get(jws.TypeKey, &typ))
	require.Equal(t, "JWT", typ)

	parsed, err := jwt.Parse([]byte(signed), jwt.WithKey(jwa.RS256(), pair.Public), jwt.WithValidate(false))
	require.NoError(t, err)

	iss, ok := parsed.Issuer()
	require.True(t, ok)
	require.Equal(t, "https://rp.example.test", iss)

	aud, ok := parsed.Audience()
	require.True(t, ok)
	require.Equal(t, []string{"mpoauthn-clients"}, aud)

	sub, ok := parsed.Subject()
	require.True(t, ok)
	require.Equal(t, "alice", sub)

	iat, ok := parsed.IssuedAt()
	require.True(t, ok)
	require.Equal(t, fixedNow, iat.UTC())

	exp, ok := parsed.Expiration()
	require.True(t, ok)
	require.Equal(t, fixedNow.Add(15*time.Minute), exp.UTC())
}

func TestSigner_Sign_PropagatesKeyLoadError(t *testing.T) {
	t.Parallel()

	loader := &stubKeyLoader{err: context.Canceled}
	signer := NewSigner(loader, "https://rp.example.test", "mpoauthn-clients", 15*time.Minute)

	_, err := signer.Sign(context.Background(), "alice")
	require.Error(t, err)
}
