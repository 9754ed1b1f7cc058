// Copyright (c) 2025 Justin Cranford
//
//

package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mpoauthn/internal/apperr"
	"mpoauthn/internal/domain"
)

func sampleCredential(id string) *domain.Credential {
	return &domain.Credential{
		CredentialID:   []byte(id),
		UserHandle:     []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"),
		Username:       "alice",
		DisplayName:    "Alice",
		PublicKeyCOSE:  []byte("cose-key-bytes"),
		SignatureCount: 0,
	}
}

func TestCredentialRepository_InsertAndLookup(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	cred := sampleCredential("cred-1")
	require.NoError(t, repo.Insert(ctx, cred))

	found, err := repo.LookupByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "alice", found.Username)
}

func TestCredentialRepository_InsertDuplicateFails(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, sampleCredential("cred-dup")))

	err := repo.Insert(ctx, sampleCredential("cred-dup"))
	require.ErrorIs(t, err, apperr.ErrCredentialAlreadyExists)
}

func TestCredentialRepository_LookupByCredentialID_Unknown(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCredentialRepository(db)

	found, err := repo.LookupByCredentialID(context.Background(), []byte("nope"))
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestCredentialRepository_LookupByUsername_UnknownUserReturnsEmpty(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCredentialRepository(db)

	creds, err := repo.LookupByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, creds)
}

func TestCredentialRepository_LookupByUsername_MultipleCredentials(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	c1 := sampleCredential("cred-a")
	c2 := sampleCredential("cred-b")
	require.NoError(t, repo.Insert(ctx, c1))
	require.NoError(t, repo.Insert(ctx, c2))

	creds, err := repo.LookupByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, creds, 2)
}

func TestCredentialRepository_UpdateSignatureCounter_Monotonic(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	cred := sampleCredential("cred-counter")
	cred.SignatureCount = 5
	require.NoError(t, repo.Insert(ctx, cred))

	require.NoError(t, repo.UpdateSignatureCounter(ctx, []byte("cred-counter"), 6))

	found, err := repo.LookupByCredentialID(ctx, []byte("cred-counter"))
	require.NoError(t, err)
	require.Equal(t, uint32(6), found.SignatureCount)
}

func TestCredentialRepository_UpdateSignatureCounter_Regression(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	cred := sampleCredential("cred-regress")
	cred.SignatureCount = 5
	require.NoError(t, repo.Insert(ctx, cred))

	err := repo.UpdateSignatureCounter(ctx, []byte("cred-regress"), 4)
	require.ErrorIs(t, err, apperr.ErrCounterRegression)

	found, lookupErr := repo.LookupByCredentialID(ctx, []byte("cred-regress"))
	require.NoError(t, lookupErr)
	require.Equal(t, uint32(5), found.SignatureCount, "counter must be left unchanged on regression")
}

func TestCredentialRepository_UpdateSignatureCounter_NotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCredentialRepository(db)

	err := repo.UpdateSignatureCounter(context.Background(), []byte("missing"), 1)
	require.ErrorIs(t, err, apperr.ErrCredentialNotFound)
}
