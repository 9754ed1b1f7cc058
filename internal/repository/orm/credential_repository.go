// Copyright (c) 2025 Justin Cranford
//
//

// Package orm implements the Credential Store (C2) and Key Store (C3)
// durable-storage contracts on top of GORM, grounded on the teacher's
// internal/apps/identity/repository/orm and
// internal/identity/repository/orm WebAuthn credential repository.
package orm

import (
	"bytes"
	"context"
	"errors"

	"gorm.io/gorm"

	"mpoauthn/internal/apperr"
	"mpoauthn/internal/domain"
)

// CredentialRepository is the Credential Store contract (C2).
type CredentialRepository interface {
	// Insert fails with apperr.ErrCredentialAlreadyExists on duplicate
	// credential id.
	Insert(ctx context.Context, credential *domain.Credential) error

	// LookupByCredentialID returns nil, nil if the credential is unknown.
	LookupByCredentialID(ctx context.Context, credentialID []byte) (*domain.Credential, error)

	// LookupByUsername never distinguishes "no such user" from "no
	// credentials" — both return an empty slice.
	LookupByUsername(ctx context.Context, username string) ([]domain.Credential, error)

	// UpdateSignatureCounter fails with apperr.ErrCounterRegression if
	// newCount < the currently stored count.
	UpdateSignatureCounter(ctx context.Context, credentialID []byte, newCount uint32) error
}

// GormCredentialRepository is the GORM-backed CredentialRepository.
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository constructs a GormCredentialRepository.
func NewCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

func (r *GormCredentialRepository) Insert(ctx context.Context, credential *domain.Credential) error {
	err := r.db.WithContext(ctx).Create(credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueConstraintErr(err) {
			return apperr.ErrCredentialAlreadyExists
		}

		return apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	return nil
}

func (r *GormCredentialRepository) LookupByCredentialID(ctx context.Context, credentialID []byte) (*domain.Credential, error) {
	var credential domain.Credential

	err := r.db.WithContext(ctx).
		Where("credential_id = ?", credentialID).
		First(&credential).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, apperr.WrapError(apperr.ErrStorageUnavailable, err)
	}

	return &credential, nil
}

func (r *GormCredentialRepository) LookupByUsername(ctx context.Context, username string) ([]domain.Credential, error) {
	var credentials []domain.Credential

	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at ASC").
		Find(&credentials).Error
	if err != nil {
		return nil, apperr.WrapError(apperr.ErrStorageUnavailable, err)
	}

	return credentials, nil
}

func (r *GormCredentialRepository) UpdateSignatureCounter(ctx context.Context, credentialID []byte, newCount uint32) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Credential

		err := tx.Where("credential_id = ?", credentialID).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrCredentialNotFound
		}

		if err != nil {
			return apperr.WrapError(apperr.ErrStorageUnavailable, err)
		}

		if newCount < current.SignatureCount {
			return apperr.ErrCounterRegression
		}

		return tx.Model(&domain.Credential{}).
			Where("credential_id = ?", credentialID).
			Update("signature_count", newCount).Error
	})
}

// isUniqueConstraintErr best-effort detects a unique-constraint violation
// across the sqlite (test) and postgres (production) drivers, since GORM
// does not normalize driver-specific constraint errors.
func isUniqueConstraintErr(err error) bool {
	msg := err.Error()

	return bytes.Contains([]byte(msg), []byte("UNIQUE constraint")) ||
		bytes.Contains([]byte(msg), []byte("duplicate key")) ||
		bytes.Contains([]byte(msg), []byte("SQLSTATE 23505"))
}
