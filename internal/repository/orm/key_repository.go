// Copyright (c) 2025 Justin Cranford
//
//

package orm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mpoauthn/internal/apperr"
	"mpoauthn/internal/domain"
)

// KeyRepository is the Key Store contract (C3). Save, UpdateStatus and
// Delete write a matching audit entry in the same transaction as the data
// change; UpdateExpiration changes only expires_at and writes no audit
// entry. save/update_status reject transitions that would create a second
// ACTIVE row.
type KeyRepository interface {
	Save(ctx context.Context, key *domain.Key) error
	Get(ctx context.Context, keyID string) (*domain.Key, error)
	GetActive(ctx context.Context) (*domain.Key, error)
	ListByStatus(ctx context.Context, status domain.KeyStatus) ([]domain.Key, error)
	ListPublishable(ctx context.Context) ([]domain.Key, error)
	UpdateStatus(ctx context.Context, keyID string, newStatus domain.KeyStatus, timestamp time.Time) error
	UpdateExpiration(ctx context.Context, keyID string, expiresAt time.Time) error
	Delete(ctx context.Context, keyID string) error
	ListAudit(ctx context.Context, keyID string) ([]domain.KeyAuditEvent, error)
}

// GormKeyRepository is the GORM-backed KeyRepository.
type GormKeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository constructs a GormKeyRepository.
func NewKeyRepository(db *gorm.DB) *GormKeyRepository {
	return &GormKeyRepository{db: db}
}

func (r *GormKeyRepository) Save(ctx context.Context, key *domain.Key) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if key.Status == domain.KeyStatusActive {
			if err := rejectIfActiveExists(tx, ""); err != nil {
				return err
			}
		}

		if err := tx.Create(key).Error; err != nil {
			return apperr.WrapError(apperr.ErrKeyBackendFailure, err)
		}

		return writeAudit(tx, key.KeyID, domain.KeyAuditEventGenerated, key.Metadata)
	})
}

func (r *GormKeyRepository) Get(ctx context.Context, keyID string) (*domain.Key, error) {
	var key domain.Key

	err := r.db.WithContext(ctx).Where("key_id = ?", keyID).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	return &key, nil
}

func (r *GormKeyRepository) GetActive(ctx context.Context) (*domain.Key, error) {
	var key domain.Key

	err := r.db.WithContext(ctx).Where("status = ?", domain.KeyStatusActive).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	return &key, nil
}

func (r *GormKeyRepository) ListByStatus(ctx context.Context, status domain.KeyStatus) ([]domain.Key, error) {
	var keys []domain.Key

	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	return keys, nil
}

// ListPublishable returns ACTIVE ∪ RETIRED, ACTIVE first then RETIRED
// newest-first, per the JWKS Publisher's ordering contract (§4.7).
func (r *GormKeyRepository) ListPublishable(ctx context.Context) ([]domain.Key, error) {
	active, err := r.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	retired, err := r.ListByStatus(ctx, domain.KeyStatusRetired)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Key, 0, len(retired)+1)
	if active != nil {
		result = append(result, *active)
	}

	result = append(result, retired...)

	return result, nil
}

func (r *GormKeyRepository) UpdateStatus(ctx context.Context, keyID string, newStatus domain.KeyStatus, timestamp time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var key domain.Key

		err := tx.Where("key_id = ?", keyID).First(&key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrKeyNotFound
		}

		if err != nil {
			return apperr.WrapError(apperr.ErrKeyBackendFailure, err)
		}

		if !domain.IsLegalKeyTransition(key.Status, newStatus) {
			return apperr.ErrInvalidKeyTransition
		}

		if newStatus == domain.KeyStatusActive {
			if err := rejectIfActiveExists(tx, keyID); err != nil {
				return err
			}
		}

		updates := map[string]any{"status": newStatus}

		var event domain.KeyAuditEventType

		switch newStatus {
		case domain.KeyStatusActive:
			updates["activated_at"] = timestamp
			event = domain.KeyAuditEventActivated
		case domain.KeyStatusRetired:
			updates["retired_at"] = timestamp
			event = domain.KeyAuditEventRetired
		case domain.KeyStatusDeleted:
			event = domain.KeyAuditEventDeleted
		}

		if err := tx.Model(&domain.Key{}).Where("key_id = ?", keyID).Updates(updates).Error; err != nil {
			return apperr.WrapError(apperr.ErrKeyBackendFailure, err)
		}

		return writeAudit(tx, keyID, event, nil)
	})
}

func (r *GormKeyRepository) UpdateExpiration(ctx context.Context, keyID string, expiresAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Key{}).
		Where("key_id = ?", keyID).
		Update("expires_at", expiresAt).Error
	if err != nil {
		return apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	return nil
}

func (r *GormKeyRepository) Delete(ctx context.Context, keyID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("key_id = ?", keyID).Delete(&domain.Key{}).Error; err != nil {
			return apperr.WrapError(apperr.ErrKeyBackendFailure, err)
		}

		return writeAudit(tx, keyID, domain.KeyAuditEventDeleted, nil)
	})
}

func (r *GormKeyRepository) ListAudit(ctx context.Context, keyID string) ([]domain.KeyAuditEvent, error) {
	var events []domain.KeyAuditEvent

	err := r.db.WithContext(ctx).
		Where("key_id = ?", keyID).
		Order("timestamp ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	return events, nil
}

// rejectIfActiveExists enforces the single-ACTIVE invariant at the
// application level, complementing the storage-level unique partial
// index. excludeKeyID lets UpdateStatus re-check without tripping over
// the very row it is about to activate (it will not yet be ACTIVE at
// check time, so this is belt-and-suspenders rather than load-bearing).
func rejectIfActiveExists(tx *gorm.DB, excludeKeyID string) error {
	query := tx.Model(&domain.Key{}).Where("status = ?", domain.KeyStatusActive)
	if excludeKeyID != "" {
		query = query.Where("key_id <> ?", excludeKeyID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	if count > 0 {
		return apperr.ErrSecondActiveKey
	}

	return nil
}

func writeAudit(tx *gorm.DB, keyID string, event domain.KeyAuditEventType, metadata domain.KeyMetadata) error {
	audit := &domain.KeyAuditEvent{KeyID: keyID, Event: event, Timestamp: time.Now().UTC(), Metadata: metadata}
	if err := tx.Create(audit).Error; err != nil {
		return apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	return nil
}
