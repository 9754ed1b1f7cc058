// Copyright (c) 2025 Justin Cranford
//
//

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// KeyStatus is the four-phase lifecycle status of a JWT signing key.
type KeyStatus string

const (
	KeyStatusPending KeyStatus = "PENDING"
	KeyStatusActive  KeyStatus = "ACTIVE"
	KeyStatusRetired KeyStatus = "RETIRED"
	KeyStatusDeleted KeyStatus = "DELETED"
)

// legalKeyTransitions enumerates the only legal status progressions.
var legalKeyTransitions = map[KeyStatus]KeyStatus{
	KeyStatusPending: KeyStatusActive,
	KeyStatusActive:  KeyStatusRetired,
	KeyStatusRetired: KeyStatusDeleted,
}

// IsLegalKeyTransition reports whether from -> to is one step of
// PENDING -> ACTIVE -> RETIRED -> DELETED.
func IsLegalKeyTransition(from, to KeyStatus) bool {
	return legalKeyTransitions[from] == to
}

// KeyMetadata is a free-form JSON map stored alongside a key record
// (rotation reason, previous key id, operator flags).
type KeyMetadata map[string]any

// Value implements driver.Valuer so GORM can persist KeyMetadata as JSON.
func (m KeyMetadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key metadata: %w", err)
	}

	return string(b), nil
}

// Scan implements sql.Scanner so GORM can hydrate KeyMetadata from JSON.
func (m *KeyMetadata) Scan(value any) error {
	if value == nil {
		*m = KeyMetadata{}

		return nil
	}

	var raw []byte

	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for key metadata: %T", value)
	}

	if len(raw) == 0 {
		*m = KeyMetadata{}

		return nil
	}

	parsed := KeyMetadata{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to unmarshal key metadata: %w", err)
	}

	*m = parsed

	return nil
}

// Key is a JWT signing key record, per the JWT signing key record of the
// data model. At most one row may have Status == ACTIVE; enforced both by
// a storage-level unique partial index and by the repository layer.
type Key struct {
	KeyID               string      `gorm:"column:key_id;primaryKey"`
	PrivateKeyEncrypted string      `gorm:"column:private_key_encrypted;not null"`
	PublicKeyPEM        string      `gorm:"column:public_key_pem;not null"`
	Algorithm           string      `gorm:"column:algorithm;not null"`
	KeySize             int         `gorm:"column:key_size;not null"`
	Status              KeyStatus   `gorm:"column:status;not null;index"`
	CreatedAt           time.Time   `gorm:"column:created_at;not null"`
	ActivatedAt         *time.Time  `gorm:"column:activated_at"`
	RetiredAt           *time.Time  `gorm:"column:retired_at"`
	ExpiresAt           *time.Time  `gorm:"column:expires_at"`
	Metadata            KeyMetadata `gorm:"column:metadata;type:text"`
}

// TableName fixes the table name regardless of the Go type name.
func (Key) TableName() string {
	return "jwt_signing_keys"
}

// BeforeCreate stamps CreatedAt and validates Status/Algorithm.
func (k *Key) BeforeCreate(_ *gorm.DB) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}

	if k.Algorithm == "" {
		k.Algorithm = "RS256"
	}

	if k.Status == "" {
		return errors.New("key status must be set before insert")
	}

	return nil
}

// IsExpired reports whether the key's ExpiresAt has passed as of now.
func (k *Key) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// KeyAuditEventType enumerates the append-only key audit log's event kinds.
type KeyAuditEventType string

const (
	KeyAuditEventGenerated KeyAuditEventType = "GENERATED"
	KeyAuditEventActivated KeyAuditEventType = "ACTIVATED"
	KeyAuditEventRetired   KeyAuditEventType = "RETIRED"
	KeyAuditEventDeleted   KeyAuditEventType = "DELETED"
)

// KeyAuditEvent is one row of the append-only jwt_key_audit_log.
type KeyAuditEvent struct {
	ID        uint64            `gorm:"column:id;primaryKey;autoIncrement"`
	KeyID     string            `gorm:"column:key_id;index;not null"`
	Event     KeyAuditEventType `gorm:"column:event;not null"`
	Timestamp time.Time         `gorm:"column:timestamp;not null"`
	Metadata  KeyMetadata       `gorm:"column:metadata;type:text"`
}

// TableName fixes the table name regardless of the Go type name.
func (KeyAuditEvent) TableName() string {
	return "jwt_key_audit_log"
}

// BeforeCreate stamps Timestamp if it was left zero.
func (e *KeyAuditEvent) BeforeCreate(_ *gorm.DB) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	return nil
}
