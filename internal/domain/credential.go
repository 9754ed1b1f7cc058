// Copyright (c) 2025 Justin Cranford
//
//

// Package domain holds the GORM-backed persistence models for WebAuthn
// credentials and JWT signing keys.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Credential represents one attested authenticator bound to one user,
// per the Credential record of the data model.
type Credential struct {
	CredentialID    []byte `gorm:"column:credential_id;primaryKey"`
	UserHandle      []byte `gorm:"column:user_handle;size:64;not null"`
	Username        string `gorm:"column:username;index;not null"`
	DisplayName     string `gorm:"column:display_name;not null"`
	PublicKeyCOSE   []byte `gorm:"column:public_key_cose;not null"`
	SignatureCount  uint32 `gorm:"column:signature_count;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

// TableName fixes the table name regardless of the Go type name.
func (Credential) TableName() string {
	return "credentials"
}

// BeforeCreate stamps CreatedAt if it was left zero.
func (c *Credential) BeforeCreate(_ *gorm.DB) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return nil
}
