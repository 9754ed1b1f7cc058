// Copyright (c) 2025 Justin Cranford
//
//

// Package ceremony implements the Ceremony Store (C1): keyed, TTL-bound
// storage of in-flight WebAuthn registration/authentication options.
package ceremony

import (
	"context"
	"encoding/base64"
	"time"

	"mpoauthn/internal/apperr"
	"mpoauthn/internal/shared/util/random"
)

// Kind distinguishes a registration ceremony from an authentication one.
type Kind string

const (
	KindRegistration   Kind = "REGISTRATION"
	KindAuthentication Kind = "AUTHENTICATION"
)

// requestIDEntropyBytes yields 128 bits of entropy per spec.md §3.
const requestIDEntropyBytes = 16

// Record is an opaque ceremony-options blob keyed by a server-issued
// request id, per the Ceremony options record of the data model.
type Record struct {
	RequestID string
	Kind      Kind
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the Ceremony Store contract (C1). Implementations must make
// Put-then-Take atomic per request id (take semantics: reading consumes
// the record) and must make expired records unreachable.
type Store interface {
	// Put stores payload under a fresh request id. Fails with
	// apperr.ErrCeremonyConflict if the id collides (practically
	// unreachable given the id's entropy, but the contract is explicit).
	Put(ctx context.Context, kind Kind, payload []byte, ttl time.Duration) (requestID string, err error)

	// Take atomically returns and removes the record for requestID.
	// Returns nil, nil if absent or expired — never an error for a
	// simple miss.
	Take(ctx context.Context, requestID string) (*Record, error)
}

// NewRequestID generates a server-issued opaque request identifier: 128
// bits of entropy, URL-safe, unpadded base64.
func NewRequestID() (string, error) {
	raw, err := random.GenerateBytes(requestIDEntropyBytes)
	if err != nil {
		return "", apperr.WrapError(apperr.ErrStorageUnavailable, err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}
