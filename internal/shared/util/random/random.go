// Copyright (c) 2025 Justin Cranford
//
//

// Package random provides cryptographically secure byte generation used for
// ceremony request ids and WebAuthn user handles.
package random

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// GenerateBytes returns length cryptographically random bytes.
func GenerateBytes(length int) ([]byte, error) {
	if length < 1 {
		return nil, errors.New("length can't be less than 1")
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}

	return buf, nil
}
