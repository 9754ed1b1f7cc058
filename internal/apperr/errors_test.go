// Copyright (c) 2025 Justin Cranford
//
//

package apperr

import (
	"errors"
	http "net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *IdentityError
		expected string
	}{
		{
			name: "without internal error",
			err: &IdentityError{
				Code: "test_error", Message: "Test error message", HTTPStatus: http.StatusBadRequest,
			},
			expected: "test_error: Test error message",
		},
		{
			name: "with internal error",
			err: &IdentityError{
				Code: "test_error", Message: "Test error message", HTTPStatus: http.StatusBadRequest,
				Internal: errors.New("internal issue"),
			},
			expected: "test_error: Test error message (internal: internal issue)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestIdentityError_Unwrap(t *testing.T) {
	t.Parallel()

	internalErr := errors.New("internal error")
	err := &IdentityError{Code: "test", Message: "Test", HTTPStatus: http.StatusInternalServerError, Internal: internalErr}

	require.Equal(t, internalErr, err.Unwrap())
}

func TestIdentityError_Is(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *IdentityError
		target   error
		expected bool
	}{
		{"same code", ErrUnknownCeremony, ErrUnknownCeremony, true},
		{"different code", ErrUnknownCeremony, ErrCeremonyConflict, false},
		{"non-identity error", ErrUnknownCeremony, errors.New("standard error"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, tc.err.Is(tc.target))
		})
	}
}

func TestNewIdentityError(t *testing.T) {
	t.Parallel()

	internalErr := errors.New("database connection lost")
	err := NewIdentityError("db_error", "Database error occurred", http.StatusInternalServerError, internalErr)

	require.Equal(t, "db_error", err.Code)
	require.Equal(t, "Database error occurred", err.Message)
	require.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	require.Equal(t, internalErr, err.Internal)
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	internalErr := errors.New("connection timeout")
	wrapped := WrapError(ErrStorageUnavailable, internalErr)

	require.Equal(t, ErrStorageUnavailable.Code, wrapped.Code)
	require.Equal(t, ErrStorageUnavailable.Message, wrapped.Message)
	require.Equal(t, ErrStorageUnavailable.HTTPStatus, wrapped.HTTPStatus)
	require.Equal(t, internalErr, wrapped.Internal)
}

func TestPredefinedErrors_HTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        *IdentityError
		code       string
		httpStatus int
	}{
		{"MalformedRequest", ErrMalformedRequest, "malformed_request", http.StatusBadRequest},
		{"UnknownCeremony", ErrUnknownCeremony, "unknown_ceremony", http.StatusBadRequest},
		{"CeremonyConflict", ErrCeremonyConflict, "ceremony_conflict", http.StatusInternalServerError},
		{"AssertionFailure", ErrAssertionFailure, "assertion_failure", http.StatusUnauthorized},
		{"CounterRegression", ErrCounterRegression, "counter_regression", http.StatusUnauthorized},
		{"CredentialAlreadyExists", ErrCredentialAlreadyExists, "credential_already_exists", http.StatusInternalServerError},
		{"CredentialNotFound", ErrCredentialNotFound, "credential_not_found", http.StatusNotFound},
		{"KeyBackendFailure", ErrKeyBackendFailure, "key_backend_failure", http.StatusInternalServerError},
		{"KeyNotFound", ErrKeyNotFound, "key_not_found", http.StatusNotFound},
		{"SecondActiveKey", ErrSecondActiveKey, "second_active_key", http.StatusConflict},
		{"InvalidKeyTransition", ErrInvalidKeyTransition, "invalid_key_transition", http.StatusConflict},
		{"DecryptionFailure", ErrDecryptionFailure, "decryption_failure", http.StatusInternalServerError},
		{"ConfigInvalid", ErrConfigInvalid, "config_invalid", http.StatusInternalServerError},
		{"StorageUnavailable", ErrStorageUnavailable, "storage_unavailable", http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.code, tc.err.Code)
			require.Equal(t, tc.httpStatus, tc.err.HTTPStatus)
			require.Nil(t, tc.err.Internal)
		})
	}
}
