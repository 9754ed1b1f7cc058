// Copyright (c) 2025 Justin Cranford
//
//

// Package apperr defines the structured error type and sentinel errors used
// across the relying-party service, matching the error-kind/disposition
// table of the core specification.
package apperr

import (
	"errors"
	"fmt"
	http "net/http"
)

// IdentityError is a structured application error carrying an HTTP
// disposition and an optional wrapped internal cause.
type IdentityError struct {
	Code       string
	Message    string
	HTTPStatus int
	Internal   error
}

func (e *IdentityError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %s)", e.Code, e.Message, e.Internal.Error())
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped internal cause to errors.Is/errors.As.
func (e *IdentityError) Unwrap() error {
	return e.Internal
}

// Is reports whether target is an *IdentityError with the same Code.
func (e *IdentityError) Is(target error) bool {
	var other *IdentityError
	if !errors.As(target, &other) {
		return false
	}

	return e.Code == other.Code
}

// NewIdentityError constructs an IdentityError.
func NewIdentityError(code, message string, httpStatus int, internal error) *IdentityError {
	return &IdentityError{Code: code, Message: message, HTTPStatus: httpStatus, Internal: internal}
}

// WrapError returns a copy of base carrying internal as its wrapped cause.
func WrapError(base *IdentityError, internal error) *IdentityError {
	return &IdentityError{
		Code:       base.Code,
		Message:    base.Message,
		HTTPStatus: base.HTTPStatus,
		Internal:   internal,
	}
}

// Sentinel errors, one per disposition row in the error-handling design.
var (
	ErrMalformedRequest = &IdentityError{
		Code: "malformed_request", Message: "The request body is malformed.",
		HTTPStatus: http.StatusBadRequest,
	}
	ErrUnknownCeremony = &IdentityError{
		Code: "unknown_ceremony", Message: "The ceremony request is unknown or has expired.",
		HTTPStatus: http.StatusBadRequest,
	}
	ErrCeremonyConflict = &IdentityError{
		Code: "ceremony_conflict", Message: "A ceremony with this request id already exists.",
		HTTPStatus: http.StatusInternalServerError,
	}
	ErrAssertionFailure = &IdentityError{
		Code: "assertion_failure", Message: "WebAuthn verification failed.",
		HTTPStatus: http.StatusUnauthorized,
	}
	ErrCounterRegression = &IdentityError{
		Code: "counter_regression", Message: "Authentication failed.",
		HTTPStatus: http.StatusUnauthorized,
	}
	ErrCredentialAlreadyExists = &IdentityError{
		Code: "credential_already_exists", Message: "A credential with this id already exists.",
		HTTPStatus: http.StatusInternalServerError,
	}
	ErrCredentialNotFound = &IdentityError{
		Code: "credential_not_found", Message: "No such credential.",
		HTTPStatus: http.StatusNotFound,
	}
	ErrKeyBackendFailure = &IdentityError{
		Code: "key_backend_failure", Message: "The key store is unavailable.",
		HTTPStatus: http.StatusInternalServerError,
	}
	ErrKeyNotFound = &IdentityError{
		Code: "key_not_found", Message: "No such signing key.",
		HTTPStatus: http.StatusNotFound,
	}
	ErrSecondActiveKey = &IdentityError{
		Code: "second_active_key", Message: "An ACTIVE key already exists.",
		HTTPStatus: http.StatusConflict,
	}
	ErrInvalidKeyTransition = &IdentityError{
		Code: "invalid_key_transition", Message: "The requested key status transition is not legal.",
		HTTPStatus: http.StatusConflict,
	}
	ErrDecryptionFailure = &IdentityError{
		Code: "decryption_failure", Message: "Private key material could not be decrypted.",
		HTTPStatus: http.StatusInternalServerError,
	}
	ErrConfigInvalid = &IdentityError{
		Code: "config_invalid", Message: "Configuration is invalid.",
		HTTPStatus: http.StatusInternalServerError,
	}
	ErrStorageUnavailable = &IdentityError{
		Code: "storage_unavailable", Message: "The storage backend is unavailable.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
