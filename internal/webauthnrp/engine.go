// Copyright (c) 2025 Justin Cranford
//
//

// Package webauthnrp implements the WebAuthn Ceremony Engine (C9): the
// two-phase registration/authentication protocol orchestrating the
// Ceremony Store (C1), the Credential Store (C2), and the Token Signer
// (C8). Origin and RP-ID validation are delegated entirely to
// go-webauthn/webauthn; this package never second-guesses its checks.
package webauthnrp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"mpoauthn/internal/apperr"
	"mpoauthn/internal/ceremony"
	"mpoauthn/internal/domain"
	"mpoauthn/internal/repository/orm"
	"mpoauthn/internal/shared/util/random"
	"mpoauthn/internal/token"
)

// userHandleLength is the 64-byte user handle mandated by §4.9.
const userHandleLength = 64

// Config carries the relying-party identity handed to the WebAuthn
// library, per §4.9's "never bypass the library's checks" contract.
type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	CeremonyTTL   time.Duration
}

// Engine is the WebAuthn Ceremony Engine (C9).
type Engine struct {
	logger      *slog.Logger
	webAuthn    *webauthn.WebAuthn
	ceremonies  ceremony.Store
	credentials orm.CredentialRepository
	signer      *token.Signer
	ceremonyTTL time.Duration
}

// NewEngine constructs an Engine, initializing the underlying WebAuthn
// library with the configured relying-party identity.
func NewEngine(logger *slog.Logger, cfg Config, ceremonies ceremony.Store, credentials orm.CredentialRepository, signer *token.Signer) (*Engine, error) {
	w, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize webauthn library: %w", err)
	}

	return &Engine{
		logger: logger, webAuthn: w, ceremonies: ceremonies, credentials: credentials,
		signer: signer, ceremonyTTL: cfg.CeremonyTTL,
	}, nil
}

// ceremonyUser adapts an in-flight or stored credential owner to
// webauthn.User; it is never persisted itself, only its constituent
// fields.
type ceremonyUser struct {
	userHandle  []byte
	username    string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                     { return u.userHandle }
func (u *ceremonyUser) WebAuthnName() string                   { return u.username }
func (u *ceremonyUser) WebAuthnDisplayName() string             { return u.displayName }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }
func (u *ceremonyUser) WebAuthnIcon() string                    { return "" }

func toLibraryCredential(c domain.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:            c.CredentialID,
		PublicKey:     c.PublicKeyCOSE,
		Authenticator: webauthn.Authenticator{SignCount: c.SignatureCount},
	}
}

// registrationCeremonyPayload is the Ceremony Store payload for an
// in-flight registration: the library's session data plus the user
// attributes needed to reconstruct ceremonyUser at finish time, since
// nothing is persisted until the credential itself is inserted.
type registrationCeremonyPayload struct {
	Session     webauthn.SessionData `json:"session"`
	Username    string                `json:"username"`
	DisplayName string                `json:"display_name"`
	UserHandle  []byte                `json:"user_handle"`
}

// authenticationCeremonyPayload is the Ceremony Store payload for an
// in-flight authentication.
type authenticationCeremonyPayload struct {
	Session  webauthn.SessionData `json:"session"`
	Username string                `json:"username"`
}

// StartRegistration generates a user handle (reusing the existing one if
// this username already has credentials, per §3's "multiple credentials
// may share a user_handle" invariant), builds registration options, and
// stores them under a fresh request id.
func (e *Engine) StartRegistration(ctx context.Context, username, displayName string) (requestID string, optionsJSON []byte, err error) {
	existing, err := e.credentials.LookupByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}

	userHandle, excludeList, err := e.registrationIdentity(existing)
	if err != nil {
		return "", nil, err
	}

	user := &ceremonyUser{userHandle: userHandle, username: username, displayName: displayName}

	creation, session, err := e.webAuthn.BeginRegistration(user, webauthn.WithExclusions(excludeList))
	if err != nil {
		return "", nil, apperr.WrapError(apperr.ErrMalformedRequest, err)
	}

	payload := registrationCeremonyPayload{
		Session: *session, Username: username, DisplayName: displayName, UserHandle: userHandle,
	}

	return e.storeCeremony(ctx, ceremony.KindRegistration, payload, creation)
}

func (e *Engine) registrationIdentity(existing []domain.Credential) ([]byte, []protocol.CredentialDescriptor, error) {
	if len(existing) == 0 {
		userHandle, err := random.GenerateBytes(userHandleLength)
		if err != nil {
			return nil, nil, err
		}

		return userHandle, nil, nil
	}

	excludeList := make([]protocol.CredentialDescriptor, 0, len(existing))
	for _, c := range existing {
		excludeList = append(excludeList, protocol.CredentialDescriptor{
			Type: protocol.PublicKeyCredentialType, CredentialID: c.CredentialID,
		})
	}

	return existing[0].UserHandle, excludeList, nil
}

// FinishRegistration consumes the stored ceremony options, asks the
// library to finish attestation, and inserts the resulting credential.
func (e *Engine) FinishRegistration(ctx context.Context, requestID string, clientCredentialJSON []byte) error {
	record, err := e.ceremonies.Take(ctx, requestID)
	if err != nil {
		return err
	}

	if record == nil {
		return apperr.ErrUnknownCeremony
	}

	var payload registrationCeremonyPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return apperr.WrapError(apperr.ErrUnknownCeremony, err)
	}

	parsedResponse, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(clientCredentialJSON))
	if err != nil {
		return apperr.WrapError(apperr.ErrMalformedRequest, err)
	}

	user := &ceremonyUser{userHandle: payload.UserHandle, username: payload.Username, displayName: payload.DisplayName}

	cred, err := e.webAuthn.CreateCredential(user, payload.Session, parsedResponse)
	if err != nil {
		return apperr.WrapError(apperr.ErrAssertionFailure, err)
	}

	domainCred := &domain.Credential{
		CredentialID: cred.ID, UserHandle: payload.UserHandle, Username: payload.Username,
		DisplayName: payload.DisplayName, PublicKeyCOSE: cred.PublicKey, SignatureCount: cred.Authenticator.SignCount,
	}

	return e.credentials.Insert(ctx, domainCred)
}

// StartAuthentication builds assertion options. When username is nil or
// empty, or when it does not resolve to any stored credential, this falls
// back to a discoverable-credential challenge instead of erroring: an
// unknown username must produce a 200 options response structurally
// identical to a known one, since go-webauthn's BeginLogin rejects a user
// with zero credentials outright and would otherwise leak account
// existence through the 400/200 split.
func (e *Engine) StartAuthentication(ctx context.Context, username *string) (requestID string, optionsJSON []byte, err error) {
	resolvedUsername := ""
	if username != nil {
		resolvedUsername = *username
	}

	var existing []domain.Credential
	if resolvedUsername != "" {
		existing, err = e.credentials.LookupByUsername(ctx, resolvedUsername)
		if err != nil {
			return "", nil, err
		}
	}

	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
	)

	if len(existing) == 0 {
		assertion, session, err = e.webAuthn.BeginDiscoverableLogin()
	} else {
		libCreds := make([]webauthn.Credential, 0, len(existing))
		for _, c := range existing {
			libCreds = append(libCreds, toLibraryCredential(c))
		}

		user := &ceremonyUser{username: resolvedUsername, credentials: libCreds}
		assertion, session, err = e.webAuthn.BeginLogin(user)
	}

	if err != nil {
		return "", nil, apperr.WrapError(apperr.ErrMalformedRequest, err)
	}

	payload := authenticationCeremonyPayload{Session: *session, Username: resolvedUsername}

	return e.storeCeremony(ctx, ceremony.KindAuthentication, payload, assertion)
}

// FinishAuthenticationResult is returned on a successful assertion.
type FinishAuthenticationResult struct {
	Token    string
	Username string
}

// FinishAuthentication consumes the stored ceremony options, asks the
// library to validate the assertion against the credential named by the
// client response, updates the signature counter, and issues a token.
// A counter regression is reported as a generic failure to the caller
// but logged at high severity as a possible cloned authenticator.
func (e *Engine) FinishAuthentication(ctx context.Context, requestID string, clientCredentialJSON []byte) (*FinishAuthenticationResult, error) {
	record, err := e.ceremonies.Take(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, apperr.ErrUnknownCeremony
	}

	var payload authenticationCeremonyPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return nil, apperr.WrapError(apperr.ErrUnknownCeremony, err)
	}

	parsedResponse, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(clientCredentialJSON))
	if err != nil {
		return nil, apperr.WrapError(apperr.ErrMalformedRequest, err)
	}

	stored, err := e.credentials.LookupByCredentialID(ctx, parsedResponse.RawID)
	if err != nil {
		return nil, err
	}

	if stored == nil {
		return nil, apperr.ErrAssertionFailure
	}

	loadUser := func(_, _ []byte) (webauthn.User, error) {
		return &ceremonyUser{
			userHandle: stored.UserHandle, username: stored.Username, displayName: stored.DisplayName,
			credentials: []webauthn.Credential{toLibraryCredential(*stored)},
		}, nil
	}

	// ValidateDiscoverableLogin works for both the username-first and
	// discoverable-credential sessions started in StartAuthentication,
	// since it resolves the user from the response itself rather than
	// from session.UserID.
	updatedCred, err := e.webAuthn.ValidateDiscoverableLogin(loadUser, payload.Session, parsedResponse)
	if err != nil {
		return nil, apperr.WrapError(apperr.ErrAssertionFailure, err)
	}

	// The library flags a non-advancing counter with CloneWarning and keeps
	// the old count, so the store-level check below alone would not see it.
	if updatedCred.Authenticator.CloneWarning {
		e.logger.Error("signature counter regression detected, possible cloned authenticator",
			"credential_id", fmt.Sprintf("%x", stored.CredentialID), "username", stored.Username)

		return nil, apperr.ErrCounterRegression
	}

	if err := e.credentials.UpdateSignatureCounter(ctx, stored.CredentialID, updatedCred.Authenticator.SignCount); err != nil {
		if errors.Is(err, apperr.ErrCounterRegression) {
			e.logger.Error("signature counter regression detected, possible cloned authenticator",
				"credential_id", fmt.Sprintf("%x", stored.CredentialID), "username", stored.Username)
		}

		return nil, err
	}

	tok, err := e.signer.Sign(ctx, stored.Username)
	if err != nil {
		return nil, err
	}

	return &FinishAuthenticationResult{Token: tok, Username: stored.Username}, nil
}

func (e *Engine) storeCeremony(ctx context.Context, kind ceremony.Kind, payload, options any) (requestID string, optionsJSON []byte, err error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal ceremony payload: %w", err)
	}

	requestID, err = e.ceremonies.Put(ctx, kind, payloadJSON, e.ceremonyTTL)
	if err != nil {
		return "", nil, err
	}

	optionsJSON, err = json.Marshal(options)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal ceremony options: %w", err)
	}

	return requestID, optionsJSON, nil
}
