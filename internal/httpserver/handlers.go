// Copyright (c) 2025 Justin Cranford
//
//

// Package httpserver wires the external HTTP interfaces of §6: the
// registration/authentication ceremony endpoints, the JWKS publisher,
// and the health/readiness/liveness/metrics probes.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"mpoauthn/internal/apperr"
	"mpoauthn/internal/jwks"
	"mpoauthn/internal/webauthnrp"
)

// ceremonyEngine is the subset of webauthnrp.Engine the HTTP layer needs.
type ceremonyEngine interface {
	StartRegistration(ctx context.Context, username, displayName string) (requestID string, optionsJSON []byte, err error)
	FinishRegistration(ctx context.Context, requestID string, clientCredentialJSON []byte) error
	StartAuthentication(ctx context.Context, username *string) (requestID string, optionsJSON []byte, err error)
	FinishAuthentication(ctx context.Context, requestID string, clientCredentialJSON []byte) (*webauthnrp.FinishAuthenticationResult, error)
}

// Handlers holds the ceremony engine and JWKS handler bound to fiber
// routes by NewApp.
type Handlers struct {
	logger   *slog.Logger
	ceremony ceremonyEngine
	jwks     *jwks.Handler
}

// NewHandlers constructs Handlers.
func NewHandlers(logger *slog.Logger, ceremony ceremonyEngine, jwksHandler *jwks.Handler) *Handlers {
	return &Handlers{logger: logger, ceremony: ceremony, jwks: jwksHandler}
}

type registerStartRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type registerStartResponse struct {
	RequestID                         string          `json:"requestId"`
	PublicKeyCredentialCreationOptions json.RawMessage `json:"publicKeyCredentialCreationOptions"`
}

func (h *Handlers) RegisterStart(c *fiber.Ctx) error {
	var req registerStartRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.ErrMalformedRequest)
	}

	requestID, options, err := h.ceremony.StartRegistration(c.Context(), req.Username, req.DisplayName)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(registerStartResponse{RequestID: requestID, PublicKeyCredentialCreationOptions: options})
}

type ceremonyCompleteRequest struct {
	RequestID  string          `json:"requestId"`
	Credential json.RawMessage `json:"credential"`
}

type successMessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handlers) RegisterComplete(c *fiber.Ctx) error {
	var req ceremonyCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.ErrMalformedRequest)
	}

	if err := h.ceremony.FinishRegistration(c.Context(), req.RequestID, req.Credential); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(successMessageResponse{Success: true, Message: "Registration successful"})
}

type authenticateStartRequest struct {
	Username *string `json:"username,omitempty"`
}

type authenticateStartResponse struct {
	RequestID                       string          `json:"requestId"`
	PublicKeyCredentialRequestOptions json.RawMessage `json:"publicKeyCredentialRequestOptions"`
}

func (h *Handlers) AuthenticateStart(c *fiber.Ctx) error {
	var req authenticateStartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondError(c, apperr.ErrMalformedRequest)
		}
	}

	requestID, options, err := h.ceremony.StartAuthentication(c.Context(), req.Username)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(authenticateStartResponse{RequestID: requestID, PublicKeyCredentialRequestOptions: options})
}

type authenticateCompleteResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (h *Handlers) AuthenticateComplete(c *fiber.Ctx) error {
	var req ceremonyCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.ErrMalformedRequest)
	}

	result, err := h.ceremony.FinishAuthentication(c.Context(), req.RequestID, req.Credential)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(authenticateCompleteResponse{Success: true, Username: result.Username, Token: result.Token})
}

func (h *Handlers) JWKS(c *fiber.Ctx) error {
	return h.jwks.ServeHTTP(c)
}

func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// respondError maps an apperr.IdentityError to its configured HTTP
// status, per §7's disposition table. Unrecognized errors are treated
// as internal storage failures rather than leaking detail to the
// client.
func respondError(c *fiber.Ctx, err error) error {
	var identityErr *apperr.IdentityError
	if !errors.As(err, &identityErr) {
		identityErr = apperr.WrapError(apperr.ErrStorageUnavailable, err)
	}

	return c.Status(identityErr.HTTPStatus).JSON(fiber.Map{"success": false, "message": identityErr.Message})
}
