// Copyright (c) 2025 Justin Cranford
//
//

package jwks

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// Handler serves the GET /.well-known/jwks.json external interface.
type Handler struct {
	logger    *slog.Logger
	publisher *Publisher
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, publisher *Publisher) *Handler {
	return &Handler{logger: logger, publisher: publisher}
}

// ServeHTTP builds and serves the current JWKS. Per §4.7, this endpoint
// answers 200 whenever the key set can be built and never 404s, even with
// an empty key set; a failure to build the set answers 500.
func (h *Handler) ServeHTTP(c *fiber.Ctx) error {
	set, err := h.publisher.CurrentJWKS(c.Context())
	if err != nil {
		h.logger.Error("failed to build jwks", "error", err)

		return fiber.NewError(fiber.StatusInternalServerError, "failed to build key set")
	}

	c.Set(fiber.HeaderCacheControl, "max-age=300, stale-if-error=3600")

	// jwk.Set marshals natively to the {"keys": [...]} wire format.
	return c.Status(fiber.StatusOK).JSON(set)
}
