// Copyright (c) 2025 Justin Cranford
//
//

package httpserver

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// NewApp assembles the fiber application exposing every external
// interface of §6: the four ceremony endpoints and the JWKS endpoint plus health,
// readiness, liveness, and metrics probes.
func NewApp(logger *slog.Logger, handlers *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mpoauthn-rp",
		DisableStartupMessage: true,
	})

	app.Post("/register/start", handlers.RegisterStart)
	app.Post("/register/complete", handlers.RegisterComplete)
	app.Post("/authenticate/start", handlers.AuthenticateStart)
	app.Post("/authenticate/complete", handlers.AuthenticateComplete)
	app.Get("/.well-known/jwks.json", handlers.JWKS)

	app.Get("/health", handlers.Health)
	app.Get("/ready", handlers.Health)
	app.Get("/live", handlers.Health)
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("# metrics export is out of scope for the core; this stub keeps the probe contract.\n")
	})

	return app
}
