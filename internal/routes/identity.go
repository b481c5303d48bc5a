package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/calmly-app/calmly/internal/identity"
)

// RegisterIdentityRoutes wires signup and login.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
}
