package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/calmly-app/calmly/internal/otp"
)

// RegisterOTPRoutes wires email code registration.
func RegisterOTPRoutes(r fiber.Router, h *otp.Handler) {
	r.Post("/send-otp", h.Send)
	r.Post("/verify-otp", h.Verify)
}
