package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/calmly-app/calmly/internal/conversation"
)

// RegisterChatRoutes wires the chat endpoint behind the given middleware.
func RegisterChatRoutes(r fiber.Router, h *conversation.Handler, mw ...fiber.Handler) {
	handlers := append(mw, h.Chat)
	r.Post("/chat", handlers...)
}
