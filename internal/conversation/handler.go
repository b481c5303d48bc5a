package conversation

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const defaultLocale = "en-US"

// Handler exposes the chat endpoint.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler constructs a chat HTTP handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

type chatRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Chat answers one turn. It always responds 200; an unreadable body is
// treated as an empty message.
func (h *Handler) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		req = chatRequest{}
	}
	if req.Language == "" {
		req.Language = defaultLocale
	}

	reply := h.orchestrator.Respond(c.UserContext(), req.Text, req.Language)
	return c.Status(http.StatusOK).JSON(chatResponse{Reply: reply})
}
