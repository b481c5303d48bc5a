package identity

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/calmly-app/calmly/internal/logging"
)

const (
	msgMissingFields = "Missing fields"
	msgUserExists    = "User exists"
	msgTryLater      = "Please try again later"
)

// Handler exposes signup and login endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logging.OrDiscard(logger)}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Signup registers a username/password account.
func (h *Handler) Signup(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusOK).JSON(resultResponse{Message: msgMissingFields})
	}

	user, err := h.service.Signup(c.UserContext(), Credentials{Username: req.Username, Password: req.Password})
	switch {
	case err == nil:
		logging.FromContext(c.UserContext(), h.logger).Info("identity.signup completed", slog.String("user_id", user.ID))
		return c.Status(http.StatusOK).JSON(resultResponse{Success: true})
	case errors.Is(err, ErrValidation):
		return c.Status(http.StatusOK).JSON(resultResponse{Message: msgMissingFields})
	case errors.Is(err, ErrUserExists):
		return c.Status(http.StatusOK).JSON(resultResponse{Message: msgUserExists})
	default:
		logging.FromContext(c.UserContext(), h.logger).Error("identity.signup failed", slog.Any("error", err))
		return c.Status(http.StatusOK).JSON(resultResponse{Message: msgTryLater})
	}
}

// Login verifies credentials. Every authentication failure has the same shape.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusOK).JSON(resultResponse{})
	}

	err := h.service.Login(c.UserContext(), Credentials{Username: req.Username, Password: req.Password})
	switch {
	case err == nil:
		return c.Status(http.StatusOK).JSON(resultResponse{Success: true})
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidCredentials):
		return c.Status(http.StatusOK).JSON(resultResponse{})
	default:
		logging.FromContext(c.UserContext(), h.logger).Error("identity.login failed", slog.Any("error", err))
		return c.Status(http.StatusOK).JSON(resultResponse{})
	}
}
