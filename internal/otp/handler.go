package otp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/calmly-app/calmly/internal/logging"
)

// Handler exposes the OTP endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs an OTP HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logging.OrDiscard(logger)}
}

type sendRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Password string `json:"password"`
}

type resultResponse struct {
	Success bool `json:"success"`
}

// Send issues a code for the requested email.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusOK).JSON(resultResponse{})
	}

	if _, err := h.service.Issue(c.UserContext(), req.Email); err != nil {
		if !errors.Is(err, ErrValidation) {
			logging.FromContext(c.UserContext(), h.logger).Error("otp.send failed", slog.Any("error", err))
		}
		return c.Status(http.StatusOK).JSON(resultResponse{})
	}
	return c.Status(http.StatusOK).JSON(resultResponse{Success: true})
}

// Verify checks a code and registers the account it authorizes.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusOK).JSON(resultResponse{})
	}

	err := h.service.Verify(c.UserContext(), req.Email, req.OTP, req.Password)
	switch {
	case err == nil:
		return c.Status(http.StatusOK).JSON(resultResponse{Success: true})
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrMismatch), errors.Is(err, ErrExpired):
		logging.FromContext(c.UserContext(), h.logger).Info("otp.verify rejected", slog.String("reason", err.Error()))
		return c.Status(http.StatusOK).JSON(resultResponse{})
	default:
		logging.FromContext(c.UserContext(), h.logger).Error("otp.verify failed", slog.Any("error", err))
		return c.Status(http.StatusOK).JSON(resultResponse{})
	}
}
