package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/calmly-app/calmly/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds caller-supplied ids before they reach the logs.
const maxRequestIDLength = 128

// RequestID accepts or generates an X-Request-ID, echoes it on the response
// and carries it on the user context so service logs can be correlated.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)

		c.Locals(requestIDHeader, reqID)
		c.SetUserContext(logging.WithRequestID(c.UserContext(), reqID))

		return c.Next()
	}
}
