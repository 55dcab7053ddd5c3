package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const CtxRequestID = "request_id"

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an id so relay audit entries
// and log lines can be correlated. Caller-supplied ids are kept only if they
// parse as a UUID.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.New().String()
		}
		c.Locals(CtxRequestID, reqID)
		c.Set(requestIDHeader, reqID)
		return c.Next()
	}
}
