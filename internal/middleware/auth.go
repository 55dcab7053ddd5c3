package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/auth"
)

const CtxOperator = "operator"

// OperatorMiddleware protects the audit surface. Unlike the signed-request
// endpoints this is plain bearer auth for humans and dashboards.
func OperatorMiddleware(secret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseOperatorJWT(secret, tokenStr)
		if err != nil {
			log.Debug("operator jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxOperator, claims.Operator)
		return c.Next()
	}
}

func GetOperator(c *fiber.Ctx) string {
	operator, _ := c.Locals(CtxOperator).(string)
	return operator
}
