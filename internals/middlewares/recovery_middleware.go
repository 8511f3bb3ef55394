package middlewares

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// RecoveryMiddleware turns a panic into a 500 and logs it.
func RecoveryMiddleware(logger *slog.Logger) fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error("panic recovered",
				"method", c.Method(), "path", c.Path(),
				"request_id", c.Locals(RequestIDKey), "panic", fmt.Sprint(e))
		},
	})
}
