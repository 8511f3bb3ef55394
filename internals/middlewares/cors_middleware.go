package middlewares

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

var defaultOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5500",
}

// CorsMiddleware allows the donation front-ends. Webhook calls are
// server-to-server and unaffected.
func CorsMiddleware(origins []string) fiber.Handler {
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	joined := strings.Join(origins, ", ")
	return cors.New(cors.Config{
		AllowOrigins: joined,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",

		// fiber rejects credentials with a wildcard origin
		AllowCredentials: !strings.Contains(joined, "*"),
	})
}
