package middlewares

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"donasiku_backend/internals/middlewares/logger"
)

type SetupOptions struct {
	Logger      *slog.Logger
	CorsOrigins []string
	TimeZone    string
}

// SetupMiddlewares installs the app-wide chain. Order matters: recovery
// first so it sees panics from everything after it.
func SetupMiddlewares(app *fiber.App, opts SetupOptions) {
	app.Use(RecoveryMiddleware(opts.Logger))
	app.Use(RequestID())
	app.Use(logger.LoggerMiddleware(opts.TimeZone))
	app.Use(CorsMiddleware(opts.CorsOrigins))
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(GlobalRateLimiter())
}
