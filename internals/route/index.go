package routes

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	authMiddleware "donasiku_backend/internals/middlewares/auth"
	routeDetails "donasiku_backend/internals/route/details"
)

var startTime time.Time

type Options struct {
	DB          *gorm.DB
	JWTSecret   string
	Environment string
	Logger      *slog.Logger
	Donation    routeDetails.Donation
}

func SetupRoutes(app *fiber.App, opts Options) {
	startTime = time.Now()
	log := opts.Logger

	BaseRoutes(app, opts.DB, opts.Environment)

	// ===================== GROUPS =====================
	log.Info("setting up route groups")
	api := app.Group("/api")

	// PUBLIC: donors, no auth
	public := api.Group("/donations")

	// PROVIDERS: authenticated by signature inside the handler
	providers := api.Group("")

	jwt := authMiddleware.AuthJWT(authMiddleware.AuthJWTOpts{
		Secret:              opts.JWTSecret,
		AllowCookieFallback: true,
	})

	// USER: any signed-in donor
	user := api.Group("/u", jwt)

	// ADMIN: operators only
	admin := api.Group("/a", jwt,
		authMiddleware.RequireRoles(authMiddleware.RoleAdmin, authMiddleware.RoleFinance),
	)

	// ===================== MOUNT ROUTES =====================
	log.Info("mounting donation routes")
	routeDetails.DonationPublicRoutes(public, opts.Donation)
	routeDetails.WebhookRoutes(providers, opts.Donation)
	routeDetails.DonationUserRoutes(user, opts.Donation)
	routeDetails.DonationAdminRoutes(admin, opts.Donation)
}
