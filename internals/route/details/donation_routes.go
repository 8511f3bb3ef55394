package details

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	campaignController "donasiku_backend/internals/features/donations/campaigns/controller"
	campaignRoute "donasiku_backend/internals/features/donations/campaigns/route"
	gatewayEventController "donasiku_backend/internals/features/donations/gateway_events/controller"
	"donasiku_backend/internals/features/donations/gateway_events/repository"
	"donasiku_backend/internals/features/donations/gateways"
	"donasiku_backend/internals/features/donations/ledger"
	paymentController "donasiku_backend/internals/features/donations/payments/controller"
	paymentRoute "donasiku_backend/internals/features/donations/payments/route"
	"donasiku_backend/internals/features/donations/payments/service"
	webhookController "donasiku_backend/internals/features/donations/webhooks/controller"
)

// Donation is everything the donation routes are built from.
type Donation struct {
	Store    ledger.Store
	Registry *gateways.Registry
	Engine   webhookController.Reconciler
	Payments *service.Service
	Events   repository.Repository
	Logger   *slog.Logger
}

func DonationPublicRoutes(r fiber.Router, d Donation) {
	paymentRoute.PaymentPublicRoutes(r, paymentController.NewPaymentController(d.Payments, d.Logger))
	campaignRoute.CampaignPublicRoutes(r, campaignController.NewCampaignController(d.Store))
}

// WebhookRoutes must sit outside any auth or body-rewriting middleware;
// signatures are computed over the raw body.
func WebhookRoutes(r fiber.Router, d Donation) {
	webhookController.NewWebhookController(d.Registry, d.Engine, d.Events, d.Logger).RegisterRoutes(r)
}

func DonationAdminRoutes(r fiber.Router, d Donation) {
	gatewayEventController.NewGatewayEventController(d.Events).RegisterRoutes(r)
	paymentRoute.PaymentAdminRoutes(r, paymentController.NewPaymentController(d.Payments, d.Logger))
}

// DonationUserRoutes serve signed-in donors acting on their own payments.
func DonationUserRoutes(r fiber.Router, d Donation) {
	paymentRoute.PaymentUserRoutes(r, paymentController.NewPaymentController(d.Payments, d.Logger))
}
