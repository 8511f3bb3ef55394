package route

import (
	"github.com/gofiber/fiber/v2"

	paymentController "donasiku_backend/internals/features/donations/payments/controller"
	"donasiku_backend/internals/middlewares"
)

func PaymentPublicRoutes(r fiber.Router, ctrl *paymentController.PaymentController) {
	g := r.Group("/payments")
	g.Post("/", middlewares.PaymentRateLimiter(), ctrl.CreatePayment) // body: CreatePaymentRequest
	g.Get("/:id", ctrl.GetPayment)
}

func PaymentAdminRoutes(r fiber.Router, ctrl *paymentController.PaymentController) {
	r.Post("/subscriptions/:id/cancel", ctrl.CancelSubscription) // body: CancelSubscriptionRequest (optional)
}

// PaymentUserRoutes expect the donor id in the token.
func PaymentUserRoutes(r fiber.Router, ctrl *paymentController.PaymentController) {
	r.Post("/subscriptions/:id/cancel", ctrl.CancelOwnSubscription)
}
