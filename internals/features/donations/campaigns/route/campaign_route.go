package route

import (
	"github.com/gofiber/fiber/v2"

	campaignController "donasiku_backend/internals/features/donations/campaigns/controller"
)

func CampaignPublicRoutes(r fiber.Router, ctrl *campaignController.CampaignController) {
	g := r.Group("/campaigns")
	g.Get("/:id", ctrl.GetCampaign)
	g.Get("/:id/donors", ctrl.ListDonors) // ?page=&per_page=
}
