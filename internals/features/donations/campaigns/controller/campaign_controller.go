package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	dto "donasiku_backend/internals/features/donations/campaigns/dto"
	"donasiku_backend/internals/features/donations/ledger"
	helper "donasiku_backend/internals/helpers"
)

type CampaignController struct {
	Store ledger.Store
}

func NewCampaignController(store ledger.Store) *CampaignController {
	return &CampaignController{Store: store}
}

func campaignID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid campaign id")
	}
	return id, nil
}

// GET /api/donations/campaigns/:id
func (h *CampaignController) GetCampaign(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return err
	}
	cm, err := h.Store.Ledgers().Campaigns.FindByID(c.UserContext(), id)
	if errors.Is(err, ledger.ErrCampaignNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "campaign not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "load campaign failed")
	}
	return helper.JsonOK(c, "ok", dto.FromModel(cm))
}

// GET /api/donations/campaigns/:id/donors
//
// Most recent first, one entry per email. Private donations and
// anonymous donors are left out.
func (h *CampaignController) ListDonors(c *fiber.Ctx) error {
	id, err := campaignID(c)
	if err != nil {
		return err
	}
	l := h.Store.Ledgers()
	if _, err := l.Campaigns.FindByID(c.UserContext(), id); err != nil {
		if errors.Is(err, ledger.ErrCampaignNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "campaign not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "load campaign failed")
	}

	donors, err := l.Payments.CompletedDonors(c.UserContext(), id, false)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "load donors failed")
	}
	pg := helper.ResolvePaging(c, 50, 200)
	all := dto.FromDonors(donors)
	return helper.JsonList(c, "ok", page(all, pg), helper.BuildPagination(int64(len(all)), pg))
}

func page[T any](items []T, pg helper.Paging) []T {
	if pg.Offset >= len(items) {
		return []T{}
	}
	items = items[pg.Offset:]
	if len(items) > pg.Limit {
		items = items[:pg.Limit]
	}
	return items
}
