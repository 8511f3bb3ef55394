package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	dto "donasiku_backend/internals/features/donations/gateway_events/dto"
	"donasiku_backend/internals/features/donations/gateway_events/repository"
	helper "donasiku_backend/internals/helpers"
)

/* =======================================================================
   Controller (admin, read only)
======================================================================= */

type GatewayEventController struct {
	Repo repository.Repository
}

func NewGatewayEventController(repo repository.Repository) *GatewayEventController {
	return &GatewayEventController{Repo: repo}
}

func (h *GatewayEventController) RegisterRoutes(r fiber.Router) {
	gr := r.Group("/payment-gateway-events")
	gr.Get("/", h.ListEvents) // ?provider=&status=&payment_id=&q=&start=&end=&page=&per_page=
	gr.Get("/:id", h.GetByID)
}

func (h *GatewayEventController) ListEvents(c *fiber.Ctx) error {
	q, err := dto.ParseListQuery(c)
	if err != nil {
		return err
	}
	pg := helper.ResolvePaging(c, 20, 200)

	rows, total, err := h.Repo.List(c.UserContext(), q.Filter(pg.Limit, pg.Offset))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "list gateway events failed")
	}
	return helper.JsonList(c, "ok", dto.FromModels(rows), helper.BuildPagination(total, pg))
}

func (h *GatewayEventController) GetByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	m, err := h.Repo.FindByID(c.UserContext(), id)
	if errors.Is(err, repository.ErrEventNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "event not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "load gateway event failed")
	}
	return helper.JsonOK(c, "ok", dto.FromModel(m, true))
}
