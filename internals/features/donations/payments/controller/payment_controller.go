package controller

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"donasiku_backend/internals/features/donations/gateways"
	"donasiku_backend/internals/features/donations/ledger"
	dto "donasiku_backend/internals/features/donations/payments/dto"
	"donasiku_backend/internals/features/donations/payments/service"
	helper "donasiku_backend/internals/helpers"
	authMiddleware "donasiku_backend/internals/middlewares/auth"
)

type PaymentController struct {
	Service *service.Service
	Logger  *slog.Logger
}

func NewPaymentController(svc *service.Service, logger *slog.Logger) *PaymentController {
	return &PaymentController{Service: svc, Logger: logger}
}

/* =======================================================================
   POST /api/donations/payments
======================================================================= */

func (h *PaymentController) CreatePayment(c *fiber.Ctx) error {
	var req dto.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json body")
	}
	req.Normalize()
	if errs := helper.ValidateStruct(&req); errs != nil {
		return helper.JsonValidationError(c, errs)
	}
	if errs := req.AmountErrors(); errs != nil {
		return helper.JsonValidationError(c, errs)
	}

	res, err := h.Service.Create(c.UserContext(), req.ToInput())
	if err != nil {
		return h.createError(c, err)
	}
	return helper.JsonCreated(c, "payment created", dto.FromResult(res))
}

// createError maps service and gateway failures to an actionable response.
func (h *PaymentController) createError(c *fiber.Ctx, err error) error {
	var gwErr *gateways.Error
	switch {
	case errors.As(err, &gwErr) && (gwErr.Code == gateways.CodeAmountMismatch || gwErr.Code == gateways.CodePlanWithoutPrice):
		return helper.JsonError(c, fiber.StatusUnprocessableEntity, gwErr.Message)
	case errors.As(err, &gwErr) && errors.Is(err, gateways.ErrGatewayRejected):
		msg := "payment declined"
		if gwErr.Message != "" {
			msg += ": " + gwErr.Message
		}
		return helper.JsonError(c, fiber.StatusPaymentRequired, msg)
	case errors.Is(err, gateways.ErrGatewayUnavailable):
		return helper.JsonError(c, fiber.StatusBadGateway, "payment provider unavailable, please try again")
	case errors.Is(err, gateways.ErrUnsupported):
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSubscriptionExists):
		return helper.JsonError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAnonymousSubscription),
		errors.Is(err, service.ErrPlanRequired),
		errors.Is(err, service.ErrCampaignClosed):
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrCampaignNotFound), errors.Is(err, ledger.ErrDonorNotFound):
		return helper.JsonError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return helper.JsonError(c, fiber.StatusConflict, "provider transaction already recorded")
	}
	h.Logger.Error("create payment failed", "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, "create payment failed")
}

/* =======================================================================
   GET /api/donations/payments/:id
======================================================================= */

func (h *PaymentController) GetPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	p, err := h.Service.Get(c.UserContext(), id)
	if errors.Is(err, ledger.ErrPaymentNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "payment not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "load payment failed")
	}
	return helper.JsonOK(c, "ok", dto.FromModel(p))
}

/* =======================================================================
   POST /api/a/subscriptions/:id/cancel   (operators)
   POST /api/u/subscriptions/:id/cancel   (the subscribing donor)
======================================================================= */

func (h *PaymentController) CancelSubscription(c *fiber.Ctx) error {
	return h.cancel(c, nil)
}

func (h *PaymentController) CancelOwnSubscription(c *fiber.Ctx) error {
	raw, _ := c.Locals(authMiddleware.LocUserID).(string)
	donorID, err := uuid.Parse(raw)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "token carries no donor id")
	}
	return h.cancel(c, &donorID)
}

func (h *PaymentController) cancel(c *fiber.Ctx, donorID *uuid.UUID) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	var req dto.CancelSubscriptionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json body")
		}
	}
	if errs := helper.ValidateStruct(&req); errs != nil {
		return helper.JsonValidationError(c, errs)
	}

	p, err := h.Service.CancelSubscription(c.UserContext(), service.CancelInput{
		PaymentID: id,
		DonorID:   donorID,
		Reason:    req.Reason,
	})
	var gwErr *gateways.Error
	switch {
	case err == nil:
		return helper.JsonOK(c, "subscription cancelled", dto.FromModel(p))
	case errors.Is(err, ledger.ErrPaymentNotFound), errors.Is(err, service.ErrNotPaymentOwner):
		return fiber.NewError(fiber.StatusNotFound, "payment not found")
	case errors.Is(err, service.ErrNotSubscription), errors.Is(err, gateways.ErrUnsupported):
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSubscriptionClosed):
		return helper.JsonError(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &gwErr) && errors.Is(err, gateways.ErrGatewayRejected):
		return helper.JsonError(c, fiber.StatusUnprocessableEntity, "provider refused the cancellation: "+gwErr.Message)
	case errors.Is(err, gateways.ErrGatewayUnavailable):
		return helper.JsonError(c, fiber.StatusBadGateway, "payment provider unavailable, please try again")
	}
	h.Logger.Error("cancel subscription failed", "payment_id", id, "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, "cancel subscription failed")
}
