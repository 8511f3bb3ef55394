package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	eventModel "donasiku_backend/internals/features/donations/gateway_events/model"
	"donasiku_backend/internals/features/donations/gateway_events/repository"
	"donasiku_backend/internals/features/donations/gateways"
	"donasiku_backend/internals/features/donations/gateways/coinpayments"
	"donasiku_backend/internals/features/donations/gateways/stripe"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
	"donasiku_backend/internals/features/donations/reconciliation"
	helper "donasiku_backend/internals/helpers"
)

// Reconciler is the part of the engine the webhook endpoints drive.
type Reconciler interface {
	Reconcile(ctx context.Context, ev *gateways.Event) (reconciliation.Outcome, error)
	RejectUnauthenticated(ctx context.Context, provider paymentModel.PaymentProvider, donorHint string)
}

// signature headers kept on the event log row
var signatureHeaders = map[paymentModel.PaymentProvider]string{
	paymentModel.ProviderStripe:       stripe.SignatureHeader,
	paymentModel.ProviderPaypal:       "Paypal-Transmission-Sig",
	paymentModel.ProviderCoinPayments: coinpayments.SignatureHeader,
}

type WebhookController struct {
	Registry *gateways.Registry
	Engine   Reconciler
	Events   repository.Repository
	Logger   *slog.Logger
}

func NewWebhookController(reg *gateways.Registry, engine Reconciler, events repository.Repository, logger *slog.Logger) *WebhookController {
	return &WebhookController{Registry: reg, Engine: engine, Events: events, Logger: logger}
}

func (h *WebhookController) RegisterRoutes(r fiber.Router) {
	g := r.Group("/webhooks")
	g.Post("/stripe", h.Handle(paymentModel.ProviderStripe))
	g.Post("/paypal", h.Handle(paymentModel.ProviderPaypal))
	g.Post("/coinpayments", h.Handle(paymentModel.ProviderCoinPayments)) // ?userId=<donor id>
	g.Post("/midtrans", h.Handle(paymentModel.ProviderMidtrans))
}

// Handle authenticates and applies one delivery.
//
//	200  processed, duplicate, ignored, stale, unknown payment, malformed,
//	     capture refused
//	403  signature rejected (nothing written besides the log row)
//	500  anything that should make the provider retry
func (h *WebhookController) Handle(provider paymentModel.PaymentProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		dec, err := h.Registry.Decoder(provider)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "provider not configured")
		}

		// fiber reuses the request buffer after the handler returns
		body := append([]byte(nil), c.Body()...)
		req := gateways.WebhookRequest{
			Body:   body,
			Header: requestHeader(c),
			Query:  requestQuery(c),
		}

		ev, decErr := dec.Decode(ctx, req)
		row := h.record(ctx, provider, req, ev)

		switch {
		case decErr == nil:
		case errors.Is(decErr, gateways.ErrInvalidSignature):
			h.finish(ctx, row, repository.Finish{Status: eventModel.GatewayEventStatusFailed, Result: "unauthenticated", Error: decErr.Error()})
			h.Engine.RejectUnauthenticated(ctx, provider, req.Query.Get(coinpayments.DonorQueryParam))
			return helper.JsonError(c, fiber.StatusForbidden, "invalid signature")
		case errors.Is(decErr, gateways.ErrMalformedPayload):
			h.Logger.Warn("malformed webhook payload", "provider", provider, "error", decErr)
			h.finish(ctx, row, repository.Finish{Status: eventModel.GatewayEventStatusIgnored, Result: "malformed", Error: decErr.Error()})
			return helper.JsonOK(c, "received", fiber.Map{"result": "malformed"})
		default:
			h.Logger.Error("webhook decode failed", "provider", provider, "error", decErr)
			h.finish(ctx, row, repository.Finish{Status: eventModel.GatewayEventStatusFailed, Error: decErr.Error()})
			return fiber.NewError(fiber.StatusInternalServerError, "webhook verification unavailable")
		}

		if ev.Action == gateways.ActionCapture {
			captured, err := h.capture(ctx, provider, ev)
			switch {
			case err == nil:
				ev = captured
			case errors.Is(err, gateways.ErrGatewayRejected), errors.Is(err, gateways.ErrUnsupported):
				h.Logger.Warn("order capture refused", "provider", provider, "transaction_id", ev.TransactionID, "error", err)
				h.finish(ctx, row, repository.Finish{Status: eventModel.GatewayEventStatusFailed, Result: "capture_rejected", Error: err.Error()})
				return helper.JsonOK(c, "received", fiber.Map{"result": "capture_rejected"})
			default:
				h.Logger.Error("order capture failed", "provider", provider, "transaction_id", ev.TransactionID, "error", err)
				h.finish(ctx, row, repository.Finish{Status: eventModel.GatewayEventStatusFailed, Error: err.Error()})
				return fiber.NewError(fiber.StatusInternalServerError, "order capture failed")
			}
		}

		out, err := h.Engine.Reconcile(ctx, ev)
		if err != nil {
			h.finish(ctx, row, repository.Finish{Status: eventModel.GatewayEventStatusFailed, Error: err.Error()})
			return fiber.NewError(fiber.StatusInternalServerError, "reconciliation failed")
		}

		f := repository.Finish{Status: eventModel.GatewayEventStatusIgnored, Result: string(out.Result)}
		switch out.Result {
		case reconciliation.ResultApplied, reconciliation.ResultSynced, reconciliation.ResultNotified:
			f.Status = eventModel.GatewayEventStatusSuccess
		}
		if out.PaymentID != uuid.Nil {
			pid := out.PaymentID
			f.PaymentID = &pid
		}
		h.finish(ctx, row, f)

		return helper.JsonOK(c, "received", fiber.Map{
			"result":     out.Result,
			"payment_id": f.PaymentID,
			"status":     out.To,
		})
	}
}

// capture asks the provider to take the money for an approved order and
// returns the event describing the capture.
func (h *WebhookController) capture(ctx context.Context, provider paymentModel.PaymentProvider, ev *gateways.Event) (*gateways.Event, error) {
	gw, err := h.Registry.Gateway(provider)
	if err != nil {
		return nil, err
	}
	cp, ok := gw.(gateways.Capturer)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot capture orders", gateways.ErrUnsupported, provider)
	}
	return cp.Capture(ctx, ev)
}

// record stores the raw delivery. The log is best effort: a failing
// insert never blocks reconciliation.
func (h *WebhookController) record(ctx context.Context, provider paymentModel.PaymentProvider, req gateways.WebhookRequest, ev *gateways.Event) *eventModel.PaymentGatewayEvent {
	if h.Events == nil {
		return nil
	}
	row := repository.NewEvent(provider, req.Body, req.Header, req.Query, signatureHeaders[provider])
	if ev != nil {
		if ev.Type != "" {
			typ := ev.Type
			row.GatewayEventType = &typ
		}
		if ext := ev.ExternalID(); ext != "" {
			row.GatewayEventExternalID = &ext
		}
	}
	row.GatewayEventStatus = eventModel.GatewayEventStatusProcessing
	if err := h.Events.Record(ctx, row); err != nil {
		h.Logger.Warn("gateway event log insert failed", "provider", provider, "error", err)
		return nil
	}
	return row
}

func (h *WebhookController) finish(ctx context.Context, row *eventModel.PaymentGatewayEvent, f repository.Finish) {
	if row == nil {
		return
	}
	if err := h.Events.Finish(ctx, row.GatewayEventID, f); err != nil {
		h.Logger.Warn("gateway event log update failed", "gateway_event_id", row.GatewayEventID, "error", err)
	}
}

func requestHeader(c *fiber.Ctx) http.Header {
	h := http.Header{}
	for k, vs := range c.GetReqHeaders() {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

func requestQuery(c *fiber.Ctx) url.Values {
	q, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return url.Values{}
	}
	return q
}
