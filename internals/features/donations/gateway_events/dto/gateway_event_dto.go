package dto

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	model "donasiku_backend/internals/features/donations/gateway_events/model"
	"donasiku_backend/internals/features/donations/gateway_events/repository"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

/* =========================================================
   LIST QUERY
========================================================= */

type ListGatewayEventQuery struct {
	Provider  string
	Status    string
	PaymentID *uuid.UUID
	Q         string
	Start     *time.Time
	End       *time.Time
}

// ParseListQuery reads provider, status, payment_id, q, start and end
// (RFC3339, filters received_at).
func ParseListQuery(c *fiber.Ctx) (ListGatewayEventQuery, error) {
	var q ListGatewayEventQuery

	if p := strings.ToLower(strings.TrimSpace(c.Query("provider"))); p != "" {
		if !paymentModel.PaymentProvider(p).Valid() {
			return q, fiber.NewError(fiber.StatusBadRequest, "invalid provider")
		}
		q.Provider = p
	}
	if s := strings.ToLower(strings.TrimSpace(c.Query("status"))); s != "" {
		if !validStatus(model.GatewayEventStatus(s)) {
			return q, fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
		q.Status = s
	}
	if pid := strings.TrimSpace(c.Query("payment_id")); pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			return q, fiber.NewError(fiber.StatusBadRequest, "invalid payment_id")
		}
		q.PaymentID = &id
	}
	q.Q = strings.TrimSpace(c.Query("q"))

	for key, dst := range map[string]**time.Time{"start": &q.Start, "end": &q.End} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, fiber.NewError(fiber.StatusBadRequest, "invalid "+key+" (use RFC3339)")
		}
		*dst = &t
	}
	return q, nil
}

func (q ListGatewayEventQuery) Filter(limit, offset int) repository.Filter {
	return repository.Filter{
		Provider:  q.Provider,
		Status:    q.Status,
		PaymentID: q.PaymentID,
		Query:     q.Q,
		Start:     q.Start,
		End:       q.End,
		Limit:     limit,
		Offset:    offset,
	}
}

func validStatus(s model.GatewayEventStatus) bool {
	switch s {
	case model.GatewayEventStatusReceived, model.GatewayEventStatusProcessing,
		model.GatewayEventStatusSuccess, model.GatewayEventStatusIgnored, model.GatewayEventStatusFailed:
		return true
	}
	return false
}

/* =========================================================
   RESPONSE
========================================================= */

type GatewayEventResponse struct {
	GatewayEventID        uuid.UUID  `json:"gateway_event_id"`
	GatewayEventPaymentID *uuid.UUID `json:"gateway_event_payment_id,omitempty"`

	GatewayEventProvider   string  `json:"gateway_event_provider"`
	GatewayEventType       *string `json:"gateway_event_type,omitempty"`
	GatewayEventExternalID *string `json:"gateway_event_external_id,omitempty"`

	GatewayEventHeaders   datatypes.JSON `json:"gateway_event_headers,omitempty"`
	GatewayEventPayload   datatypes.JSON `json:"gateway_event_payload,omitempty"`
	GatewayEventSignature *string        `json:"gateway_event_signature,omitempty"`
	GatewayEventRawQuery  *string        `json:"gateway_event_raw_query,omitempty"`

	GatewayEventStatus   string  `json:"gateway_event_status"`
	GatewayEventResult   *string `json:"gateway_event_result,omitempty"`
	GatewayEventError    *string `json:"gateway_event_error,omitempty"`
	GatewayEventTryCount int     `json:"gateway_event_try_count"`

	GatewayEventReceivedAt  time.Time  `json:"gateway_event_received_at"`
	GatewayEventProcessedAt *time.Time `json:"gateway_event_processed_at,omitempty"`
}

// FromModel maps a row. List views pass withRaw=false to leave out the
// headers and payload.
func FromModel(m *model.PaymentGatewayEvent, withRaw bool) GatewayEventResponse {
	r := GatewayEventResponse{
		GatewayEventID:          m.GatewayEventID,
		GatewayEventPaymentID:   m.GatewayEventPaymentID,
		GatewayEventProvider:    string(m.GatewayEventProvider),
		GatewayEventType:        m.GatewayEventType,
		GatewayEventExternalID:  m.GatewayEventExternalID,
		GatewayEventStatus:      string(m.GatewayEventStatus),
		GatewayEventResult:      m.GatewayEventResult,
		GatewayEventError:       m.GatewayEventError,
		GatewayEventTryCount:    m.GatewayEventTryCount,
		GatewayEventReceivedAt:  m.GatewayEventReceivedAt,
		GatewayEventProcessedAt: m.GatewayEventProcessedAt,
	}
	if withRaw {
		r.GatewayEventHeaders = m.GatewayEventHeaders
		r.GatewayEventPayload = m.GatewayEventPayload
		r.GatewayEventSignature = m.GatewayEventSignature
		r.GatewayEventRawQuery = m.GatewayEventRawQuery
	}
	return r
}

func FromModels(rows []model.PaymentGatewayEvent) []GatewayEventResponse {
	out := make([]GatewayEventResponse, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i], false))
	}
	return out
}
