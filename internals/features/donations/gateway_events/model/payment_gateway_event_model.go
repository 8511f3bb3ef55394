// file: internals/features/donations/gateway_events/model/payment_gateway_event_model.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

/*
  payment_gateway_events = LOG WEBHOOK / IPN dari provider
  - Satu row per delivery (retry provider = row baru, try_count naik)
  - Raw headers + payload disimpan untuk audit / replay manual.
*/

type GatewayEventStatus string

const (
	GatewayEventStatusReceived   GatewayEventStatus = "received"
	GatewayEventStatusProcessing GatewayEventStatus = "processing"
	GatewayEventStatusSuccess    GatewayEventStatus = "success"
	GatewayEventStatusIgnored    GatewayEventStatus = "ignored"
	GatewayEventStatusFailed     GatewayEventStatus = "failed"
)

type PaymentGatewayEvent struct {
	GatewayEventID uuid.UUID `gorm:"column:gateway_event_id;type:uuid;default:gen_random_uuid();primaryKey" json:"gateway_event_id"`

	GatewayEventPaymentID *uuid.UUID `gorm:"column:gateway_event_payment_id;type:uuid;index" json:"gateway_event_payment_id"`

	GatewayEventProvider   paymentModel.PaymentProvider `gorm:"column:gateway_event_provider;type:varchar(20);not null;index:idx_gw_event_provider_extid,priority:1" json:"gateway_event_provider"`
	GatewayEventType       *string                      `gorm:"column:gateway_event_type;type:varchar(100)" json:"gateway_event_type"`
	GatewayEventExternalID *string                      `gorm:"column:gateway_event_external_id;type:varchar(191);index:idx_gw_event_provider_extid,priority:2" json:"gateway_event_external_id"`

	GatewayEventHeaders   datatypes.JSON `gorm:"column:gateway_event_headers;type:jsonb" json:"gateway_event_headers"`
	GatewayEventPayload   datatypes.JSON `gorm:"column:gateway_event_payload;type:jsonb" json:"gateway_event_payload"`
	GatewayEventSignature *string        `gorm:"column:gateway_event_signature;type:text" json:"gateway_event_signature"`
	GatewayEventRawQuery  *string        `gorm:"column:gateway_event_raw_query;type:text" json:"gateway_event_raw_query"`

	GatewayEventStatus   GatewayEventStatus `gorm:"column:gateway_event_status;type:varchar(20);not null;default:'received'" json:"gateway_event_status"`
	GatewayEventResult   *string            `gorm:"column:gateway_event_result;type:varchar(30)" json:"gateway_event_result"`
	GatewayEventError    *string            `gorm:"column:gateway_event_error;type:text" json:"gateway_event_error"`
	GatewayEventTryCount int                `gorm:"column:gateway_event_try_count;not null;default:0" json:"gateway_event_try_count"`

	GatewayEventReceivedAt  time.Time  `gorm:"column:gateway_event_received_at;not null;default:now()" json:"gateway_event_received_at"`
	GatewayEventProcessedAt *time.Time `gorm:"column:gateway_event_processed_at" json:"gateway_event_processed_at"`

	GatewayEventCreatedAt time.Time `gorm:"column:gateway_event_created_at;not null;autoCreateTime" json:"gateway_event_created_at"`
	GatewayEventUpdatedAt time.Time `gorm:"column:gateway_event_updated_at;not null;autoUpdateTime" json:"gateway_event_updated_at"`
}

func (PaymentGatewayEvent) TableName() string {
	return "payment_gateway_events"
}
