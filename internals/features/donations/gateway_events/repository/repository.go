// Package repository stores the raw webhook / IPN deliveries.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	model "donasiku_backend/internals/features/donations/gateway_events/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

var ErrEventNotFound = errors.New("gateway event not found")

type Filter struct {
	Provider  string
	Status    string
	PaymentID *uuid.UUID
	Query     string
	Start     *time.Time
	End       *time.Time
	Limit     int
	Offset    int
}

// Finish is the outcome written once a delivery has been handled.
type Finish struct {
	Status    model.GatewayEventStatus
	Result    string
	Error     string
	PaymentID *uuid.UUID
}

type Repository interface {
	// Record inserts one delivery. TryCount is set to the number of earlier
	// deliveries with the same provider and external id.
	Record(ctx context.Context, ev *model.PaymentGatewayEvent) error
	Finish(ctx context.Context, id uuid.UUID, f Finish) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentGatewayEvent, error)
	List(ctx context.Context, f Filter) ([]model.PaymentGatewayEvent, int64, error)
	// PurgeBefore hard-deletes deliveries received before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

/* ===================== row building ===================== */

// NewEvent builds a received row from the raw delivery.
func NewEvent(provider paymentModel.PaymentProvider, body []byte, header http.Header, query url.Values, signatureHeader string) *model.PaymentGatewayEvent {
	ev := &model.PaymentGatewayEvent{
		GatewayEventProvider:   provider,
		GatewayEventHeaders:    headersJSON(header),
		GatewayEventPayload:    PayloadJSON(body),
		GatewayEventStatus:     model.GatewayEventStatusReceived,
		GatewayEventReceivedAt: time.Now().UTC(),
	}
	if signatureHeader != "" {
		if sig := header.Get(signatureHeader); sig != "" {
			ev.GatewayEventSignature = &sig
		}
	}
	if len(query) > 0 {
		raw := query.Encode()
		ev.GatewayEventRawQuery = &raw
	}
	return ev
}

func headersJSON(h http.Header) datatypes.JSON {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = strings.Join(v, ",")
	}
	b, _ := json.Marshal(flat)
	return datatypes.JSON(b)
}

// PayloadJSON keeps JSON bodies as they are. Form bodies (IPN) become an
// object of their fields; anything else is wrapped as {"raw": "..."}.
func PayloadJSON(body []byte) datatypes.JSON {
	if len(body) == 0 {
		return datatypes.JSON("{}")
	}
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	if form, err := url.ParseQuery(string(body)); err == nil && len(form) > 0 {
		flat := make(map[string]string, len(form))
		for k := range form {
			flat[k] = form.Get(k)
		}
		b, _ := json.Marshal(flat)
		return datatypes.JSON(b)
	}
	b, _ := json.Marshal(map[string]string{"raw": string(body)})
	return datatypes.JSON(b)
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

/* ===================== gorm ===================== */

type GormRepository struct {
	DB *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{DB: db}
}

func (r *GormRepository) Record(ctx context.Context, ev *model.PaymentGatewayEvent) error {
	db := r.DB.WithContext(ctx)
	if ev.GatewayEventExternalID != nil {
		var n int64
		if err := db.Model(&model.PaymentGatewayEvent{}).
			Where("gateway_event_provider = ? AND gateway_event_external_id = ?",
				ev.GatewayEventProvider, *ev.GatewayEventExternalID).
			Count(&n).Error; err != nil {
			return err
		}
		ev.GatewayEventTryCount = int(n)
	}
	return db.Create(ev).Error
}

func (r *GormRepository) Finish(ctx context.Context, id uuid.UUID, f Finish) error {
	now := time.Now().UTC()
	cols := map[string]any{
		"gateway_event_status":       f.Status,
		"gateway_event_result":       strPtr(f.Result),
		"gateway_event_error":        strPtr(f.Error),
		"gateway_event_processed_at": now,
	}
	if f.PaymentID != nil {
		cols["gateway_event_payment_id"] = *f.PaymentID
	}
	return r.DB.WithContext(ctx).
		Model(&model.PaymentGatewayEvent{}).
		Where("gateway_event_id = ?", id).
		Updates(cols).Error
}

func (r *GormRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentGatewayEvent, error) {
	var m model.PaymentGatewayEvent
	if err := r.DB.WithContext(ctx).First(&m, "gateway_event_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *GormRepository) List(ctx context.Context, f Filter) ([]model.PaymentGatewayEvent, int64, error) {
	db := r.DB.WithContext(ctx).Model(&model.PaymentGatewayEvent{})
	if f.Provider != "" {
		db = db.Where("gateway_event_provider = ?", f.Provider)
	}
	if f.Status != "" {
		db = db.Where("gateway_event_status = ?", f.Status)
	}
	if f.PaymentID != nil {
		db = db.Where("gateway_event_payment_id = ?", *f.PaymentID)
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		db = db.Where("COALESCE(gateway_event_external_id,'') ILIKE ? OR COALESCE(gateway_event_type,'') ILIKE ?", like, like)
	}
	if f.Start != nil {
		db = db.Where("gateway_event_received_at >= ?", *f.Start)
	}
	if f.End != nil {
		db = db.Where("gateway_event_received_at < ?", *f.End)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []model.PaymentGatewayEvent
	if err := db.Order("gateway_event_received_at DESC").
		Limit(f.Limit).Offset(f.Offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *GormRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("gateway_event_received_at < ?", cutoff).
		Delete(&model.PaymentGatewayEvent{})
	return res.RowsAffected, res.Error
}
