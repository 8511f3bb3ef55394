// Package repositorytest provides an in-memory gateway event repository
// for tests.
package repositorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	model "donasiku_backend/internals/features/donations/gateway_events/model"
	"donasiku_backend/internals/features/donations/gateway_events/repository"
)

var _ repository.Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-process repository.Repository.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []model.PaymentGatewayEvent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Record(_ context.Context, ev *model.PaymentGatewayEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.GatewayEventID == uuid.Nil {
		ev.GatewayEventID = uuid.New()
	}
	if ev.GatewayEventExternalID != nil {
		n := 0
		for _, row := range r.rows {
			if row.GatewayEventProvider == ev.GatewayEventProvider &&
				row.GatewayEventExternalID != nil && *row.GatewayEventExternalID == *ev.GatewayEventExternalID {
				n++
			}
		}
		ev.GatewayEventTryCount = n
	}
	if ev.GatewayEventReceivedAt.IsZero() {
		ev.GatewayEventReceivedAt = time.Now().UTC()
	}
	r.rows = append(r.rows, *ev)
	return nil
}

func (r *MemoryRepository) Finish(_ context.Context, id uuid.UUID, f repository.Finish) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].GatewayEventID != id {
			continue
		}
		now := time.Now().UTC()
		row := &r.rows[i]
		row.GatewayEventStatus = f.Status
		row.GatewayEventResult = strPtr(f.Result)
		row.GatewayEventError = strPtr(f.Error)
		row.GatewayEventProcessedAt = &now
		if f.PaymentID != nil {
			pid := *f.PaymentID
			row.GatewayEventPaymentID = &pid
		}
		return nil
	}
	return repository.ErrEventNotFound
}

func (r *MemoryRepository) FindByID(_ context.Context, id uuid.UUID) (*model.PaymentGatewayEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.GatewayEventID == id {
			cp := row
			return &cp, nil
		}
	}
	return nil, repository.ErrEventNotFound
}

func (r *MemoryRepository) List(_ context.Context, f repository.Filter) ([]model.PaymentGatewayEvent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PaymentGatewayEvent
	for _, row := range r.rows {
		if f.Provider != "" && string(row.GatewayEventProvider) != f.Provider {
			continue
		}
		if f.Status != "" && string(row.GatewayEventStatus) != f.Status {
			continue
		}
		if f.PaymentID != nil && (row.GatewayEventPaymentID == nil || *row.GatewayEventPaymentID != *f.PaymentID) {
			continue
		}
		if f.Start != nil && row.GatewayEventReceivedAt.Before(*f.Start) {
			continue
		}
		if f.End != nil && !row.GatewayEventReceivedAt.Before(*f.End) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GatewayEventReceivedAt.After(out[j].GatewayEventReceivedAt)
	})
	total := int64(len(out))
	if f.Offset >= len(out) {
		return []model.PaymentGatewayEvent{}, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *MemoryRepository) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	var n int64
	for _, row := range r.rows {
		if row.GatewayEventReceivedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
