// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
	donorModel "donasiku_backend/internals/features/donations/donors/model"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	"donasiku_backend/internals/features/donations/ledger"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

// MemoryStore is a process-local Store. A single mutex serialises every
// call; InTx holds it for the whole callback and restores a snapshot when
// the callback fails.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

var _ ledger.Store = (*MemoryStore)(nil)

type txnKey struct {
	provider paymentModel.PaymentProvider
	txnID    string
}

type invoiceKey struct {
	paymentID         uuid.UUID
	providerInvoiceID string
}

type memState struct {
	seq       int64
	payments  map[uuid.UUID]paymentModel.Payment
	paySeq    map[uuid.UUID]int64
	byTxn     map[txnKey]uuid.UUID
	campaigns map[uuid.UUID]campaignModel.Campaign
	invoices  map[invoiceKey]invoiceModel.Invoice
	donors    map[uuid.UUID]donorModel.Donor
	byEmail   map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		payments:  make(map[uuid.UUID]paymentModel.Payment),
		paySeq:    make(map[uuid.UUID]int64),
		byTxn:     make(map[txnKey]uuid.UUID),
		campaigns: make(map[uuid.UUID]campaignModel.Campaign),
		invoices:  make(map[invoiceKey]invoiceModel.Invoice),
		donors:    make(map[uuid.UUID]donorModel.Donor),
		byEmail:   make(map[string]uuid.UUID),
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:       s.seq,
		payments:  make(map[uuid.UUID]paymentModel.Payment, len(s.payments)),
		paySeq:    make(map[uuid.UUID]int64, len(s.paySeq)),
		byTxn:     make(map[txnKey]uuid.UUID, len(s.byTxn)),
		campaigns: make(map[uuid.UUID]campaignModel.Campaign, len(s.campaigns)),
		invoices:  make(map[invoiceKey]invoiceModel.Invoice, len(s.invoices)),
		donors:    make(map[uuid.UUID]donorModel.Donor, len(s.donors)),
		byEmail:   make(map[string]uuid.UUID, len(s.byEmail)),
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.paySeq {
		c.paySeq[k] = v
	}
	for k, v := range s.byTxn {
		c.byTxn[k] = v
	}
	for k, v := range s.campaigns {
		c.campaigns[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	for k, v := range s.donors {
		c.donors[k] = v
	}
	for k, v := range s.byEmail {
		c.byEmail[k] = v
	}
	return c
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

func (m *MemoryStore) Ledgers() ledger.Ledgers {
	return m.bind(&m.mu)
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(l ledger.Ledgers) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.state.clone()
	if err := fn(m.bind(noopLocker{})); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemoryStore) bind(l sync.Locker) ledger.Ledgers {
	b := &memBound{store: m, lock: l}
	return ledger.Ledgers{
		Payments:  &memPayments{b},
		Campaigns: &memCampaigns{b},
		Invoices:  &memInvoices{b},
		Donors:    &memDonors{b},
	}
}

type memBound struct {
	store *MemoryStore
	lock  sync.Locker
}

func (b *memBound) with(fn func(s *memState) error) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return fn(b.store.state)
}

/* ===================== seeding helpers ===================== */

// PutCampaign stores c as-is, assigning an id when missing.
func (m *MemoryStore) PutCampaign(c campaignModel.Campaign) campaignModel.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CampaignID == uuid.Nil {
		c.CampaignID = uuid.New()
	}
	if c.CampaignStatus == "" {
		c.CampaignStatus = campaignModel.CampaignStatusAwaiting
	}
	m.state.campaigns[c.CampaignID] = c
	return c
}

// PutPayment stores p with its status untouched.
func (m *MemoryStore) PutPayment(p paymentModel.Payment) paymentModel.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.PaymentID == uuid.Nil {
		p.PaymentID = uuid.New()
	}
	if p.PaymentCreatedAt.IsZero() {
		p.PaymentCreatedAt = time.Now()
	}
	m.state.seq++
	m.state.payments[p.PaymentID] = p
	m.state.paySeq[p.PaymentID] = m.state.seq
	m.state.byTxn[txnKey{p.PaymentProvider, p.PaymentProviderTransactionID}] = p.PaymentID
	return p
}

func (m *MemoryStore) InvoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.invoices)
}

/* ===================== payments ===================== */

type memPayments struct{ *memBound }

func (r *memPayments) Create(ctx context.Context, p *paymentModel.Payment) error {
	return r.with(func(s *memState) error {
		key := txnKey{p.PaymentProvider, p.PaymentProviderTransactionID}
		if _, ok := s.byTxn[key]; ok {
			return fmt.Errorf("%w: %s/%s", ledger.ErrDuplicateTransaction, p.PaymentProvider, p.PaymentProviderTransactionID)
		}
		if p.PaymentID == uuid.Nil {
			p.PaymentID = uuid.New()
		}
		now := time.Now()
		p.PaymentStatus = paymentModel.PaymentStatusPending
		p.PaymentCreatedAt = now
		p.PaymentUpdatedAt = now
		s.seq++
		s.payments[p.PaymentID] = *p
		s.paySeq[p.PaymentID] = s.seq
		s.byTxn[key] = p.PaymentID
		return nil
	})
}

func (r *memPayments) FindByID(ctx context.Context, id uuid.UUID) (*paymentModel.Payment, error) {
	var out *paymentModel.Payment
	err := r.with(func(s *memState) error {
		p, ok := s.payments[id]
		if !ok || p.PaymentDeletedAt != nil {
			return ledger.ErrPaymentNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memPayments) FindByTransactionID(ctx context.Context, provider paymentModel.PaymentProvider, txnID string) (*paymentModel.Payment, error) {
	var out *paymentModel.Payment
	err := r.with(func(s *memState) error {
		id, ok := s.byTxn[txnKey{provider, txnID}]
		if !ok {
			return ledger.ErrPaymentNotFound
		}
		p := s.payments[id]
		if p.PaymentDeletedAt != nil {
			return ledger.ErrPaymentNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

// FindByTransactionIDForUpdate needs no extra locking: InTx already holds
// the store mutex.
func (r *memPayments) FindByTransactionIDForUpdate(ctx context.Context, provider paymentModel.PaymentProvider, txnID string) (*paymentModel.Payment, error) {
	return r.FindByTransactionID(ctx, provider, txnID)
}

func (r *memPayments) UpdateStatus(ctx context.Context, id uuid.UUID, from, to paymentModel.PaymentStatus, f paymentModel.StatusFields) (*paymentModel.Payment, error) {
	var out *paymentModel.Payment
	err := r.with(func(s *memState) error {
		p, ok := s.payments[id]
		if !ok || p.PaymentStatus != from {
			return fmt.Errorf("%w: %s expected %s", ledger.ErrStatusConflict, id, from)
		}
		p.PaymentStatus = to
		p.PaymentUpdatedAt = time.Now()
		if f.PaidAt != nil {
			p.PaymentPaidAt = f.PaidAt
		}
		if f.CancelledAt != nil {
			p.PaymentCancelledAt = f.CancelledAt
		}
		if f.FailedAt != nil {
			p.PaymentFailedAt = f.FailedAt
		}
		if f.EventAt != nil {
			p.PaymentLastEventAt = f.EventAt
		}
		s.payments[id] = p
		out = &p
		return nil
	})
	return out, err
}

func (r *memPayments) MarkCredited(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	changed := false
	err := r.with(func(s *memState) error {
		p, ok := s.payments[id]
		if !ok {
			return ledger.ErrPaymentNotFound
		}
		if p.PaymentCreditedAt != nil {
			return nil
		}
		p.PaymentCreditedAt = &at
		s.payments[id] = p
		changed = true
		return nil
	})
	return changed, err
}

func (r *memPayments) HasOpenSubscription(ctx context.Context, donorID uuid.UUID, provider paymentModel.PaymentProvider) (bool, error) {
	found := false
	err := r.with(func(s *memState) error {
		for _, p := range s.payments {
			if p.PaymentDonorID != donorID || p.PaymentProvider != provider || !p.IsRecurring() || p.PaymentDeletedAt != nil {
				continue
			}
			for _, st := range ledger.OpenSubscriptionStatuses {
				if p.PaymentStatus == st {
					found = true
					return nil
				}
			}
		}
		return nil
	})
	return found, err
}

func (r *memPayments) CompletedDonors(ctx context.Context, campaignID uuid.UUID, includePrivate bool) ([]donorModel.Donor, error) {
	var out []donorModel.Donor
	err := r.with(func(s *memState) error {
		var hits []paymentModel.Payment
		for _, p := range s.payments {
			if p.PaymentCampaignID == nil || *p.PaymentCampaignID != campaignID || p.PaymentDeletedAt != nil {
				continue
			}
			if !p.PaymentStatus.Credits() {
				continue
			}
			if p.PaymentIsDonationPrivate && !includePrivate {
				continue
			}
			hits = append(hits, p)
		}
		sort.Slice(hits, func(i, j int) bool {
			a, b := hits[i], hits[j]
			if !a.PaymentCreatedAt.Equal(b.PaymentCreatedAt) {
				return a.PaymentCreatedAt.After(b.PaymentCreatedAt)
			}
			return s.paySeq[a.PaymentID] > s.paySeq[b.PaymentID]
		})
		donors := make([]donorModel.Donor, 0, len(hits))
		for _, p := range hits {
			if d, ok := s.donors[p.PaymentDonorID]; ok {
				donors = append(donors, d)
			}
		}
		out = ledger.DedupeDonorsByEmail(donors)
		return nil
	})
	return out, err
}

/* ===================== campaigns ===================== */

type memCampaigns struct{ *memBound }

func (r *memCampaigns) FindByID(ctx context.Context, id uuid.UUID) (*campaignModel.Campaign, error) {
	var out *campaignModel.Campaign
	err := r.with(func(s *memState) error {
		c, ok := s.campaigns[id]
		if !ok || c.CampaignDeletedAt != nil {
			return ledger.ErrCampaignNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *memCampaigns) IncrementCollected(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*campaignModel.Campaign, error) {
	var out *campaignModel.Campaign
	err := r.with(func(s *memState) error {
		c, ok := s.campaigns[id]
		if !ok || c.CampaignDeletedAt != nil {
			return ledger.ErrCampaignNotFound
		}
		c.CampaignCollectedCost = c.CampaignCollectedCost.Add(amount)
		c.CampaignUpdatedAt = time.Now()
		s.campaigns[id] = c
		out = &c
		return nil
	})
	return out, err
}

func (r *memCampaigns) CapCollected(ctx context.Context, id uuid.UUID) (*campaignModel.Campaign, error) {
	var out *campaignModel.Campaign
	err := r.with(func(s *memState) error {
		c, ok := s.campaigns[id]
		if !ok {
			return ledger.ErrCampaignNotFound
		}
		if c.CampaignCollectedCost.GreaterThan(c.CampaignRequiredCost) {
			c.CampaignCollectedCost = c.CampaignRequiredCost
			c.CampaignUpdatedAt = time.Now()
			s.campaigns[id] = c
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *memCampaigns) MarkFilled(ctx context.Context, id uuid.UUID, at time.Time) (*campaignModel.Campaign, bool, error) {
	var out *campaignModel.Campaign
	changed := false
	err := r.with(func(s *memState) error {
		c, ok := s.campaigns[id]
		if !ok {
			return ledger.ErrCampaignNotFound
		}
		if c.CampaignStatus != campaignModel.CampaignStatusFilled && c.CampaignStatus != campaignModel.CampaignStatusCompleted {
			c.CampaignStatus = campaignModel.CampaignStatusFilled
			c.CampaignFilledAt = &at
			s.campaigns[id] = c
			changed = true
		}
		out = &c
		return nil
	})
	return out, changed, err
}

func (r *memCampaigns) GetGeneralCampaign(ctx context.Context) (*campaignModel.Campaign, error) {
	var out *campaignModel.Campaign
	err := r.with(func(s *memState) error {
		for _, c := range s.campaigns {
			if c.CampaignIsGeneral && c.CampaignDeletedAt == nil {
				c := c
				out = &c
				return nil
			}
		}
		return ledger.ErrGeneralCampaignMissing
	})
	return out, err
}

/* ===================== invoices ===================== */

type memInvoices struct{ *memBound }

func (r *memInvoices) CreateIfAbsent(ctx context.Context, inv *invoiceModel.Invoice) (bool, error) {
	created := false
	err := r.with(func(s *memState) error {
		created = putInvoice(s, inv)
		return nil
	})
	return created, err
}

func putInvoice(s *memState, inv *invoiceModel.Invoice) bool {
	key := invoiceKey{inv.InvoicePaymentID, inv.InvoiceProviderInvoiceID}
	if _, ok := s.invoices[key]; ok {
		return false
	}
	if inv.InvoiceID == uuid.Nil {
		inv.InvoiceID = uuid.New()
	}
	now := time.Now()
	inv.InvoiceCreatedAt = now
	inv.InvoiceUpdatedAt = now
	s.invoices[key] = *inv
	return true
}

func (r *memInvoices) SyncStatus(ctx context.Context, inv *invoiceModel.Invoice) (bool, error) {
	return r.setStatus(inv, true)
}

func (r *memInvoices) MarkStatus(ctx context.Context, inv *invoiceModel.Invoice) (bool, error) {
	return r.setStatus(inv, false)
}

func (r *memInvoices) setStatus(inv *invoiceModel.Invoice, insert bool) (bool, error) {
	changed := false
	err := r.with(func(s *memState) error {
		key := invoiceKey{inv.InvoicePaymentID, inv.InvoiceProviderInvoiceID}
		cur, ok := s.invoices[key]
		if !ok {
			if insert {
				changed = putInvoice(s, inv)
			}
			return nil
		}
		if cur.InvoiceStatus.Settled() || cur.InvoiceStatus == inv.InvoiceStatus {
			return nil
		}
		cur.InvoiceStatus = inv.InvoiceStatus
		if inv.InvoiceHostedInvoiceURL != nil {
			cur.InvoiceHostedInvoiceURL = inv.InvoiceHostedInvoiceURL
		}
		cur.InvoiceUpdatedAt = time.Now()
		s.invoices[key] = cur
		changed = true
		return nil
	})
	return changed, err
}

func (r *memInvoices) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]invoiceModel.Invoice, error) {
	var out []invoiceModel.Invoice
	err := r.with(func(s *memState) error {
		for k, v := range s.invoices {
			if k.paymentID == paymentID {
				out = append(out, v)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].InvoiceCreatedAt.Before(out[j].InvoiceCreatedAt) })
		return nil
	})
	return out, err
}

/* ===================== donors ===================== */

type memDonors struct{ *memBound }

func (r *memDonors) FindByID(ctx context.Context, id uuid.UUID) (*donorModel.Donor, error) {
	var out *donorModel.Donor
	err := r.with(func(s *memState) error {
		d, ok := s.donors[id]
		if !ok {
			return ledger.ErrDonorNotFound
		}
		out = &d
		return nil
	})
	return out, err
}

func (r *memDonors) FindByEmail(ctx context.Context, email string) (*donorModel.Donor, error) {
	var out *donorModel.Donor
	err := r.with(func(s *memState) error {
		id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
		if !ok {
			return ledger.ErrDonorNotFound
		}
		d := s.donors[id]
		out = &d
		return nil
	})
	return out, err
}

func (r *memDonors) Create(ctx context.Context, d *donorModel.Donor) error {
	return r.with(func(s *memState) error {
		key := strings.ToLower(strings.TrimSpace(d.DonorEmail))
		if _, ok := s.byEmail[key]; ok {
			return ledger.ErrDuplicateDonor
		}
		if d.DonorID == uuid.Nil {
			d.DonorID = uuid.New()
		}
		now := time.Now()
		d.DonorCreatedAt = now
		d.DonorUpdatedAt = now
		s.donors[d.DonorID] = *d
		s.byEmail[key] = d.DonorID
		return nil
	})
}

func (r *memDonors) Update(ctx context.Context, id uuid.UUID, u donorModel.DonorUpdate) (*donorModel.Donor, error) {
	var out *donorModel.Donor
	err := r.with(func(s *memState) error {
		d, ok := s.donors[id]
		if !ok {
			return ledger.ErrDonorNotFound
		}
		u.Apply(&d)
		d.DonorUpdatedAt = time.Now()
		s.donors[id] = d
		out = &d
		return nil
	})
	return out, err
}
