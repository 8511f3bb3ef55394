// Package ledger holds the durable state of the donation core: payments,
// campaign funding, invoices and donors. Every implementation must provide
// its own concurrency control; callers never hold state between requests.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
	donorModel "donasiku_backend/internals/features/donations/donors/model"
	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

var (
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrDuplicateTransaction   = errors.New("duplicate provider transaction")
	ErrStatusConflict         = errors.New("payment status changed concurrently")
	ErrCampaignNotFound       = errors.New("campaign not found")
	ErrGeneralCampaignMissing = errors.New("general campaign is not configured")
	ErrDonorNotFound          = errors.New("donor not found")
	ErrDuplicateDonor         = errors.New("donor email already registered")
)

// OpenSubscriptionStatuses are the recurring statuses that block a new
// subscription for the same donor and provider.
var OpenSubscriptionStatuses = []paymentModel.PaymentStatus{
	paymentModel.PaymentStatusPending,
	paymentModel.PaymentStatusFundsSent,
	paymentModel.PaymentStatusActive,
	paymentModel.PaymentStatusCompleted,
}

var creditedStatuses = []paymentModel.PaymentStatus{
	paymentModel.PaymentStatusActive,
	paymentModel.PaymentStatusCompleted,
}

type PaymentLedger interface {
	// Create inserts p with status pending. ErrDuplicateTransaction when
	// (provider, provider transaction id) is taken.
	Create(ctx context.Context, p *paymentModel.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*paymentModel.Payment, error)
	FindByTransactionID(ctx context.Context, provider paymentModel.PaymentProvider, txnID string) (*paymentModel.Payment, error)
	// FindByTransactionIDForUpdate locks the row until the surrounding
	// transaction ends.
	FindByTransactionIDForUpdate(ctx context.Context, provider paymentModel.PaymentProvider, txnID string) (*paymentModel.Payment, error)
	// UpdateStatus is a compare-and-swap on the current status.
	// ErrStatusConflict when the row is no longer in status from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to paymentModel.PaymentStatus, f paymentModel.StatusFields) (*paymentModel.Payment, error)
	// MarkCredited stamps credited_at once; false when it was already set.
	MarkCredited(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	HasOpenSubscription(ctx context.Context, donorID uuid.UUID, provider paymentModel.PaymentProvider) (bool, error)
	// CompletedDonors returns donors of credited payments on the campaign,
	// most recent first, one per email, synthesized anonymous donors excluded.
	CompletedDonors(ctx context.Context, campaignID uuid.UUID, includePrivate bool) ([]donorModel.Donor, error)
}

type CampaignLedger interface {
	FindByID(ctx context.Context, id uuid.UUID) (*campaignModel.Campaign, error)
	// IncrementCollected adds amount atomically and returns the new row.
	IncrementCollected(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*campaignModel.Campaign, error)
	// CapCollected clamps collected_cost to required_cost.
	CapCollected(ctx context.Context, id uuid.UUID) (*campaignModel.Campaign, error)
	// MarkFilled sets status filled; changed is false once the campaign is
	// filled or completed.
	MarkFilled(ctx context.Context, id uuid.UUID, at time.Time) (c *campaignModel.Campaign, changed bool, err error)
	GetGeneralCampaign(ctx context.Context) (*campaignModel.Campaign, error)
}

type InvoiceLedger interface {
	// CreateIfAbsent inserts unless (payment id, provider invoice id) exists.
	CreateIfAbsent(ctx context.Context, inv *invoiceModel.Invoice) (bool, error)
	// SyncStatus inserts a missing invoice or moves an unsettled one to
	// inv's status. Settled invoices are left alone.
	SyncStatus(ctx context.Context, inv *invoiceModel.Invoice) (bool, error)
	// MarkStatus is SyncStatus without the insert: only an existing
	// unsettled invoice moves.
	MarkStatus(ctx context.Context, inv *invoiceModel.Invoice) (bool, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]invoiceModel.Invoice, error)
}

type DonorStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*donorModel.Donor, error)
	FindByEmail(ctx context.Context, email string) (*donorModel.Donor, error)
	Create(ctx context.Context, d *donorModel.Donor) error
	Update(ctx context.Context, id uuid.UUID, u donorModel.DonorUpdate) (*donorModel.Donor, error)
}

type Ledgers struct {
	Payments  PaymentLedger
	Campaigns CampaignLedger
	Invoices  InvoiceLedger
	Donors    DonorStore
}

// Store hands out ledgers bound either to the pool or to one transaction.
type Store interface {
	Ledgers() Ledgers
	// InTx runs fn in a single transaction; any error rolls everything back.
	InTx(ctx context.Context, fn func(l Ledgers) error) error
}

// DedupeDonorsByEmail keeps the first donor per case-insensitive email
// and drops synthesized anonymous identities. Order is preserved.
func DedupeDonorsByEmail(donors []donorModel.Donor) []donorModel.Donor {
	seen := make(map[string]struct{}, len(donors))
	out := make([]donorModel.Donor, 0, len(donors))
	for _, d := range donors {
		if d.IsAnonymous() {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(d.DonorEmail))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}
