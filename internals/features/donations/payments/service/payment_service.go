// Package service starts donations: it resolves the donor, asks the
// provider for a transaction and records the pending payment.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	campaignModel "donasiku_backend/internals/features/donations/campaigns/model"
	donorModel "donasiku_backend/internals/features/donations/donors/model"
	"donasiku_backend/internals/features/donations/gateways"
	"donasiku_backend/internals/features/donations/ledger"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

var (
	ErrSubscriptionExists    = errors.New("donor already has an open subscription with this provider")
	ErrAnonymousSubscription = errors.New("anonymous donors cannot subscribe")
	ErrPlanRequired          = errors.New("plan_id is required for recurring donations")
	ErrCampaignClosed        = errors.New("campaign is not accepting donations")
	ErrNotSubscription       = errors.New("payment is not a subscription")
	ErrSubscriptionClosed    = errors.New("subscription is no longer open")
	ErrNotPaymentOwner       = errors.New("payment belongs to another donor")
)

// PlanResolver maps a catalog key to the provider's plan / price id.
type PlanResolver interface {
	PlanFor(provider paymentModel.PaymentProvider, key string) (string, bool)
}

type Config struct {
	DefaultCurrency      string
	AnonymousEmailDomain string
	// BaseURL builds the return, cancel and notify urls handed to providers.
	BaseURL string
}

type Service struct {
	store    ledger.Store
	registry *gateways.Registry
	plans    PlanResolver
	ids      *snowflake.Node
	cfg      Config
	logger   *slog.Logger
}

func NewService(store ledger.Store, registry *gateways.Registry, plans PlanResolver, ids *snowflake.Node, cfg Config, logger *slog.Logger) *Service {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "GBP"
	}
	if cfg.AnonymousEmailDomain == "" {
		cfg.AnonymousEmailDomain = "anonymous.invalid"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{store: store, registry: registry, plans: plans, ids: ids, cfg: cfg, logger: logger}
}

type CreateInput struct {
	Provider paymentModel.PaymentProvider
	Kind     paymentModel.PaymentKind
	Amount   decimal.Decimal
	Currency string

	CampaignID *uuid.UUID

	// DonorID wins over Name/Email. With neither, an anonymous donor is made.
	DonorID *uuid.UUID
	Name    string
	Email   string

	IsGiftAid bool
	GiftAid   *donorModel.GiftAidAddress
	IsPrivate bool

	PaymentMethodID string
	PlanID          string
}

type CreateResult struct {
	Payment         *paymentModel.Payment
	Donor           *donorModel.Donor
	ClientReference string
}

// Create starts one donation. Provider failures come back as
// *gateways.Error and nothing is written to the payment ledger.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	gw, err := s.registry.Gateway(in.Provider)
	if err != nil {
		return nil, err
	}
	if in.Currency == "" {
		in.Currency = s.cfg.DefaultCurrency
	}
	in.Currency = strings.ToUpper(in.Currency)

	l := s.store.Ledgers()
	if in.CampaignID != nil {
		c, err := l.Campaigns.FindByID(ctx, *in.CampaignID)
		if err != nil {
			return nil, err
		}
		if c.CampaignStatus == campaignModel.CampaignStatusCompleted {
			return nil, ErrCampaignClosed
		}
	}

	donor, err := s.resolveDonor(ctx, l, in)
	if err != nil {
		return nil, err
	}
	if in.IsGiftAid && in.GiftAid != nil && !in.GiftAid.Empty() && !donor.IsAnonymous() {
		if donor, err = l.Donors.Update(ctx, donor.DonorID, donorModel.DonorUpdate{GiftAid: in.GiftAid}); err != nil {
			return nil, fmt.Errorf("save gift aid address: %w", err)
		}
	}

	payer := gateways.Payer{
		DonorID: donor.DonorID,
		Name:    donor.DonorName,
		Email:   donor.DonorEmail,
	}
	if donor.DonorStripeCustomerID != nil {
		payer.StripeCustomerID = *donor.DonorStripeCustomerID
	}
	if in.GiftAid != nil {
		payer.Country = in.GiftAid.Country
		payer.City = in.GiftAid.City
		payer.PostalCode = in.GiftAid.PostalCode
		payer.StreetAddress = in.GiftAid.StreetAddress
	}

	key := ulid.Make().String()
	var tx *gateways.ProviderTransaction
	switch in.Kind {
	case paymentModel.PaymentKindRecurring:
		tx, err = s.subscribe(ctx, l, gw, donor, payer, in, key)
	default:
		in.Kind = paymentModel.PaymentKindOneTime
		tx, err = gw.CreateCharge(ctx, gateways.ChargeRequest{
			Amount:          in.Amount,
			Currency:        in.Currency,
			Payer:           payer,
			IdempotencyKey:  key,
			PaymentMethodID: in.PaymentMethodID,
			Description:     "Donation",
			ReturnURL:       s.url("/donations/thank-you"),
			CancelURL:       s.url("/donations/cancelled"),
			NotifyURL:       s.notifyURL(in.Provider, donor.DonorID),
		})
	}
	if err != nil {
		s.logger.Warn("provider call failed", "provider", in.Provider, "kind", in.Kind, "donor_id", donor.DonorID, "error", err)
		return nil, err
	}

	if tx.CustomerID != "" && (donor.DonorStripeCustomerID == nil || *donor.DonorStripeCustomerID != tx.CustomerID) {
		cid := tx.CustomerID
		if updated, err := l.Donors.Update(ctx, donor.DonorID, donorModel.DonorUpdate{StripeCustomerID: &cid}); err != nil {
			s.logger.Warn("save stripe customer id", "donor_id", donor.DonorID, "error", err)
		} else {
			donor = updated
		}
	}

	// The provider's figure is what will be collected, so it is what the
	// campaign gets credited with.
	amount := in.Amount
	if tx.Amount.IsPositive() {
		if !tx.Amount.Equal(amount) {
			s.logger.Info("recording provider amount", "provider", in.Provider, "declared", amount.StringFixed(2), "provider_amount", tx.Amount.StringFixed(2))
		}
		amount = tx.Amount
	}

	p := &paymentModel.Payment{
		PaymentDonorID:               donor.DonorID,
		PaymentCampaignID:            in.CampaignID,
		PaymentProvider:              in.Provider,
		PaymentProviderTransactionID: tx.ID,
		PaymentAmount:                amount,
		PaymentCurrency:              in.Currency,
		PaymentMethod:                in.Provider.Method(),
		PaymentKind:                  in.Kind,
		PaymentStatus:                paymentModel.PaymentStatusPending,
		PaymentIsGiftAid:             in.IsGiftAid,
		PaymentIsDonationPrivate:     in.IsPrivate,
	}
	// client secrets are not stored
	if tx.ClientReference != "" && in.Provider != paymentModel.ProviderStripe {
		ref := tx.ClientReference
		p.PaymentProviderReference = &ref
	}
	if err := l.Payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	s.logger.Info("payment created",
		"payment_id", p.PaymentID, "provider", p.PaymentProvider, "kind", p.PaymentKind,
		"transaction_id", p.PaymentProviderTransactionID, "amount", p.PaymentAmount.StringFixed(2))
	return &CreateResult{Payment: p, Donor: donor, ClientReference: tx.ClientReference}, nil
}

func (s *Service) subscribe(ctx context.Context, l ledger.Ledgers, gw gateways.Gateway, donor *donorModel.Donor, payer gateways.Payer, in CreateInput, key string) (*gateways.ProviderTransaction, error) {
	if donor.IsAnonymous() {
		return nil, ErrAnonymousSubscription
	}
	planID := strings.TrimSpace(in.PlanID)
	if planID == "" {
		return nil, ErrPlanRequired
	}
	if s.plans != nil {
		if id, ok := s.plans.PlanFor(in.Provider, planID); ok {
			planID = id
		}
	}
	open, err := l.Payments.HasOpenSubscription(ctx, donor.DonorID, in.Provider)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ErrSubscriptionExists
	}
	return gw.CreateSubscription(ctx, gateways.SubscriptionRequest{
		Payer:           payer,
		PlanID:          planID,
		Amount:          in.Amount,
		Currency:        in.Currency,
		IdempotencyKey:  key,
		PaymentMethodID: in.PaymentMethodID,
		ReturnURL:       s.url("/donations/thank-you"),
		CancelURL:       s.url("/donations/cancelled"),
	})
}

type CancelInput struct {
	PaymentID uuid.UUID
	// DonorID limits the cancel to that donor's own subscription. Operators
	// leave it nil.
	DonorID *uuid.UUID
	Reason  string
}

// CancelSubscription stops the subscription at the provider first and then
// closes the payment, so a provider failure leaves the ledger untouched.
// Cancelling twice returns the cancelled payment.
func (s *Service) CancelSubscription(ctx context.Context, in CancelInput) (*paymentModel.Payment, error) {
	p, err := s.store.Ledgers().Payments.FindByID(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if in.DonorID != nil && *in.DonorID != p.PaymentDonorID {
		return nil, ErrNotPaymentOwner
	}
	if !p.IsRecurring() {
		return nil, ErrNotSubscription
	}
	if p.PaymentStatus == paymentModel.PaymentStatusCancelled {
		return p, nil
	}
	if !isOpenSubscription(p.PaymentStatus) {
		return nil, ErrSubscriptionClosed
	}

	gw, err := s.registry.Gateway(p.PaymentProvider)
	if err != nil {
		return nil, err
	}
	if err := gw.CancelSubscription(ctx, p.PaymentProviderTransactionID, in.Reason); err != nil {
		s.logger.Warn("provider cancel failed", "payment_id", p.PaymentID, "provider", p.PaymentProvider, "error", err)
		return nil, err
	}

	var out *paymentModel.Payment
	err = s.store.InTx(ctx, func(l ledger.Ledgers) error {
		cur, err := l.Payments.FindByTransactionIDForUpdate(ctx, p.PaymentProvider, p.PaymentProviderTransactionID)
		if err != nil {
			return err
		}
		if cur.PaymentStatus == paymentModel.PaymentStatusCancelled {
			out = cur
			return nil
		}
		out, err = l.Payments.UpdateStatus(ctx, cur.PaymentID, cur.PaymentStatus, paymentModel.PaymentStatusCancelled,
			paymentModel.FieldsFor(paymentModel.PaymentStatusCancelled, time.Now(), nil))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("close subscription: %w", err)
	}
	s.logger.Info("subscription cancelled",
		"payment_id", out.PaymentID, "provider", out.PaymentProvider, "transaction_id", out.PaymentProviderTransactionID)
	return out, nil
}

func isOpenSubscription(st paymentModel.PaymentStatus) bool {
	for _, open := range ledger.OpenSubscriptionStatuses {
		if st == open {
			return true
		}
	}
	return false
}

// resolveDonor finds or materialises the donor: by id, then by email,
// then as a new guest, and finally as a synthesized anonymous identity.
func (s *Service) resolveDonor(ctx context.Context, l ledger.Ledgers, in CreateInput) (*donorModel.Donor, error) {
	if in.DonorID != nil {
		return l.Donors.FindByID(ctx, *in.DonorID)
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email != "" {
		d, err := l.Donors.FindByEmail(ctx, email)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, ledger.ErrDonorNotFound) {
			return nil, err
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}
		d = &donorModel.Donor{DonorName: name, DonorEmail: email, DonorIsGuest: true}
		if err := l.Donors.Create(ctx, d); err != nil {
			if errors.Is(err, ledger.ErrDuplicateDonor) {
				return l.Donors.FindByEmail(ctx, email)
			}
			return nil, err
		}
		return d, nil
	}

	d := &donorModel.Donor{
		DonorName:    donorModel.AnonymousName,
		DonorEmail:   fmt.Sprintf("%s%s@%s", donorModel.AnonymousName, s.ids.Generate().String(), s.cfg.AnonymousEmailDomain),
		DonorIsGuest: true,
	}
	if err := l.Donors.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create anonymous donor: %w", err)
	}
	return d, nil
}

func (s *Service) url(path string) string {
	if s.cfg.BaseURL == "" {
		return ""
	}
	return s.cfg.BaseURL + path
}

// notifyURL is only used by CoinPayments, which takes the IPN url per
// transaction; the donor id rides along for forged-call tracing.
func (s *Service) notifyURL(p paymentModel.PaymentProvider, donorID uuid.UUID) string {
	if p != paymentModel.ProviderCoinPayments || s.cfg.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/webhooks/coinpayments?userId=%s", s.cfg.BaseURL, donorID)
}

/* ===================== reads ===================== */

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*paymentModel.Payment, error) {
	return s.store.Ledgers().Payments.FindByID(ctx, id)
}
