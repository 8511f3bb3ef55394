// Package gateways defines the contract every payment provider adapter
// implements and the provider-neutral event the reconciliation engine
// consumes.
package gateways

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	invoiceModel "donasiku_backend/internals/features/donations/invoices/model"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

var (
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment rejected by gateway")
	ErrUnsupported        = errors.New("operation not supported by gateway")
	ErrMalformedPayload   = errors.New("malformed webhook payload")
)

// Error carries the provider's own code and message next to one of the
// sentinel kinds above.
type Error struct {
	Kind     error
	Provider paymentModel.PaymentProvider
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func Unavailable(provider paymentModel.PaymentProvider, err error) *Error {
	e := &Error{Kind: ErrGatewayUnavailable, Provider: provider, Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

func Rejected(provider paymentModel.PaymentProvider, code, message string) *Error {
	return &Error{Kind: ErrGatewayRejected, Provider: provider, Code: code, Message: message}
}

// FromStatus classifies a provider HTTP status: 4xx is a rejection, the
// rest means the provider could not be reached or failed.
func FromStatus(provider paymentModel.PaymentProvider, status int, code, message string) *Error {
	if status >= 400 && status < 500 {
		return Rejected(provider, code, message)
	}
	return &Error{Kind: ErrGatewayUnavailable, Provider: provider, Code: code, Message: message}
}

type Payer struct {
	DonorID          uuid.UUID
	Name             string
	Email            string
	StripeCustomerID string
	Country          string
	City             string
	PostalCode       string
	StreetAddress    string
}

type ChargeRequest struct {
	Amount          decimal.Decimal
	Currency        string
	Payer           Payer
	IdempotencyKey  string
	PaymentMethodID string
	Description     string
	ReturnURL       string
	CancelURL       string
	NotifyURL       string
}

type SubscriptionRequest struct {
	Payer           Payer
	PlanID          string
	Amount          decimal.Decimal
	Currency        string
	IdempotencyKey  string
	PaymentMethodID string
	ReturnURL       string
	CancelURL       string
}

// ProviderTransaction is the provider-side handle of a charge or
// subscription. ClientReference is what the client needs to finish the
// flow: a client secret, an approval link or a checkout url.
type ProviderTransaction struct {
	ID              string
	Status          string
	ClientReference string
	// CustomerID is set when the provider created a customer record
	// the donor should keep.
	CustomerID string
	// Amount is what the provider will charge per cycle. It is zero when
	// the provider did not report one.
	Amount decimal.Decimal
}

type Gateway interface {
	Provider() paymentModel.PaymentProvider
	CreateCharge(ctx context.Context, req ChargeRequest) (*ProviderTransaction, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*ProviderTransaction, error)
	// CancelSubscription stops future billing at the provider.
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
}

// Capturer is implemented by providers whose approved orders move no
// money until they are captured. Capture returns the event describing
// the capture outcome.
type Capturer interface {
	Capture(ctx context.Context, ev *Event) (*Event, error)
}

type WebhookRequest struct {
	Body   []byte
	Header http.Header
	Query  url.Values
}

// WebhookDecoder authenticates a delivery and maps its typed payload to
// an Event. It returns ErrInvalidSignature before looking at the payload.
type WebhookDecoder interface {
	Provider() paymentModel.PaymentProvider
	Decode(ctx context.Context, req WebhookRequest) (*Event, error)
}

/* ===================== provider-neutral event ===================== */

type Action string

const (
	// ActionTransition moves the payment to Event.Target.
	ActionTransition Action = "transition"
	// ActionInvoiceSync only records the provider's invoice state, and
	// mails the donor when Template is set.
	ActionInvoiceSync Action = "invoice_sync"
	// ActionNotify only mails the donor.
	ActionNotify Action = "notify"
	// ActionCapture asks the provider to capture an approved order; the
	// capture outcome is reconciled in its place.
	ActionCapture Action = "capture"
	// ActionIgnore is logged and acknowledged.
	ActionIgnore Action = "ignore"
)

type InvoiceRef struct {
	ProviderInvoiceID string
	// Amount is zero when the provider did not report one; the payment
	// amount is used instead.
	Amount        decimal.Decimal
	CustomerEmail string
	HostedURL     string
	Status        invoiceModel.InvoiceStatus
}

type Event struct {
	Provider      paymentModel.PaymentProvider
	EventID       string
	Type          string
	Action        Action
	TransactionID string
	Target        paymentModel.PaymentStatus
	Invoice       *InvoiceRef
	// OccurredAt is zero when the provider exposes no event time.
	OccurredAt time.Time
	// Template overrides the default mail for this event.
	Template string
	// Extra is merged into the mail context.
	Extra map[string]any
}

func (e *Event) HasTime() bool { return !e.OccurredAt.IsZero() }

// ExternalID is the identifier stored on the gateway event log.
func (e *Event) ExternalID() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.TransactionID
}

func Ignore(provider paymentModel.PaymentProvider, eventID, typ string) *Event {
	return &Event{Provider: provider, EventID: eventID, Type: typ, Action: ActionIgnore}
}
