package model

type PaymentStatus string
type PaymentMethod string
type PaymentProvider string
type PaymentKind string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFundsSent PaymentStatus = "funds_sent"
	PaymentStatusActive    PaymentStatus = "active"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRejected  PaymentStatus = "rejected"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

const (
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodAltNetwork  PaymentMethod = "alt_network"
	PaymentMethodCrypto      PaymentMethod = "crypto"
	PaymentMethodManual      PaymentMethod = "manual"
	PaymentMethodBankGateway PaymentMethod = "bank_gateway"
)

const (
	ProviderStripe       PaymentProvider = "stripe"
	ProviderPaypal       PaymentProvider = "paypal"
	ProviderCoinPayments PaymentProvider = "coinpayments"
	ProviderMidtrans     PaymentProvider = "midtrans"
	ProviderManual       PaymentProvider = "manual"
)

const (
	PaymentKindOneTime   PaymentKind = "one_time"
	PaymentKindRecurring PaymentKind = "recurring"
)

// Method returns the payment method a provider settles through.
func (p PaymentProvider) Method() PaymentMethod {
	switch p {
	case ProviderStripe:
		return PaymentMethodCard
	case ProviderPaypal:
		return PaymentMethodAltNetwork
	case ProviderCoinPayments:
		return PaymentMethodCrypto
	case ProviderMidtrans:
		return PaymentMethodBankGateway
	default:
		return PaymentMethodManual
	}
}

func (p PaymentProvider) Valid() bool {
	switch p {
	case ProviderStripe, ProviderPaypal, ProviderCoinPayments, ProviderMidtrans, ProviderManual:
		return true
	}
	return false
}

// Credits reports whether reaching this status credits the campaign.
func (s PaymentStatus) Credits() bool {
	return s == PaymentStatusActive || s == PaymentStatusCompleted
}

// Terminal reports the statuses that absorb every later event.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusActive || s == PaymentStatusCancelled
}

func (s PaymentStatus) Failed() bool {
	return s == PaymentStatusRejected || s == PaymentStatusCancelled
}

var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {
		PaymentStatusFundsSent, PaymentStatusActive, PaymentStatusCompleted,
		PaymentStatusRejected, PaymentStatusCancelled,
	},
	PaymentStatusFundsSent: {
		PaymentStatusActive, PaymentStatusCompleted, PaymentStatusRejected, PaymentStatusCancelled,
	},
	PaymentStatusCompleted: {PaymentStatusActive, PaymentStatusCancelled},
	PaymentStatusRejected:  {PaymentStatusActive, PaymentStatusCompleted, PaymentStatusCancelled},
}

// CanTransition reports whether moving from s to next is a forward step.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, to := range allowedTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}
