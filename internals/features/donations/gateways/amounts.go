package gateways

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

// MinorUnits converts 12.34 to 1234.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts 1234 to 12.34.
func FromMinorUnits(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}

// ParseAmount reads a provider amount string; ok is false on junk.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Rejection codes raised before any provider object is created.
const (
	CodeAmountMismatch   = "amount_mismatch"
	CodePlanWithoutPrice = "plan_without_price"
)

// MatchPlanAmount checks a declared subscription amount against the plan
// price. A zero declaration takes the plan price.
func MatchPlanAmount(provider paymentModel.PaymentProvider, declared, plan decimal.Decimal) (decimal.Decimal, error) {
	if !plan.IsPositive() {
		return decimal.Zero, Rejected(provider, CodePlanWithoutPrice, "the plan has no fixed price")
	}
	if declared.IsZero() || declared.Equal(plan) {
		return plan, nil
	}
	return decimal.Zero, Rejected(provider, CodeAmountMismatch,
		fmt.Sprintf("plan charges %s, donation declared %s", plan.StringFixed(2), declared.StringFixed(2)))
}
