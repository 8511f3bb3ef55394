package gateways

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"10", 1000},
		{"33.33", 3333},
		{"0.01", 1},
		{"19.999", 2000},
	}
	for _, tt := range tests {
		if got := MinorUnits(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("MinorUnits(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := FromMinorUnits(3333); !got.Equal(decimal.RequireFromString("33.33")) {
		t.Errorf("FromMinorUnits(3333) = %s", got)
	}
}

func TestError_IsKind(t *testing.T) {
	var err error = Rejected(paymentModel.ProviderStripe, "card_declined", "Your card was declined.")
	if !errors.Is(err, ErrGatewayRejected) {
		t.Error("rejected error should match ErrGatewayRejected")
	}
	if errors.Is(err, ErrGatewayUnavailable) {
		t.Error("rejected error must not match ErrGatewayUnavailable")
	}

	if !errors.Is(FromStatus(paymentModel.ProviderPaypal, 503, "", "down"), ErrGatewayUnavailable) {
		t.Error("5xx should be unavailable")
	}
	if !errors.Is(FromStatus(paymentModel.ProviderPaypal, 422, "UNPROCESSABLE", ""), ErrGatewayRejected) {
		t.Error("4xx should be rejected")
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Gateway(paymentModel.ProviderStripe); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
	if _, err := r.Decoder(paymentModel.ProviderMidtrans); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestMatchPlanAmount(t *testing.T) {
	plan := decimal.RequireFromString("10")
	tests := []struct {
		name     string
		declared string
		plan     decimal.Decimal
		want     string
		wantErr  bool
	}{
		{"empty declaration takes plan price", "0", plan, "10.00", false},
		{"matching declaration", "10.00", plan, "10.00", false},
		{"declared above plan", "5000", plan, "", true},
		{"declared below plan", "1", plan, "", true},
		{"plan without price", "10", decimal.Zero, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchPlanAmount(paymentModel.ProviderStripe, decimal.RequireFromString(tt.declared), tt.plan)
			if tt.wantErr {
				if !errors.Is(err, ErrGatewayRejected) {
					t.Fatalf("err = %v, want ErrGatewayRejected", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got.StringFixed(2) != tt.want {
				t.Errorf("amount = %s, want %s", got.StringFixed(2), tt.want)
			}
		})
	}
}
