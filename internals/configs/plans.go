package configs

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"

	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

// PlanCatalog maps a recurring plan key to each provider's plan or price
// id. The file looks like:
//
//	plans:
//	  monthly_10:
//	    stripe: price_123
//	    paypal: P-4AB
type PlanCatalog struct {
	v *viper.Viper
}

// LoadPlans reads the catalog file. An empty path gives an empty catalog,
// in which case plan ids from the request are passed through unchanged.
func LoadPlans(path string) (*PlanCatalog, error) {
	v := viper.New()
	if path == "" {
		return &PlanCatalog{v: v}, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read plans %s: %w", path, err)
	}
	return &PlanCatalog{v: v}, nil
}

// ReadPlans parses a catalog from r; format is a viper config type such as "yaml".
func ReadPlans(r io.Reader, format string) (*PlanCatalog, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read plans: %w", err)
	}
	return &PlanCatalog{v: v}, nil
}

func (p *PlanCatalog) PlanFor(provider paymentModel.PaymentProvider, key string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || strings.Contains(key, ".") {
		return "", false
	}
	id := p.v.GetString("plans." + key + "." + string(provider))
	return id, id != ""
}

// Keys lists the catalog entries.
func (p *PlanCatalog) Keys() []string {
	m := p.v.GetStringMap("plans")
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
