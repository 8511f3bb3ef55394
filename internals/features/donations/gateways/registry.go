package gateways

import (
	"fmt"

	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

// Registry maps providers to their adapters. It is filled once at start-up
// and read-only afterwards.
type Registry struct {
	gateways map[paymentModel.PaymentProvider]Gateway
	decoders map[paymentModel.PaymentProvider]WebhookDecoder
}

func NewRegistry() *Registry {
	return &Registry{
		gateways: map[paymentModel.PaymentProvider]Gateway{},
		decoders: map[paymentModel.PaymentProvider]WebhookDecoder{},
	}
}

func (r *Registry) Register(g Gateway, d WebhookDecoder) {
	if g != nil {
		r.gateways[g.Provider()] = g
	}
	if d != nil {
		r.decoders[d.Provider()] = d
	}
}

func (r *Registry) Gateway(p paymentModel.PaymentProvider) (Gateway, error) {
	g, ok := r.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway for %q", ErrUnsupported, p)
	}
	return g, nil
}

func (r *Registry) Decoder(p paymentModel.PaymentProvider) (WebhookDecoder, error) {
	d, ok := r.decoders[p]
	if !ok {
		return nil, fmt.Errorf("%w: no webhook decoder for %q", ErrUnsupported, p)
	}
	return d, nil
}

func (r *Registry) Providers() []paymentModel.PaymentProvider {
	out := make([]paymentModel.PaymentProvider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	return out
}
