// Package coinpayments adapts the CoinPayments crypto gateway: the
// create_transaction API call and the HMAC-signed IPN feed.
package coinpayments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"donasiku_backend/internals/features/donations/gateways"
	paymentModel "donasiku_backend/internals/features/donations/payments/model"
)

const DefaultAPIURL = "https://www.coinpayments.net/api.php"

type Config struct {
	PublicKey  string
	PrivateKey string
	// Currency2 is the coin the donor pays in, e.g. BTC or LTCT.
	Currency2 string
	APIURL    string
	Timeout   time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Currency2 == "" {
		cfg.Currency2 = "BTC"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

func (c *Client) Provider() paymentModel.PaymentProvider { return paymentModel.ProviderCoinPayments }

type apiResponse struct {
	Error  string `json:"error"`
	Result struct {
		TxnID       string `json:"txn_id"`
		Address     string `json:"address"`
		Amount      string `json:"amount"`
		CheckoutURL string `json:"checkout_url"`
		StatusURL   string `json:"status_url"`
	} `json:"result"`
}

func (c *Client) CreateCharge(ctx context.Context, req gateways.ChargeRequest) (*gateways.ProviderTransaction, error) {
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "GBP"
	}
	form := url.Values{
		"version":     {"1"},
		"cmd":         {"create_transaction"},
		"key":         {c.cfg.PublicKey},
		"format":      {"json"},
		"amount":      {req.Amount.StringFixed(2)},
		"currency1":   {currency},
		"currency2":   {c.cfg.Currency2},
		"buyer_email": {req.Payer.Email},
		"buyer_name":  {req.Payer.Name},
		"custom":      {req.Payer.DonorID.String()},
	}
	if req.NotifyURL != "" {
		form.Set("ipn_url", req.NotifyURL)
	}
	if req.ReturnURL != "" {
		form.Set("success_url", req.ReturnURL)
	}
	if req.CancelURL != "" {
		form.Set("cancel_url", req.CancelURL)
	}

	var resp apiResponse
	if err := c.call(ctx, form, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "ok" {
		return nil, gateways.Rejected(paymentModel.ProviderCoinPayments, "", resp.Error)
	}
	return &gateways.ProviderTransaction{
		ID:              resp.Result.TxnID,
		Status:          "pending",
		ClientReference: resp.Result.CheckoutURL,
	}, nil
}

// CreateSubscription is not offered by CoinPayments.
func (c *Client) CreateSubscription(context.Context, gateways.SubscriptionRequest) (*gateways.ProviderTransaction, error) {
	return nil, fmt.Errorf("%w: coinpayments has no recurring payments", gateways.ErrUnsupported)
}

func (c *Client) CancelSubscription(context.Context, string, string) error {
	return fmt.Errorf("%w: coinpayments has no recurring payments", gateways.ErrUnsupported)
}

func (c *Client) call(ctx context.Context, form url.Values, out any) error {
	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, strings.NewReader(body))
	if err != nil {
		return gateways.Unavailable(paymentModel.ProviderCoinPayments, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HMAC", Sign([]byte(body), c.cfg.PrivateKey))

	res, err := c.http.Do(req)
	if err != nil {
		return gateways.Unavailable(paymentModel.ProviderCoinPayments, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return gateways.Unavailable(paymentModel.ProviderCoinPayments, err)
	}
	if res.StatusCode >= 300 {
		return gateways.FromStatus(paymentModel.ProviderCoinPayments, res.StatusCode, "", strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return gateways.Unavailable(paymentModel.ProviderCoinPayments, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// Sign returns the lower-case hex HMAC-SHA512 of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
