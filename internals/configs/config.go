package configs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// DSN adds statement_timeout so a stuck query cannot hold a webhook open.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=donasiku&options=-c%%20statement_timeout=5000",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
}

type PaypalConfig struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	Mode         string
	BaseURL      string
}

type CoinPaymentsConfig struct {
	PublicKey  string
	PrivateKey string
	IPNSecret  string
	MerchantID string
	Currency   string
}

type MidtransConfig struct {
	ServerKey     string
	UseProduction bool
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type Config struct {
	Stage    string
	Port     string
	BaseURL  string
	LogLevel string
	NodeID   int64

	DB DBConfig

	Stripe       StripeConfig
	Paypal       PaypalConfig
	CoinPayments CoinPaymentsConfig
	Midtrans     MidtransConfig
	SMTP         SMTPConfig

	GatewayTimeout time.Duration
	JWTSecret      string
	CorsOrigins    []string

	DefaultCurrency      string
	AnonymousEmailDomain string
	GeneralCampaignTitle string

	EventRetentionDays int
	EventReaperCron    string
	PlansFile          string
}

// Load reads the environment. Call LoadEnv first to pick up .env.
func Load() (*Config, error) {
	cfg := &Config{
		Stage:    GetEnv("STAGE", "development"),
		Port:     GetEnv("PORT", "3000"),
		BaseURL:  strings.TrimRight(GetEnv("BASE_URL"), "/"),
		LogLevel: GetEnv("LOG_LEVEL", "info"),
		NodeID:   getInt64("NODE_ID", 1),

		DB: DBConfig{
			User:     GetEnv("DB_USER"),
			Password: GetEnv("DB_PASSWORD"),
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "5432"),
			Name:     GetEnv("DB_NAME"),
			SSLMode:  GetEnv("DB_SSLMODE", "require"),
		},

		Stripe: StripeConfig{
			SecretKey:        GetEnv("STRIPE_SK"),
			WebhookSecret:    GetEnv("STRIPE_WEBHOOK_ENDPOINT_SK"),
			WebhookTolerance: getDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Paypal: PaypalConfig{
			ClientID:     GetEnv("PAYPAL_CLIENT_ID"),
			ClientSecret: GetEnv("PAYPAL_CLIENT_SECRET"),
			WebhookID:    GetEnv("PAYPAL_WEBHOOK_ID"),
			Mode:         GetEnv("PAYPAL_MODE", "sandbox"),
			BaseURL:      GetEnv("PAYPAL_BASE_URL"),
		},
		CoinPayments: CoinPaymentsConfig{
			PublicKey:  GetEnv("COIN_PAYMENT_KEY"),
			PrivateKey: GetEnv("COIN_PAYMENT_SK"),
			IPNSecret:  GetEnv("COIN_PAYMENT_IPN_SECRET"),
			MerchantID: GetEnv("COIN_PAYMENT_MERCHANT_ID"),
			Currency:   GetEnv("COIN_PAYMENT_CURRENCY", "BTC"),
		},
		Midtrans: MidtransConfig{
			ServerKey:     GetEnv("MIDTRANS_SERVER_KEY"),
			UseProduction: getBool("MIDTRANS_USE_PROD", false),
		},
		SMTP: SMTPConfig{
			Host:     GetEnv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			User:     GetEnv("SMTP_USER"),
			Password: GetEnv("SMTP_PASSWORD"),
			From:     GetEnv("MAIL_FROM", "donations@localhost"),
		},

		GatewayTimeout: getDuration("GATEWAY_TIMEOUT", 15*time.Second),
		JWTSecret:      GetEnv("JWT_SECRET"),
		CorsOrigins:    splitList(GetEnv("CORS_ORIGINS")),

		DefaultCurrency:      strings.ToUpper(GetEnv("DEFAULT_CURRENCY", "GBP")),
		AnonymousEmailDomain: GetEnv("ANONYMOUS_EMAIL_DOMAIN", "anonymous.invalid"),
		GeneralCampaignTitle: GetEnv("GENERAL_CAMPAIGN_TITLE", "General Fund"),

		EventRetentionDays: getInt("EVENT_RETENTION_DAYS", 90),
		EventReaperCron:    GetEnv("EVENT_REAPER_CRON", "15 2 * * *"),
		PlansFile:          GetEnv("PLANS_FILE"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.NodeID < 0 || c.NodeID > 1023 {
		errs = append(errs, fmt.Errorf("NODE_ID must be 0..1023, got %d", c.NodeID))
	}
	if len(c.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Errorf("DEFAULT_CURRENCY must be a 3 letter code, got %q", c.DefaultCurrency))
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_ENDPOINT_SK is required when STRIPE_SK is set"))
	}
	if c.CoinPayments.PublicKey != "" && c.CoinPayments.IPNSecret == "" {
		errs = append(errs, errors.New("COIN_PAYMENT_IPN_SECRET is required when COIN_PAYMENT_KEY is set"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Stage, "production")
}

// Provider switches: a provider is mounted only when its keys are present.

func (c *Config) StripeEnabled() bool { return c.Stripe.SecretKey != "" }

func (c *Config) PaypalEnabled() bool {
	return c.Paypal.ClientID != "" && c.Paypal.ClientSecret != ""
}

func (c *Config) CoinPaymentsEnabled() bool {
	return c.CoinPayments.PublicKey != "" && c.CoinPayments.PrivateKey != ""
}

func (c *Config) MidtransEnabled() bool { return c.Midtrans.ServerKey != "" }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
