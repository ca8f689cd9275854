// Package config loads client and gateway settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Client struct {
	Debug   bool   `env:"DEBUG" envDefault:"false"`
	LogFile string `env:"LOG_FILE"`

	GatewayURL     string        `env:"GATEWAY_URL" envDefault:"http://localhost:8080"`
	DBPath         string        `env:"DB_PATH" envDefault:"tickerpay.db"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RateLimit      float64       `env:"CLIENT_RATE_LIMIT" envDefault:"5"`
	RateBurst      int           `env:"CLIENT_RATE_BURST" envDefault:"10"`

	BalanceRefreshInterval time.Duration `env:"BALANCE_REFRESH_INTERVAL" envDefault:"10s"`
	SettlementPollInterval time.Duration `env:"SETTLEMENT_POLL_INTERVAL" envDefault:"2s"`
	NotificationDuration   time.Duration `env:"NOTIFICATION_DURATION" envDefault:"5s"`
	InvoiceCacheMargin     time.Duration `env:"INVOICE_CACHE_MARGIN" envDefault:"5m"`

	ArchiveDir string `env:"ARCHIVE_DIR" envDefault:"./archive"`

	S3 struct {
		Endpoint  string `env:"S3_ENDPOINT"`
		AccessKey string `env:"S3_ACCESS_KEY"`
		SecretKey string `env:"S3_SECRET_KEY"`
		Bucket    string `env:"S3_BUCKET"`
		Prefix    string `env:"S3_PREFIX"`
		Secure    bool   `env:"S3_SECURE" envDefault:"true"`
	}
}

// UseS3 reports whether results are archived to object storage.
func (c *Client) UseS3() bool {
	return c.S3.Endpoint != "" && c.S3.Bucket != ""
}

type Gateway struct {
	Debug bool `env:"DEBUG" envDefault:"false"`
	Dev   bool `env:"DEV" envDefault:"false"`

	Addr        string   `env:"GATEWAY_ADDR" envDefault:":8080"`
	PublicURL   string   `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	TrustProxy  bool     `env:"TRUST_PROXY" envDefault:"false"`

	SignupCredits      int64         `env:"SIGNUP_CREDITS" envDefault:"1"`
	OfferExpiry        time.Duration `env:"OFFER_EXPIRY" envDefault:"30m"`
	InvoiceExpiry      time.Duration `env:"INVOICE_EXPIRY" envDefault:"1h"`
	MockSettleAfter    time.Duration `env:"MOCK_SETTLE_AFTER" envDefault:"20s"`
	MaxPendingInvoices int           `env:"MAX_PENDING_INVOICES" envDefault:"3"`
}

func load(cfg any) error {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// LoadClient reads the client configuration.
func LoadClient() (*Client, error) {
	cfg := &Client{}
	if err := load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadGateway reads the gateway configuration.
func LoadGateway() (*Gateway, error) {
	cfg := &Gateway{}
	if err := load(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPendingInvoices < 1 {
		return nil, fmt.Errorf("MAX_PENDING_INVOICES must be at least 1, got %d", cfg.MaxPendingInvoices)
	}
	return cfg, nil
}
