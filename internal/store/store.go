package store

import (
	"context"
	"time"
)

// PaymentRecord is one payment request issued by this client.
type PaymentRecord struct {
	ID            int64
	UserID        string
	OfferID       string
	PaymentMethod string
	AmountMinor   int64
	Currency      string
	ExpiresAt     time.Time
	Cached        bool
	CreatedAt     time.Time
}

// MethodStats counts payment requests issued with one method.
type MethodStats struct {
	Method   string
	Requests int
	Amount   int64
}

// Stats summarises the payment-request history.
type Stats struct {
	TotalRequests  int
	TotalAmount    int64
	CachedInvoices int
	Oldest         time.Time
	Newest         time.Time
	ByMethod       []MethodStats
}

// Store defines the interface for durable client state.
type Store interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
	RecordPaymentRequest(ctx context.Context, rec *PaymentRecord) error
	ListPaymentRequests(ctx context.Context, limit int) ([]*PaymentRecord, error)
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
