package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tickerpay/internal/logging"
)

// Invoice represents a Lightning Network invoice.
type Invoice struct {
	PaymentHash    string
	PaymentRequest string // BOLT11 encoded invoice
	AmountSats     int64
	ExpiresAt      time.Time
}

// InvoiceUpdate represents a payment status update.
type InvoiceUpdate struct {
	PaymentHash string
	Settled     bool
}

// LightningBackend defines the Lightning operations the gateway needs.
type LightningBackend interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string, expiry time.Duration) (*Invoice, error)
	SubscribeInvoices(ctx context.Context) (<-chan InvoiceUpdate, error)
	Close() error
}

// CentsToSats converts a USD amount in cents at satsPerUSD, rounding up to
// a whole satoshi.
func CentsToSats(cents, satsPerUSD int64) int64 {
	return decimal.New(cents, -2).Mul(decimal.NewFromInt(satsPerUSD)).Ceil().IntPart()
}

// MockLightning implements LightningBackend for development. Invoices settle
// on their own after SettleAfter unless it is zero.
type MockLightning struct {
	settleAfter time.Duration

	mu       sync.Mutex
	invoices map[string]*Invoice
	settled  map[string]bool
	closed   bool
	updates  chan InvoiceUpdate
}

// NewMockLightning creates a mock backend.
func NewMockLightning(settleAfter time.Duration) *MockLightning {
	return &MockLightning{
		settleAfter: settleAfter,
		invoices:    make(map[string]*Invoice),
		settled:     make(map[string]bool),
		updates:     make(chan InvoiceUpdate, 100),
	}
}

func (m *MockLightning) CreateInvoice(ctx context.Context, amountSats int64, memo string, expiry time.Duration) (*Invoice, error) {
	hash, err := generatePaymentHash()
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		PaymentHash:    hash,
		PaymentRequest: fmt.Sprintf("lnbc%dn1%s", amountSats*10, hash[:40]), // Fake BOLT11
		AmountSats:     amountSats,
		ExpiresAt:      time.Now().Add(expiry),
	}

	m.mu.Lock()
	m.invoices[hash] = inv
	m.mu.Unlock()

	if m.settleAfter > 0 {
		time.AfterFunc(m.settleAfter, func() {
			logging.Gateway.Debug().Str("hash", hash[:8]).Msg("mock: auto-settling invoice")
			m.SimulatePayment(hash)
		})
	}

	return inv, nil
}

func (m *MockLightning) SubscribeInvoices(ctx context.Context) (<-chan InvoiceUpdate, error) {
	return m.updates, nil
}

// SimulatePayment marks an invoice paid and reports whether it was known
// and still open.
func (m *MockLightning) SimulatePayment(paymentHash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.settled[paymentHash] {
		return false
	}
	if _, ok := m.invoices[paymentHash]; !ok {
		return false
	}
	m.settled[paymentHash] = true
	m.updates <- InvoiceUpdate{PaymentHash: paymentHash, Settled: true}
	return true
}

func (m *MockLightning) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.updates)
	}
	return nil
}

func generatePaymentHash() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
