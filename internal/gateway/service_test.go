package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerpay/internal/l402"
)

func newTestService(t *testing.T) (*Service, *MockLightning) {
	t.Helper()
	ln := NewMockLightning(0)
	t.Cleanup(func() { ln.Close() })

	svc := NewService(Config{
		PublicURL:     "http://gateway.test",
		SignupCredits: 1,
		OfferExpiry:   10 * time.Minute,
		InvoiceExpiry: time.Hour,
		SatsPerUSD:    1000,
	}, ln, NewStaticQuotes())
	return svc, ln
}

func TestService_TickerSpendsCredit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := svc.Signup()
	assert.Equal(t, int64(1), user.Credits)

	data, offers, err := svc.Ticker(ctx, user.ID, "aapl")
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Nil(t, offers)
	assert.Equal(t, "AAPL", data.Symbol)
	assert.Equal(t, 228.26, data.AdditionalData.CurrentPrice)

	info, err := svc.Info(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Credits)

	data, offers, err = svc.Ticker(ctx, user.ID, "aapl")
	require.NoError(t, err)
	assert.Nil(t, data)
	require.NotNil(t, offers)
	assert.Len(t, offers.Offers, 3)
	assert.NotEmpty(t, offers.PaymentContextToken)
	assert.Equal(t, ProtocolVersion, offers.Version)
	assert.Equal(t, "http://gateway.test/terms", offers.TermsURL)
}

func TestService_TickerUnknownSymbolIsFree(t *testing.T) {
	svc, _ := newTestService(t)
	user := svc.Signup()

	_, _, err := svc.Ticker(context.Background(), user.ID, "not a symbol")
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	info, _ := svc.Info(user.ID)
	assert.Equal(t, int64(1), info.Credits)
}

func TestService_LightningSettlement(t *testing.T) {
	svc, ln := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.StartPaymentWatcher(ctx))

	var mu sync.Mutex
	var settled []string
	svc.SetPaymentCallback(func(ref string) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, ref)
	})

	user := svc.Signup()
	set := svc.OfferSet(user.ID)

	issued, err := svc.CreatePaymentRequest(ctx, l402.PaymentRequestBody{
		OfferID:             "offer_97bf23f7",
		PaymentMethod:       l402.MethodLightning,
		PaymentContextToken: set.PaymentContextToken,
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, issued.UserID)
	assert.Contains(t, issued.Request.PaymentRequest.LightningInvoice, "lnbc")
	assert.Empty(t, issued.Request.PaymentRequest.CheckoutURL)
	assert.True(t, issued.Request.ExpiresAt.After(time.Now().Add(50*time.Minute)))

	_, ok := svc.GetPending(issued.Reference)
	require.True(t, ok)

	assert.True(t, ln.SimulatePayment(issued.Reference))
	assert.False(t, ln.SimulatePayment(issued.Reference), "settles once")

	assert.Eventually(t, func() bool {
		info, _ := svc.Info(user.ID)
		return info.Credits == 101
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{issued.Reference}, settled)
	mu.Unlock()

	_, ok = svc.GetPending(issued.Reference)
	assert.False(t, ok)
}

func TestService_Checkout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := svc.Signup()
	set := svc.OfferSet(user.ID)

	issued, err := svc.CreatePaymentRequest(ctx, l402.PaymentRequestBody{
		OfferID:             "offer_a896b13c",
		PaymentMethod:       l402.MethodCreditCard,
		PaymentContextToken: set.PaymentContextToken,
	})
	require.NoError(t, err)
	assert.Equal(t, "http://gateway.test/checkout/"+issued.Reference, issued.Request.PaymentRequest.CheckoutURL)

	p, err := svc.CompleteCheckout(issued.Reference)
	require.NoError(t, err)
	assert.Equal(t, int64(500), p.Offer.Credits)

	info, _ := svc.Info(user.ID)
	assert.Equal(t, int64(501), info.Credits)

	_, err = svc.CompleteCheckout(issued.Reference)
	assert.ErrorIs(t, err, ErrCheckoutNotFound)
}

func TestService_CreatePaymentRequestErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := svc.Signup()
	token := svc.OfferSet(user.ID).PaymentContextToken

	tests := []struct {
		name    string
		body    l402.PaymentRequestBody
		wantErr error
	}{
		{"bad token", l402.PaymentRequestBody{OfferID: "offer_c668e0c0", PaymentMethod: l402.MethodLightning, PaymentContextToken: "nope"}, ErrInvalidContext},
		{"unknown offer", l402.PaymentRequestBody{OfferID: "offer_x", PaymentMethod: l402.MethodLightning, PaymentContextToken: token}, ErrUnknownOffer},
		{"unsupported method", l402.PaymentRequestBody{OfferID: "offer_c668e0c0", PaymentMethod: l402.MethodCreditCard, PaymentContextToken: token}, ErrUnsupportedMethod},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePaymentRequest(ctx, tc.body)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestService_CleanupExpired(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := svc.Signup()
	token := svc.OfferSet(user.ID).PaymentContextToken

	issued, err := svc.CreatePaymentRequest(ctx, l402.PaymentRequestBody{
		OfferID:             "offer_c668e0c0",
		PaymentMethod:       l402.MethodCoinbaseCommerce,
		PaymentContextToken: token,
	})
	require.NoError(t, err)

	assert.Empty(t, svc.CleanupExpired())

	later := time.Now().Add(2 * time.Hour)
	svc.now = func() time.Time { return later }
	assert.Equal(t, []string{issued.Reference}, svc.CleanupExpired())

	_, err = svc.ContextUser(token)
	assert.ErrorIs(t, err, ErrInvalidContext, "expired tokens are pruned")
}

func TestTokens_Expiry(t *testing.T) {
	tokens := NewTokens()
	now := time.Now()
	token := tokens.Issue("user-1", now.Add(time.Minute))

	user, err := tokens.Resolve(token, now)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user)

	_, err = tokens.Resolve(token, now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrContextExpired)
}

func TestLedger(t *testing.T) {
	l := NewLedger()
	u := l.Create(1)
	assert.NotEmpty(t, u.ID)

	left, err := l.Spend(u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), left)

	_, err = l.Spend(u.ID)
	assert.ErrorIs(t, err, ErrNoCredits)

	_, err = l.AddCredits("missing", 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 1, l.Len())
}

func TestCentsToSats(t *testing.T) {
	assert.Equal(t, int64(10), CentsToSats(1, 1000))
	assert.Equal(t, int64(990), CentsToSats(99, 1000))
	assert.Equal(t, int64(1), CentsToSats(1, 33))
}

func TestStaticQuotes_Synthetic(t *testing.T) {
	q := NewStaticQuotes()

	a, err := q.Quote("tsla")
	require.NoError(t, err)
	b, err := q.Quote("TSLA")
	require.NoError(t, err)

	assert.Equal(t, a, b, "synthetic data is stable")
	assert.Len(t, a.FinancialData, 4)
	assert.Equal(t, "2024-12-31", a.FinancialData[0].FiscalDateEnding)
	assert.Greater(t, a.AdditionalData.CurrentPrice, 0.0)
}
