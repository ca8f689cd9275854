package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerpay/internal/l402"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClient_Signup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signup", r.URL.Path)
		writeJSON(w, http.StatusOK, l402.UserInfo{ID: "user-1", Credits: 1})
	})

	info, err := c.Signup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.ID)
	assert.Equal(t, int64(1), info.Credits)
}

func TestClient_SignupFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, l402.ErrorBody{Error: "maintenance"})
	})

	_, err := c.Signup(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedStatus)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, "signup: HTTP 503: maintenance", err.Error())
}

func TestClient_BalanceSendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, l402.UserInfo{ID: "user-1", Credits: 7})
	})

	info, err := c.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Credits)
}

func TestClient_Ticker(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		check   func(t *testing.T, res *TickerResult)
		wantErr bool
	}{
		{
			name:   "paid content",
			status: http.StatusOK,
			body: l402.TickerData{
				AdditionalData: l402.Quote{CurrentPrice: 123.456, PERatio: 18.2},
			},
			check: func(t *testing.T, res *TickerResult) {
				require.NotNil(t, res.Data)
				assert.Nil(t, res.Offers)
				assert.Equal(t, "AAPL", res.Data.Symbol)
				assert.Equal(t, 123.456, res.Data.AdditionalData.CurrentPrice)
			},
		},
		{
			name:   "payment required",
			status: http.StatusPaymentRequired,
			body: l402.OfferSet{
				PaymentContextToken: "ctx",
				Offers:              []l402.Offer{{OfferID: "o1", PaymentMethods: []string{"lightning", "credit_card"}}},
			},
			check: func(t *testing.T, res *TickerResult) {
				require.NotNil(t, res.Offers)
				assert.Nil(t, res.Data)
				assert.Equal(t, "ctx", res.Offers.PaymentContextToken)
				assert.Equal(t, http.StatusPaymentRequired, res.Status)
			},
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    l402.ErrorBody{Error: "Failed to fetch stock data"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/ticker/AAPL", r.URL.Path)
				writeJSON(w, tc.status, tc.body)
			})

			res, err := c.Ticker(context.Background(), "user-1", "AAPL")
			if tc.wantErr {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tc.status, se.Status)
				return
			}
			require.NoError(t, err)
			tc.check(t, res)
		})
	}
}

func TestClient_CreatePaymentRequest(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/l402/payment-request", r.URL.Path)

		var body l402.PaymentRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, l402.PaymentRequestBody{OfferID: "o1", PaymentMethod: "credit_card", PaymentContextToken: "ctx"}, body)

		writeJSON(w, http.StatusOK, l402.PaymentRequest{
			OfferID:        "o1",
			ExpiresAt:      expires,
			PaymentRequest: l402.PaymentDetails{CheckoutURL: "https://checkout.example/o1"},
		})
	})

	pr, err := c.CreatePaymentRequest(context.Background(), l402.PaymentRequestBody{
		OfferID: "o1", PaymentMethod: "credit_card", PaymentContextToken: "ctx",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/o1", pr.PaymentRequest.CheckoutURL)
	assert.True(t, expires.Equal(pr.ExpiresAt))
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, l402.UserInfo{ID: "u"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 0.001, Burst: 1})
	_, err := c.Signup(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Signup(ctx)
	assert.Error(t, err, "second call must wait for a token and give up with the context")
}
