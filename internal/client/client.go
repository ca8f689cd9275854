// Package client talks to the metered-access gateway: anonymous signup,
// balance inquiry, paid ticker lookups and payment-request issuance.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"tickerpay/internal/l402"
	"tickerpay/internal/logging"
)

// ErrUnexpectedStatus matches every StatusError.
var ErrUnexpectedStatus = errors.New("unexpected gateway status")

// StatusError is returned when the gateway answers with a status the
// operation does not accept.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrUnexpectedStatus }

// Config holds configuration for the gateway client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Client implements the consumed HTTP boundary of the gateway.
type Client struct {
	rc *resty.Client
}

// New creates a gateway client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
		rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return limiter.Wait(r.Context())
		})
	}

	return &Client{rc: rc}
}

// Signup creates a new anonymous account.
func (c *Client) Signup(ctx context.Context) (*l402.UserInfo, error) {
	var info l402.UserInfo
	resp, err := c.rc.R().SetContext(ctx).Get("/signup")
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError("signup", resp)
	}
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("signup: failed to decode response: %w", err)
	}
	logging.Internal.Debug().Str("user", info.ID).Msg("signed up")
	return &info, nil
}

// Balance returns the account behind identity, including its credits.
func (c *Client) Balance(ctx context.Context, identity string) (*l402.UserInfo, error) {
	var info l402.UserInfo
	resp, err := c.rc.R().SetContext(ctx).SetAuthToken(identity).Get("/info")
	if err != nil {
		return nil, fmt.Errorf("get info: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError("get info", resp)
	}
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("get info: failed to decode response: %w", err)
	}
	return &info, nil
}

// TickerResult is the outcome of a paid lookup. Exactly one of Data and
// Offers is set.
type TickerResult struct {
	Status int
	Data   *l402.TickerData
	Offers *l402.OfferSet
}

// Ticker fetches paid data for symbol. A 402 is not an error: the offer set
// is returned in the result.
func (c *Client) Ticker(ctx context.Context, identity, symbol string) (*TickerResult, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetAuthToken(identity).
		SetPathParam("symbol", symbol).
		Get("/ticker/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("ticker %s: %w", symbol, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var data l402.TickerData
		if err := json.Unmarshal(resp.Body(), &data); err != nil {
			return nil, fmt.Errorf("ticker %s: failed to decode data: %w", symbol, err)
		}
		if data.Symbol == "" {
			data.Symbol = symbol
		}
		return &TickerResult{Status: http.StatusOK, Data: &data}, nil
	case http.StatusPaymentRequired:
		var offers l402.OfferSet
		if err := json.Unmarshal(resp.Body(), &offers); err != nil {
			return nil, fmt.Errorf("ticker %s: failed to decode offers: %w", symbol, err)
		}
		logging.Payments.Debug().Int("offers", len(offers.Offers)).Msg("payment required")
		return &TickerResult{Status: http.StatusPaymentRequired, Offers: &offers}, nil
	default:
		return nil, statusError("ticker "+symbol, resp)
	}
}

// CreatePaymentRequest asks the gateway to issue a payment request for one
// offer of a previously received offer set.
func (c *Client) CreatePaymentRequest(ctx context.Context, body l402.PaymentRequestBody) (*l402.PaymentRequest, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/l402/payment-request")
	if err != nil {
		return nil, fmt.Errorf("payment request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError("payment request", resp)
	}

	var pr l402.PaymentRequest
	if err := json.Unmarshal(resp.Body(), &pr); err != nil {
		return nil, fmt.Errorf("payment request: failed to decode response: %w", err)
	}
	logging.Payments.Info().
		Str("offer", body.OfferID).
		Str("method", body.PaymentMethod).
		Time("expires_at", pr.ExpiresAt).
		Msg("payment request issued")
	return &pr, nil
}

func statusError(op string, resp *resty.Response) error {
	e := &StatusError{Op: op, Status: resp.StatusCode()}
	var body l402.ErrorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		e.Message = body.Error
	} else if s := strings.TrimSpace(string(resp.Body())); len(s) > 0 && len(s) < 200 {
		e.Message = s
	}
	return e
}
