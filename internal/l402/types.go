// Package l402 holds the wire types of the metered-access gateway: the
// anonymous account, the paid ticker payload, the 402 offer set and the
// payment-request exchange.
package l402

import "time"

// Payment method identifiers known to the gateway.
const (
	MethodLightning        = "lightning"
	MethodCoinbaseCommerce = "coinbase_commerce"
	MethodCreditCard       = "credit_card"
)

// UserInfo is returned by signup and balance inquiry.
type UserInfo struct {
	ID        string    `json:"id"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Offer is one purchasable credit package. Amount is in minor currency units.
type Offer struct {
	OfferID        string   `json:"offer_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Amount         int64    `json:"amount"`
	Currency       string   `json:"currency,omitempty"`
	Credits        int64    `json:"credits,omitempty"`
	PaymentMethods []string `json:"payment_methods"`
}

// OfferSet is the body of a 402 Payment Required response.
type OfferSet struct {
	Version             string    `json:"version,omitempty"`
	Offers              []Offer   `json:"offers"`
	PaymentContextToken string    `json:"payment_context_token"`
	Expiry              time.Time `json:"expiry,omitempty"`
	TermsURL            string    `json:"terms_url,omitempty"`
}

// Offer returns the offer with the given id.
func (s OfferSet) Offer(id string) (Offer, bool) {
	for _, o := range s.Offers {
		if o.OfferID == id {
			return o, true
		}
	}
	return Offer{}, false
}

// PaymentRequestBody is posted to issue a payment request for one offer.
type PaymentRequestBody struct {
	OfferID             string `json:"offer_id"`
	PaymentMethod       string `json:"payment_method"`
	PaymentContextToken string `json:"payment_context_token"`
}

// PaymentDetails carries the method-specific payload: a BOLT11 invoice for
// lightning, a hosted checkout URL for redirect-style methods.
type PaymentDetails struct {
	LightningInvoice string `json:"lightning_invoice,omitempty"`
	CheckoutURL      string `json:"checkout_url,omitempty"`
}

// PaymentRequest is the gateway's answer to a PaymentRequestBody.
type PaymentRequest struct {
	Version        string         `json:"version,omitempty"`
	OfferID        string         `json:"offer_id"`
	PaymentMethod  string         `json:"payment_method,omitempty"`
	ExpiresAt      time.Time      `json:"expires_at"`
	PaymentRequest PaymentDetails `json:"payment_request"`
}

// Financials is one reporting period of a company's income statement.
type Financials struct {
	FiscalDateEnding string  `json:"fiscalDateEnding"`
	TotalRevenue     float64 `json:"totalRevenue"`
	GrossProfit      float64 `json:"grossProfit"`
	NetIncome        float64 `json:"netIncome"`
}

// Quote holds market data for the symbol.
type Quote struct {
	EPS          float64 `json:"eps"`
	PERatio      float64 `json:"pe_ratio"`
	CurrentPrice float64 `json:"current_price"`
}

// TickerData is the paid payload of a ticker lookup. FinancialData is
// ordered newest first.
type TickerData struct {
	Symbol         string       `json:"symbol,omitempty"`
	FinancialData  []Financials `json:"financial_data"`
	AdditionalData Quote        `json:"additional_data"`
}

// ErrorBody is the JSON error envelope used by the gateway.
type ErrorBody struct {
	Error string `json:"error"`
}
