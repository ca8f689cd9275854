package gateway

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"tickerpay/internal/l402"
)

// ProtocolVersion is advertised in offer sets and payment requests.
const ProtocolVersion = "0.2.2"

var (
	ErrUnknownOffer      = errors.New("unknown offer")
	ErrUnsupportedMethod = errors.New("payment method not supported for offer")
	ErrInvalidContext    = errors.New("invalid payment context token")
	ErrContextExpired    = errors.New("payment context token expired")
)

// CreditPackages are the offers presented on every 402.
var CreditPackages = []l402.Offer{
	{
		OfferID:        "offer_c668e0c0",
		Title:          "1 Credit Package",
		Description:    "Purchase 1 credit for API access",
		Amount:         1,
		Currency:       "USD",
		Credits:        1,
		PaymentMethods: []string{l402.MethodLightning, l402.MethodCoinbaseCommerce},
	},
	{
		OfferID:        "offer_97bf23f7",
		Title:          "10 Credits Package",
		Description:    "Purchase 10 credits for API access",
		Amount:         99,
		Currency:       "USD",
		Credits:        100,
		PaymentMethods: []string{l402.MethodLightning, l402.MethodCoinbaseCommerce},
	},
	{
		OfferID:        "offer_a896b13c",
		Title:          "100 Credits Package",
		Description:    "Purchase 100 credits for API access",
		Amount:         499,
		Currency:       "USD",
		Credits:        500,
		PaymentMethods: []string{l402.MethodLightning, l402.MethodCoinbaseCommerce, l402.MethodCreditCard},
	},
}

// FindOffer returns the credit package with the given id.
func FindOffer(id string) (l402.Offer, bool) {
	for _, o := range CreditPackages {
		if o.OfferID == id {
			return o, true
		}
	}
	return l402.Offer{}, false
}

func supportsMethod(o l402.Offer, method string) bool {
	return slices.Contains(o.PaymentMethods, method)
}

type contextToken struct {
	userID    string
	expiresAt time.Time
}

// Tokens binds payment context tokens to the user that received the 402.
type Tokens struct {
	mu      sync.Mutex
	entries map[string]contextToken
}

// NewTokens creates an empty token registry.
func NewTokens() *Tokens {
	return &Tokens{entries: make(map[string]contextToken)}
}

// Issue creates a token for userID valid until expiresAt.
func (t *Tokens) Issue(userID string, expiresAt time.Time) string {
	token := uuid.NewString()

	t.mu.Lock()
	t.entries[token] = contextToken{userID: userID, expiresAt: expiresAt}
	t.mu.Unlock()

	return token
}

// Resolve returns the user a token was issued to.
func (t *Tokens) Resolve(token string, now time.Time) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[token]
	if !ok {
		return "", ErrInvalidContext
	}
	if !now.Before(entry.expiresAt) {
		delete(t.entries, token)
		return "", ErrContextExpired
	}
	return entry.userID, nil
}

// Prune drops tokens expired at now and returns how many were removed.
func (t *Tokens) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for token, entry := range t.entries {
		if !now.Before(entry.expiresAt) {
			delete(t.entries, token)
			removed++
		}
	}
	return removed
}
