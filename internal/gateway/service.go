// Package gateway implements the development metered-access gateway: the
// account ledger, 402 offer sets, payment-request issuance over a mock
// Lightning backend and mock hosted checkouts, and settlement crediting.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tickerpay/internal/l402"
	"tickerpay/internal/logging"
)

var (
	ErrCheckoutNotFound = errors.New("checkout session not found")
	ErrCheckoutExpired  = errors.New("checkout session expired")
)

// PaymentCallback is called with the reference of a settled payment request.
type PaymentCallback func(reference string)

// Config holds gateway service settings.
type Config struct {
	PublicURL     string
	SignupCredits int64
	OfferExpiry   time.Duration
	InvoiceExpiry time.Duration
	// SatsPerUSD prices Lightning invoices.
	SatsPerUSD int64
}

// Pending is a payment request waiting for settlement.
type Pending struct {
	Reference string
	UserID    string
	Offer     l402.Offer
	Method    string
	ExpiresAt time.Time
}

// Issued is the result of CreatePaymentRequest.
type Issued struct {
	Request   l402.PaymentRequest
	Reference string
	UserID    string
}

// Service handles gateway operations.
type Service struct {
	cfg       Config
	ledger    *Ledger
	tokens    *Tokens
	lightning LightningBackend
	quotes    QuoteSource
	now       func() time.Time

	mu        sync.RWMutex
	pending   map[string]*Pending // keyed by payment hash or checkout id
	onPayment PaymentCallback
}

// NewService creates a gateway service.
func NewService(cfg Config, lightning LightningBackend, quotes QuoteSource) *Service {
	if cfg.OfferExpiry <= 0 {
		cfg.OfferExpiry = 30 * time.Minute
	}
	if cfg.InvoiceExpiry <= 0 {
		cfg.InvoiceExpiry = time.Hour
	}
	if cfg.SatsPerUSD <= 0 {
		cfg.SatsPerUSD = 1000
	}
	return &Service{
		cfg:       cfg,
		ledger:    NewLedger(),
		tokens:    NewTokens(),
		lightning: lightning,
		quotes:    quotes,
		now:       time.Now,
		pending:   make(map[string]*Pending),
	}
}

// Ledger exposes the account ledger.
func (s *Service) Ledger() *Ledger { return s.ledger }

// SetPaymentCallback sets a callback invoked after a payment is credited.
func (s *Service) SetPaymentCallback(cb PaymentCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPayment = cb
}

// Signup opens an anonymous account with the signup bonus.
func (s *Service) Signup() l402.UserInfo {
	u := s.ledger.Create(s.cfg.SignupCredits)
	logging.Gateway.Info().Str("user", u.ID).Int64("credits", u.Credits).Msg("signup")
	return u
}

// Info returns the account behind userID.
func (s *Service) Info(userID string) (l402.UserInfo, error) {
	return s.ledger.Get(userID)
}

// Ticker returns paid data for symbol, spending one credit. When the account
// has no credits it returns an offer set instead.
func (s *Service) Ticker(ctx context.Context, userID, symbol string) (*l402.TickerData, *l402.OfferSet, error) {
	u, err := s.ledger.Get(userID)
	if err != nil {
		return nil, nil, err
	}
	if u.Credits <= 0 {
		set := s.OfferSet(userID)
		return nil, &set, nil
	}

	data, err := s.quotes.Quote(symbol)
	if err != nil {
		return nil, nil, err
	}

	// Charge only once the data is in hand.
	left, err := s.ledger.Spend(userID)
	if errors.Is(err, ErrNoCredits) {
		set := s.OfferSet(userID)
		return nil, &set, nil
	}
	if err != nil {
		return nil, nil, err
	}

	logging.Gateway.Debug().Str("user", userID).Str("symbol", data.Symbol).Int64("credits_left", left).Msg("ticker served")
	return data, nil, nil
}

// OfferSet builds the 402 body for userID, with a fresh context token.
func (s *Service) OfferSet(userID string) l402.OfferSet {
	expiry := s.now().Add(s.cfg.OfferExpiry).UTC()
	return l402.OfferSet{
		Version:             ProtocolVersion,
		Offers:              append([]l402.Offer(nil), CreditPackages...),
		PaymentContextToken: s.tokens.Issue(userID, expiry),
		Expiry:              expiry,
		TermsURL:            s.cfg.PublicURL + "/terms",
	}
}

// ContextUser resolves a payment context token to its user.
func (s *Service) ContextUser(token string) (string, error) {
	return s.tokens.Resolve(token, s.now())
}

// CreatePaymentRequest issues a Lightning invoice or a hosted checkout
// session for one offer.
func (s *Service) CreatePaymentRequest(ctx context.Context, body l402.PaymentRequestBody) (*Issued, error) {
	userID, err := s.ContextUser(body.PaymentContextToken)
	if err != nil {
		return nil, err
	}
	offer, ok := FindOffer(body.OfferID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOffer, body.OfferID)
	}
	if !supportsMethod(offer, body.PaymentMethod) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, body.PaymentMethod)
	}

	req := l402.PaymentRequest{
		Version:       ProtocolVersion,
		OfferID:       offer.OfferID,
		PaymentMethod: body.PaymentMethod,
	}

	var reference string
	if body.PaymentMethod == l402.MethodLightning {
		sats := CentsToSats(offer.Amount, s.cfg.SatsPerUSD)
		inv, err := s.lightning.CreateInvoice(ctx, sats, offer.Title, s.cfg.InvoiceExpiry)
		if err != nil {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
		reference = inv.PaymentHash
		req.ExpiresAt = inv.ExpiresAt.UTC()
		req.PaymentRequest.LightningInvoice = inv.PaymentRequest
	} else {
		reference = uuid.NewString()
		req.ExpiresAt = s.now().Add(s.cfg.InvoiceExpiry).UTC()
		req.PaymentRequest.CheckoutURL = s.cfg.PublicURL + "/checkout/" + reference
	}

	s.mu.Lock()
	s.pending[reference] = &Pending{
		Reference: reference,
		UserID:    userID,
		Offer:     offer,
		Method:    body.PaymentMethod,
		ExpiresAt: req.ExpiresAt,
	}
	s.mu.Unlock()

	logging.Gateway.Info().
		Str("user", userID).
		Str("offer", offer.OfferID).
		Str("method", body.PaymentMethod).
		Msg("payment request issued")
	return &Issued{Request: req, Reference: reference, UserID: userID}, nil
}

// GetPending returns a pending payment request by reference.
func (s *Service) GetPending(reference string) (*Pending, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[reference]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// CompleteCheckout settles a hosted checkout session.
func (s *Service) CompleteCheckout(id string) (*Pending, error) {
	p, ok := s.GetPending(id)
	if !ok || p.Method == l402.MethodLightning {
		return nil, ErrCheckoutNotFound
	}
	if !s.now().Before(p.ExpiresAt) {
		s.drop(id)
		return nil, ErrCheckoutExpired
	}
	if !s.handlePayment(id) {
		return nil, ErrCheckoutNotFound
	}
	return p, nil
}

// StartPaymentWatcher starts watching for invoice payments and credits the
// paying user when an invoice settles.
func (s *Service) StartPaymentWatcher(ctx context.Context) error {
	updates, err := s.lightning.SubscribeInvoices(ctx)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Settled {
					s.handlePayment(update.PaymentHash)
				}
			}
		}
	}()

	return nil
}

func (s *Service) drop(reference string) {
	s.mu.Lock()
	delete(s.pending, reference)
	s.mu.Unlock()
}

func (s *Service) handlePayment(reference string) bool {
	s.mu.Lock()
	pending, ok := s.pending[reference]
	cb := s.onPayment
	if ok {
		delete(s.pending, reference)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	credits, err := s.ledger.AddCredits(pending.UserID, pending.Offer.Credits)
	if err != nil {
		logging.Gateway.Error().Err(err).Str("user", pending.UserID).Str("reference", reference).Msg("CRITICAL: failed to credit user after payment")
		return false
	}
	logging.Gateway.Info().
		Str("user", pending.UserID).
		Str("method", pending.Method).
		Int64("added", pending.Offer.Credits).
		Int64("credits", credits).
		Msg("payment settled")

	if cb != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Gateway.Error().Interface("panic", r).Str("reference", reference).Msg("payment callback panic")
				}
			}()
			cb(reference)
		}()
	}
	return true
}

// CleanupExpired drops expired payment requests and context tokens. It
// returns the references of the dropped payment requests.
func (s *Service) CleanupExpired() []string {
	now := s.now()
	s.tokens.Prune(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []string
	for ref, p := range s.pending {
		if !now.Before(p.ExpiresAt) {
			delete(s.pending, ref)
			dropped = append(dropped, ref)
		}
	}
	return dropped
}
