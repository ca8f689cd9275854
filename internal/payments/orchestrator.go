package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tickerpay/internal/l402"
	"tickerpay/internal/logging"
	"tickerpay/internal/store"
)

var (
	ErrMissingContext = errors.New("missing payment context")
	ErrUnknownOffer   = errors.New("unknown offer")
	ErrNoInvoice      = errors.New("no lightning invoice provided")
	ErrNoCheckoutURL  = errors.New("no checkout URL provided")
	ErrNoOffers       = errors.New("no offers to show")
)

// State is the orchestrator's position in a purchase.
type State int

const (
	Idle State = iota
	OffersShown
	RequestingPayment
	AwaitingLightningSettlement
	Redirecting
	Settled
	Abandoned
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OffersShown:
		return "offers_shown"
	case RequestingPayment:
		return "requesting_payment"
	case AwaitingLightningSettlement:
		return "awaiting_lightning_settlement"
	case Redirecting:
		return "redirecting"
	case Settled:
		return "settled"
	case Abandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Issuer creates payment requests at the gateway.
type Issuer interface {
	CreatePaymentRequest(ctx context.Context, body l402.PaymentRequestBody) (*l402.PaymentRequest, error)
}

// Surface is the payment modal and notification channel.
type Surface interface {
	OfferView
	ShowInvoice(invoice string)
	HidePaymentSurface()
	Notify(message string)
}

// Navigator opens a hosted checkout page.
type Navigator interface {
	Navigate(url string) error
}

// Clipboard receives copied invoices.
type Clipboard interface {
	Copy(text string) error
}

// BalanceSource yields the last observed balance.
type BalanceSource interface {
	Last() (int64, bool)
}

// Recorder keeps a history of issued payment requests.
type Recorder interface {
	RecordPaymentRequest(ctx context.Context, rec *store.PaymentRecord) error
}

// IdentitySource yields the current user identifier.
type IdentitySource interface {
	Current() string
}

// Options wires an Orchestrator.
type Options struct {
	Issuer    Issuer
	Surface   Surface
	Navigator Navigator
	Clipboard Clipboard
	Balance   BalanceSource
	Poller    *Poller
	Cache     *InvoiceCache
	// Recorder and Identity are optional.
	Recorder Recorder
	Identity IdentitySource
}

// Orchestrator runs the purchase state machine.
type Orchestrator struct {
	catalog   *Catalog
	issuer    Issuer
	surface   Surface
	navigator Navigator
	clipboard Clipboard
	balance   BalanceSource
	poller    *Poller
	cache     *InvoiceCache
	recorder  Recorder
	identity  IdentitySource

	mu      sync.Mutex
	state   State
	attempt uint64
	invoice string
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(opt Options) *Orchestrator {
	cache := opt.Cache
	if cache == nil {
		cache = NewInvoiceCache(DefaultCacheMargin)
	}
	return &Orchestrator{
		catalog:   NewCatalog(opt.Surface),
		issuer:    opt.Issuer,
		surface:   opt.Surface,
		navigator: opt.Navigator,
		clipboard: opt.Clipboard,
		balance:   opt.Balance,
		poller:    opt.Poller,
		cache:     cache,
		recorder:  opt.Recorder,
		identity:  opt.Identity,
	}
}

// Catalog returns the offer catalog.
func (o *Orchestrator) Catalog() *Catalog { return o.catalog }

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Invoice returns the Lightning invoice currently displayed.
func (o *Orchestrator) Invoice() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.invoice
}

// ShowOffers presents a new offer set.
func (o *Orchestrator) ShowOffers(set l402.OfferSet) {
	o.mu.Lock()
	o.attempt++
	o.state = OffersShown
	o.invoice = ""
	o.mu.Unlock()

	o.catalog.Present(set)
}

// Initiate starts paying for offerID with method.
func (o *Orchestrator) Initiate(ctx context.Context, offerID, method string) error {
	set, ok := o.catalog.Current()
	if !ok || set.PaymentContextToken == "" {
		return o.fail(ErrMissingContext)
	}
	offer, ok := set.Offer(offerID)
	if !ok {
		return o.fail(fmt.Errorf("%w: %s", ErrUnknownOffer, offerID))
	}

	o.mu.Lock()
	o.attempt++
	attempt := o.attempt
	o.state = RequestingPayment
	o.mu.Unlock()

	lightning := method == l402.MethodLightning
	if lightning {
		if req, ok := o.cache.Get(offerID); ok {
			logging.Payments.Debug().Str("offer", offerID).Msg("reusing cached invoice")
			o.awaitSettlement(attempt, offerID, req, false)
			return nil
		}
	}

	req, err := o.issuer.CreatePaymentRequest(ctx, l402.PaymentRequestBody{
		OfferID:             offerID,
		PaymentMethod:       method,
		PaymentContextToken: set.PaymentContextToken,
	})
	if err != nil {
		return o.failAttempt(attempt, err)
	}

	if lightning {
		if req.PaymentRequest.LightningInvoice == "" {
			return o.failAttempt(attempt, ErrNoInvoice)
		}
		if cached, ok := o.awaitSettlement(attempt, offerID, *req, true); ok {
			o.record(ctx, offer, method, req, cached)
		}
		return nil
	}

	url := req.PaymentRequest.CheckoutURL
	if url == "" {
		return o.failAttempt(attempt, ErrNoCheckoutURL)
	}
	if !o.advance(attempt, Redirecting) {
		return nil
	}
	o.record(ctx, offer, method, req, false)
	if err := o.navigator.Navigate(url); err != nil {
		return o.failAttempt(attempt, fmt.Errorf("open checkout: %w", err))
	}
	return nil
}

// awaitSettlement shows the invoice and starts the poller unless attempt was
// superseded. A fresh request is cached under the same lock as the attempt
// check.
func (o *Orchestrator) awaitSettlement(attempt uint64, offerID string, req l402.PaymentRequest, fresh bool) (cached, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt != attempt || o.state != RequestingPayment {
		logging.Payments.Debug().Str("offer", offerID).Msg("payment abandoned while requesting")
		return false, false
	}
	if fresh {
		cached = o.cache.Put(offerID, req)
	}
	o.state = AwaitingLightningSettlement
	o.invoice = req.PaymentRequest.LightningInvoice

	o.surface.ShowInvoice(o.invoice)

	baseline, _ := o.balance.Last()
	o.poller.Start(baseline)
	return cached, true
}

// advance moves from RequestingPayment to next unless the attempt was
// superseded.
func (o *Orchestrator) advance(attempt uint64, next State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt != attempt || o.state != RequestingPayment {
		return false
	}
	o.state = next
	return true
}

func (o *Orchestrator) fail(err error) error {
	return o.failAttempt(0, err)
}

// failAttempt notifies err and returns to the offer list. A superseded
// attempt keeps the state it was superseded with. Zero means no attempt has
// started yet.
func (o *Orchestrator) failAttempt(attempt uint64, err error) error {
	logging.Payments.Warn().Err(err).Uint64("attempt", attempt).Msg("payment initiation failed")

	_, hasOffers := o.catalog.Current()
	o.mu.Lock()
	if attempt == 0 || o.attempt == attempt {
		if hasOffers {
			o.state = OffersShown
		} else {
			o.state = Idle
		}
	}
	o.mu.Unlock()

	o.surface.Notify("Error initiating payment: " + err.Error())
	return err
}

func (o *Orchestrator) record(ctx context.Context, offer l402.Offer, method string, req *l402.PaymentRequest, cached bool) {
	if o.recorder == nil {
		return
	}
	rec := &store.PaymentRecord{
		OfferID:       offer.OfferID,
		PaymentMethod: method,
		AmountMinor:   offer.Amount,
		Currency:      offer.Currency,
		ExpiresAt:     req.ExpiresAt,
		Cached:        cached,
	}
	if o.identity != nil {
		rec.UserID = o.identity.Current()
	}
	if err := o.recorder.RecordPaymentRequest(ctx, rec); err != nil {
		logging.Store.Warn().Err(err).Str("offer", offer.OfferID).Msg("failed to record payment request")
	}
}

// BackToMethods returns from the invoice view to the retained offer list.
// The invoice cache and a running poller are kept.
func (o *Orchestrator) BackToMethods() error {
	set, ok := o.catalog.Current()
	if !ok {
		return ErrNoOffers
	}

	o.mu.Lock()
	o.state = OffersShown
	o.invoice = ""
	o.mu.Unlock()

	o.catalog.Present(set)
	return nil
}

// CopyInvoice copies the displayed invoice to the clipboard.
func (o *Orchestrator) CopyInvoice() error {
	invoice := o.Invoice()
	if invoice == "" {
		return ErrNoInvoice
	}
	if err := o.clipboard.Copy(invoice); err != nil {
		o.surface.Notify("Failed to copy invoice: " + err.Error())
		return err
	}
	o.surface.Notify("Invoice copied to clipboard!")
	return nil
}

// Dismiss closes the payment surface, stops the poller and clears the
// invoice cache. Idempotent.
func (o *Orchestrator) Dismiss() {
	o.close(Abandoned)
}

// Settle closes the payment surface after a settlement. A running poller
// completes instead of being cancelled, so its callback still fires.
func (o *Orchestrator) Settle() {
	o.close(Settled)
}

// Reset discards all purchase state and returns to Idle.
func (o *Orchestrator) Reset() {
	o.close(Idle)
	o.catalog.reset()
}

func (o *Orchestrator) close(final State) {
	// Supersede in-flight attempts before clearing what they might write.
	o.mu.Lock()
	o.attempt++
	if o.state != Idle || final == Idle {
		o.state = final
	}
	o.invoice = ""
	o.mu.Unlock()

	if final == Settled {
		o.poller.Settle()
	} else {
		o.poller.Stop()
	}
	o.cache.Clear()

	o.surface.HidePaymentSurface()
}
