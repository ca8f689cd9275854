// Package api serves the development gateway over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"tickerpay/internal/gateway"
	"tickerpay/internal/l402"
	"tickerpay/internal/logging"
	"tickerpay/internal/present"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// InvoiceSettler settles a Lightning invoice by payment hash. Only the mock
// backend provides one.
type InvoiceSettler func(paymentHash string) bool

// Handler handles HTTP requests.
type Handler struct {
	gateway        *gateway.Service
	pendingLimiter *PendingInvoiceLimiter
	settler        InvoiceSettler
	mux            *http.ServeMux
}

// NewHandler creates a new HTTP handler.
// If pendingLimiter is nil, no pending invoice limit is enforced.
func NewHandler(svc *gateway.Service, pendingLimiter *PendingInvoiceLimiter) *Handler {
	h := &Handler{
		gateway:        svc,
		pendingLimiter: pendingLimiter,
		mux:            http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// SetInvoiceSettler enables the development settle endpoint.
func (h *Handler) SetInvoiceSettler(s InvoiceSettler) {
	h.settler = s
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /signup", h.handleSignup)
	h.mux.HandleFunc("GET /info", h.requireAuth(h.handleInfo))
	h.mux.HandleFunc("GET /ticker/{symbol}", h.requireAuth(h.handleTicker))
	h.mux.HandleFunc("POST /l402/payment-request", h.handlePaymentRequest)
	h.mux.HandleFunc("GET /checkout/{id}", h.handleCheckoutPage)
	h.mux.HandleFunc("POST /checkout/{id}", h.handleCheckoutComplete)
	h.mux.HandleFunc("POST /dev/invoices/{hash}/settle", h.handleSettle)
	h.mux.HandleFunc("GET /terms", h.handleTerms)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTP.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, l402.ErrorBody{Error: msg})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user l402.UserInfo)

// requireAuth resolves the bearer token to an account.
func (h *Handler) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}
		user, err := h.gateway.Info(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r, user)
	}
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Signup())
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request, user l402.UserInfo) {
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleTicker(w http.ResponseWriter, r *http.Request, user l402.UserInfo) {
	symbol := r.PathValue("symbol")

	data, offers, err := h.gateway.Ticker(r.Context(), user.ID, symbol)
	switch {
	case errors.Is(err, gateway.ErrUnknownSymbol):
		writeError(w, http.StatusBadRequest, "unable to fetch stock data for ticker "+symbol)
	case err != nil:
		logging.Gateway.Error().Err(err).Str("symbol", symbol).Msg("ticker lookup failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch stock data")
	case offers != nil:
		writeJSON(w, http.StatusPaymentRequired, offers)
	default:
		writeJSON(w, http.StatusOK, data)
	}
}

func (h *Handler) handlePaymentRequest(w http.ResponseWriter, r *http.Request) {
	var body l402.PaymentRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.OfferID == "" || body.PaymentMethod == "" || body.PaymentContextToken == "" {
		writeError(w, http.StatusBadRequest, "offer_id, payment_method and payment_context_token are required")
		return
	}

	if h.pendingLimiter != nil {
		userID, err := h.gateway.ContextUser(body.PaymentContextToken)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !h.pendingLimiter.CanIssue(userID) {
			msg := fmt.Sprintf("pending payment limit reached: you have %d open payment request(s) (max %d). "+
				"Please pay for or wait for existing requests to expire before creating more.",
				h.pendingLimiter.PendingCount(userID), h.pendingLimiter.MaxPending())
			writeError(w, http.StatusTooManyRequests, msg)
			return
		}
	}

	issued, err := h.gateway.CreatePaymentRequest(r.Context(), body)
	switch {
	case errors.Is(err, gateway.ErrInvalidContext),
		errors.Is(err, gateway.ErrContextExpired),
		errors.Is(err, gateway.ErrUnknownOffer),
		errors.Is(err, gateway.ErrUnsupportedMethod):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.Gateway.Error().Err(err).Str("offer", body.OfferID).Msg("failed to create payment request")
		writeError(w, http.StatusInternalServerError, "failed to create payment request")
		return
	}

	if h.pendingLimiter != nil {
		h.pendingLimiter.Track(issued.UserID, issued.Reference)
	}
	writeJSON(w, http.StatusOK, issued.Request)
}

func (h *Handler) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := h.gateway.GetPending(id)
	if !ok || p.Method == l402.MethodLightning {
		http.Error(w, "checkout session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<title>Checkout</title>
<h1>%s</h1>
<p>%s</p>
<p>Total: %s</p>
<form method="post" action="/checkout/%s"><button type="submit">Pay (mock)</button></form>
`, html.EscapeString(p.Offer.Title), html.EscapeString(p.Offer.Description),
		html.EscapeString(present.FormatMinor(p.Offer.Amount, p.Offer.Currency)), html.EscapeString(id))
}

func (h *Handler) handleCheckoutComplete(w http.ResponseWriter, r *http.Request) {
	p, err := h.gateway.CompleteCheckout(r.PathValue("id"))
	switch {
	case errors.Is(err, gateway.ErrCheckoutNotFound):
		http.Error(w, "checkout session not found", http.StatusNotFound)
		return
	case errors.Is(err, gateway.ErrCheckoutExpired):
		http.Error(w, "checkout session expired", http.StatusGone)
		return
	case err != nil:
		http.Error(w, "checkout failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html>\n<title>Paid</title>\n<p>Payment received. %d credit(s) added. You can close this page.</p>\n", p.Offer.Credits)
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	if h.settler == nil {
		writeError(w, http.StatusNotFound, "settlement endpoint disabled")
		return
	}
	if !h.settler(r.PathValue("hash")) {
		writeError(w, http.StatusNotFound, "invoice not found or already settled")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTerms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Credits are non-refundable. One credit buys one ticker lookup.")
}
