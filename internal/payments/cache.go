package payments

import (
	"sync"
	"time"

	"tickerpay/internal/l402"
)

// DefaultCacheMargin is the minimum remaining lifetime for an invoice to be
// reused.
const DefaultCacheMargin = 5 * time.Minute

// InvoiceCache keeps Lightning payment requests by offer id.
type InvoiceCache struct {
	margin time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]l402.PaymentRequest
}

// NewInvoiceCache creates a cache. A non-positive margin uses DefaultCacheMargin.
func NewInvoiceCache(margin time.Duration) *InvoiceCache {
	if margin <= 0 {
		margin = DefaultCacheMargin
	}
	return &InvoiceCache{
		margin:  margin,
		now:     time.Now,
		entries: make(map[string]l402.PaymentRequest),
	}
}

// Put stores req if it stays valid beyond the margin and reports whether it
// was stored.
func (c *InvoiceCache) Put(offerID string, req l402.PaymentRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !req.ExpiresAt.After(c.now().Add(c.margin)) {
		return false
	}
	c.entries[offerID] = req
	return true
}

// Get returns the cached request for offerID. Entries that fell inside the
// margin since they were stored are evicted.
func (c *InvoiceCache) Get(offerID string) (l402.PaymentRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.entries[offerID]
	if !ok {
		return l402.PaymentRequest{}, false
	}
	if !req.ExpiresAt.After(c.now().Add(c.margin)) {
		delete(c.entries, offerID)
		return l402.PaymentRequest{}, false
	}
	return req, true
}

// Clear drops every entry.
func (c *InvoiceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of entries.
func (c *InvoiceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
