package api

import (
	"sync"
	"time"
)

// PendingInvoiceLimiter tracks open (unsettled) payment requests per user and
// enforces a maximum number of them, so a client cannot mint invoices
// without paying.
type PendingInvoiceLimiter struct {
	mu            sync.RWMutex
	maxPending    int
	pendingByUser map[string]map[string]time.Time // user -> reference -> tracked time
	refToUser     map[string]string               // reference -> user (reverse lookup)
}

// NewPendingInvoiceLimiter creates a limiter allowing maxPending open
// payment requests per user.
func NewPendingInvoiceLimiter(maxPending int) *PendingInvoiceLimiter {
	return &PendingInvoiceLimiter{
		maxPending:    maxPending,
		pendingByUser: make(map[string]map[string]time.Time),
		refToUser:     make(map[string]string),
	}
}

// CanIssue reports whether the user is under the limit.
func (l *PendingInvoiceLimiter) CanIssue(userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pendingByUser[userID]) < l.maxPending
}

// PendingCount returns the number of open payment requests of a user.
func (l *PendingInvoiceLimiter) PendingCount(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pendingByUser[userID])
}

// MaxPending returns the configured maximum.
func (l *PendingInvoiceLimiter) MaxPending() int {
	return l.maxPending
}

// Track records a newly issued payment request.
func (l *PendingInvoiceLimiter) Track(userID, reference string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pendingByUser[userID] == nil {
		l.pendingByUser[userID] = make(map[string]time.Time)
	}
	l.pendingByUser[userID][reference] = time.Now()
	l.refToUser[reference] = userID
}

// Release stops tracking a payment request. It is the payment callback and
// is also called for requests dropped on expiry.
func (l *PendingInvoiceLimiter) Release(reference string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	userID, ok := l.refToUser[reference]
	if !ok {
		return
	}

	delete(l.refToUser, reference)
	if refs := l.pendingByUser[userID]; refs != nil {
		delete(refs, reference)
		if len(refs) == 0 {
			delete(l.pendingByUser, userID)
		}
	}
}

// CleanupExpired removes entries tracked longer than maxAge and returns how
// many were removed.
func (l *PendingInvoiceLimiter) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for userID, refs := range l.pendingByUser {
		for ref, trackedAt := range refs {
			if trackedAt.Before(cutoff) {
				delete(refs, ref)
				delete(l.refToUser, ref)
				removed++
			}
		}
		if len(refs) == 0 {
			delete(l.pendingByUser, userID)
		}
	}

	return removed
}
