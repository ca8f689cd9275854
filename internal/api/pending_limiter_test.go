package api

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPendingInvoiceLimiter_CanIssue(t *testing.T) {
	limiter := NewPendingInvoiceLimiter(3)
	user := "user-1"

	for i := 0; i < 3; i++ {
		if !limiter.CanIssue(user) {
			t.Errorf("request %d should be allowed", i+1)
		}
		limiter.Track(user, fmt.Sprintf("ref%d", i))
	}

	if limiter.CanIssue(user) {
		t.Error("4th request should be blocked")
	}
	if !limiter.CanIssue("user-2") {
		t.Error("another user should not be affected")
	}
}

func TestPendingInvoiceLimiter_Release(t *testing.T) {
	limiter := NewPendingInvoiceLimiter(2)
	user := "user-1"

	limiter.Track(user, "ref1")
	limiter.Track(user, "ref2")
	if limiter.CanIssue(user) {
		t.Fatal("should be at limit")
	}

	limiter.Release("ref1")
	if !limiter.CanIssue(user) {
		t.Error("should allow a request after settlement")
	}

	// Releasing twice or releasing an unknown reference must not go negative.
	limiter.Release("ref1")
	limiter.Release("nonexistent")
	if got := limiter.PendingCount(user); got != 1 {
		t.Errorf("expected 1 pending, got %d", got)
	}

	limiter.Release("ref2")
	if got := limiter.PendingCount(user); got != 0 {
		t.Errorf("expected 0 pending, got %d", got)
	}
}

func TestPendingInvoiceLimiter_CleanupExpired(t *testing.T) {
	limiter := NewPendingInvoiceLimiter(3)
	user := "user-1"

	limiter.Track(user, "old")
	time.Sleep(50 * time.Millisecond)
	limiter.Track(user, "new")

	if removed := limiter.CleanupExpired(24 * time.Hour); removed != 0 {
		t.Errorf("expected 0 removed with long duration, got %d", removed)
	}

	if removed := limiter.CleanupExpired(25 * time.Millisecond); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	// The remaining entry should be "new"
	limiter.Release("new")
	if limiter.PendingCount(user) != 0 {
		t.Error("new should have been the remaining entry")
	}
}

func TestPendingInvoiceLimiter_Concurrent(t *testing.T) {
	limiter := NewPendingInvoiceLimiter(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%3)
			for j := 0; j < 50; j++ {
				ref := fmt.Sprintf("ref-%d-%d", i, j)
				limiter.Track(user, ref)
				limiter.CanIssue(user)
				if j%2 == 0 {
					limiter.Release(ref)
				}
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 3; i++ {
		total += limiter.PendingCount(fmt.Sprintf("user-%d", i))
	}
	if total != 250 {
		t.Errorf("expected 250 pending, got %d", total)
	}
}
