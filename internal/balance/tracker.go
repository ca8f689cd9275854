// Package balance tracks the prepaid credit count of the current identity and
// infers settled payments from strict increases.
package balance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tickerpay/internal/l402"
	"tickerpay/internal/logging"
)

var ErrNoIdentity = errors.New("no identity")

// Fetcher reads the account state from the gateway.
type Fetcher interface {
	Balance(ctx context.Context, identity string) (*l402.UserInfo, error)
}

// IdentitySource yields the identifier to authenticate with.
type IdentitySource interface {
	Current() string
}

// Display is where the tracker shows credits and failures.
type Display interface {
	SetCredits(credits int64)
	Notify(message string)
}

// SettledFunc is called with the number of credits added.
type SettledFunc func(delta int64)

// Tracker caches the last observed balance.
type Tracker struct {
	fetcher  Fetcher
	identity IdentitySource
	display  Display

	// refreshMu serializes Refresh calls end to end.
	refreshMu sync.Mutex

	mu        sync.Mutex
	last      int64
	observed  bool
	onSettled SettledFunc
}

// NewTracker creates a balance tracker.
func NewTracker(fetcher Fetcher, identity IdentitySource, display Display) *Tracker {
	return &Tracker{
		fetcher:  fetcher,
		identity: identity,
		display:  display,
	}
}

// OnSettled sets the callback invoked when the balance strictly increases.
func (t *Tracker) OnSettled(fn SettledFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettled = fn
}

// Last returns the last observed balance and whether one was observed.
func (t *Tracker) Last() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.observed
}

// Reset forgets the baseline; the next Refresh only establishes a new one.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = 0
	t.observed = false
}

// Refresh fetches the balance, displays it and emits the settled event if
// it grew since the previous observation. On failure the tracker state is
// left untouched.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	id := t.identity.Current()
	if id == "" {
		return t.fail(ErrNoIdentity)
	}

	info, err := t.fetcher.Balance(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return t.fail(err)
	}

	credits := info.Credits
	t.display.SetCredits(credits)

	t.mu.Lock()
	prev, observed := t.last, t.observed
	cb := t.onSettled
	t.mu.Unlock()

	if observed && credits > prev {
		delta := credits - prev
		logging.Payments.Info().Int64("delta", delta).Int64("credits", credits).Msg("balance increased")
		if cb != nil {
			cb(delta)
		}
	}

	t.mu.Lock()
	t.last = credits
	t.observed = true
	t.mu.Unlock()

	return nil
}

func (t *Tracker) fail(err error) error {
	logging.Internal.Warn().Err(err).Msg("balance refresh failed")
	t.display.Notify(fmt.Sprintf("Error refreshing balance: %v", err))
	return err
}
