package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"tickerpay/internal/l402"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNoCredits    = errors.New("no credits left")
)

// Ledger holds accounts and their credit balances in memory.
type Ledger struct {
	mu    sync.RWMutex
	users map[string]*l402.UserInfo
	now   func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		users: make(map[string]*l402.UserInfo),
		now:   time.Now,
	}
}

// Create opens an anonymous account holding credits.
func (l *Ledger) Create(credits int64) l402.UserInfo {
	u := &l402.UserInfo{
		ID:        uuid.NewString(),
		Credits:   credits,
		CreatedAt: l.now().UTC(),
	}

	l.mu.Lock()
	l.users[u.ID] = u
	l.mu.Unlock()

	return *u
}

// Get returns a copy of the account.
func (l *Ledger) Get(id string) (l402.UserInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	u, ok := l.users[id]
	if !ok {
		return l402.UserInfo{}, ErrUserNotFound
	}
	return *u, nil
}

// AddCredits credits the account and returns the new balance.
func (l *Ledger) AddCredits(id string, credits int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[id]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.Credits += credits
	return u.Credits, nil
}

// Spend takes one credit from the account.
func (l *Ledger) Spend(id string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[id]
	if !ok {
		return 0, ErrUserNotFound
	}
	if u.Credits <= 0 {
		return 0, ErrNoCredits
	}
	u.Credits--
	return u.Credits, nil
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.users)
}
