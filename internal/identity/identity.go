// Package identity owns the anonymous user identifier the gateway issues on
// signup and keeps it in durable client storage.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tickerpay/internal/l402"
	"tickerpay/internal/logging"
	"tickerpay/internal/store"
)

// StorageKey is the client_state key holding the identifier.
const StorageKey = "userId"

var ErrSignupFailed = errors.New("signup failed")

// Signer creates anonymous accounts.
type Signer interface {
	Signup(ctx context.Context) (*l402.UserInfo, error)
}

// KeyValue is the slice of store.Store the identity needs.
type KeyValue interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}

// Store resolves and persists the user identifier.
type Store struct {
	signer Signer
	kv     KeyValue

	mu sync.Mutex
	id string
}

// NewStore creates an identity store.
func NewStore(signer Signer, kv KeyValue) *Store {
	return &Store{signer: signer, kv: kv}
}

// Ensure returns the persisted identifier, signing up first when none exists.
func (s *Store) Ensure(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id, nil
	}

	id, err := s.kv.GetValue(ctx, StorageKey)
	if err == nil && id != "" {
		s.id = id
		return id, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to read identity: %w", err)
	}

	info, err := s.signupLocked(ctx)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Renew replaces the identifier with a freshly signed-up one.
func (s *Store) Renew(ctx context.Context) (*l402.UserInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signupLocked(ctx)
}

// Current returns the identifier resolved so far, or "".
func (s *Store) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Store) signupLocked(ctx context.Context) (*l402.UserInfo, error) {
	info, err := s.signer.Signup(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignupFailed, err)
	}
	if info == nil || info.ID == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrSignupFailed)
	}

	if err := s.kv.SetValue(ctx, StorageKey, info.ID); err != nil {
		return nil, fmt.Errorf("failed to persist identity: %w", err)
	}
	s.id = info.ID

	logging.Internal.Info().Str("user", info.ID).Int64("credits", info.Credits).Msg("new account created")
	return info, nil
}
