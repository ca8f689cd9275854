// Package archive keeps the latest paid result per ticker symbol so it can
// be shown again without spending a credit.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tickerpay/internal/l402"
	"tickerpay/internal/logging"
)

// Entry is one archived result.
type Entry struct {
	Symbol     string          `json:"symbol"`
	ArchivedAt time.Time       `json:"archived_at"`
	Data       l402.TickerData `json:"data"`
}

// Service archives ticker results on a Storage backend.
type Service struct {
	storage Storage
	now     func() time.Time
}

// NewService creates an archive service.
func NewService(storage Storage) *Service {
	return &Service{storage: storage, now: time.Now}
}

func symbolKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Put archives data under its symbol, replacing any earlier entry.
func (s *Service) Put(ctx context.Context, symbol string, data l402.TickerData) error {
	key := symbolKey(symbol)
	entry := Entry{Symbol: key, ArchivedAt: s.now().UTC(), Data: data}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode archive entry: %w", err)
	}
	if _, err := s.storage.Save(ctx, key, bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}

	logging.Archive.Debug().Str("symbol", key).Int("bytes", len(body)).Msg("result archived")
	return nil
}

// Get returns the archived entry for symbol.
func (s *Service) Get(ctx context.Context, symbol string) (*Entry, error) {
	key := symbolKey(symbol)
	rc, err := s.storage.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var entry Entry
	if err := json.NewDecoder(rc).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode archive entry %s: %w", key, err)
	}
	return &entry, nil
}

// Delete removes the archived entry for symbol.
func (s *Service) Delete(ctx context.Context, symbol string) error {
	return s.storage.Delete(ctx, symbolKey(symbol))
}
