// Package app wires the client components into one interactive session:
// the paid ticker action, the background balance refresh, the reload after
// a settled payment, and the command dispatcher used by the REPL.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tickerpay/internal/archive"
	"tickerpay/internal/balance"
	"tickerpay/internal/client"
	"tickerpay/internal/identity"
	"tickerpay/internal/l402"
	"tickerpay/internal/logging"
	"tickerpay/internal/payments"
	"tickerpay/internal/store"
)

// DefaultRefreshInterval is the background balance refresh interval.
const DefaultRefreshInterval = 10 * time.Second

var ErrNoSymbol = errors.New("missing ticker symbol")

// TickerSource fetches paid data.
type TickerSource interface {
	Ticker(ctx context.Context, identity, symbol string) (*client.TickerResult, error)
}

// View is the part of the presenter the session drives directly.
type View interface {
	SetIdentity(id string)
	ShowLoading()
	ShowResult(data l402.TickerData)
	ClearResult()
	Notify(message string)
}

// Archive stores paid results for later display.
type Archive interface {
	Put(ctx context.Context, symbol string, data l402.TickerData) error
	Get(ctx context.Context, symbol string) (*archive.Entry, error)
	Delete(ctx context.Context, symbol string) error
}

// History lists issued payment requests.
type History interface {
	ListPaymentRequests(ctx context.Context, limit int) ([]*store.PaymentRecord, error)
}

// Options wires a Session. Archive and History are optional.
type Options struct {
	Identity     *identity.Store
	Tracker      *balance.Tracker
	Orchestrator *payments.Orchestrator
	Poller       *payments.Poller
	Gateway      TickerSource
	View         View
	Archive      Archive
	History      History
	// Out receives command output such as help and history listings.
	Out             io.Writer
	RefreshInterval time.Duration
}

// Session is one running client.
type Session struct {
	identity *identity.Store
	tracker  *balance.Tracker
	orch     *payments.Orchestrator
	poller   *payments.Poller
	gateway  TickerSource
	view     View
	archive  Archive
	history  History
	out      io.Writer
	interval time.Duration
}

// New creates a session and connects the settlement callbacks.
func New(opt Options) *Session {
	out := opt.Out
	if out == nil {
		out = io.Discard
	}
	interval := opt.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	s := &Session{
		identity: opt.Identity,
		tracker:  opt.Tracker,
		orch:     opt.Orchestrator,
		poller:   opt.Poller,
		gateway:  opt.Gateway,
		view:     opt.View,
		archive:  opt.Archive,
		history:  opt.History,
		out:      out,
		interval: interval,
	}

	s.tracker.OnSettled(func(delta int64) {
		s.view.Notify(fmt.Sprintf("Payment successful! Added %d credit(s)", delta))
		s.orch.Settle()
	})
	s.poller.OnSettled(func() {
		if err := s.Reload(context.Background()); err != nil {
			logging.Internal.Error().Err(err).Msg("reload after settlement failed")
		}
	})
	return s
}

// Orchestrator returns the payment orchestrator.
func (s *Session) Orchestrator() *payments.Orchestrator { return s.orch }

// Init resolves the identity, shows it and loads the balance. Only an
// identity failure is returned; a failed balance refresh is notified.
func (s *Session) Init(ctx context.Context) error {
	id, err := s.identity.Ensure(ctx)
	if err != nil {
		s.view.Notify("Error initializing: " + err.Error())
		return err
	}
	s.view.SetIdentity(id)
	_ = s.tracker.Refresh(ctx)
	return nil
}

// NewKey replaces the identity with a freshly signed-up account.
func (s *Session) NewKey(ctx context.Context) error {
	info, err := s.identity.Renew(ctx)
	if err != nil {
		s.view.Notify("Error creating new account: " + err.Error())
		return err
	}

	s.orch.Reset()
	s.view.ClearResult()
	s.tracker.Reset()
	s.view.SetIdentity(info.ID)
	_ = s.tracker.Refresh(ctx)

	s.view.Notify(fmt.Sprintf("New account created! You received %d free credit(s)", info.Credits))
	return nil
}

// RequestTicker fetches paid data for symbol. A 402 presents the offers.
// The balance is refreshed afterwards in every case.
func (s *Session) RequestTicker(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		s.view.Notify("Error: " + ErrNoSymbol.Error())
		return ErrNoSymbol
	}

	s.view.ShowLoading()
	res, err := s.gateway.Ticker(ctx, s.identity.Current(), symbol)
	switch {
	case err != nil:
		var se *client.StatusError
		if errors.As(err, &se) {
			s.view.Notify(fmt.Sprintf("Error: HTTP error! status: %d", se.Status))
		} else {
			s.view.Notify("Error: " + err.Error())
		}
		s.view.ClearResult()
	case res.Data != nil:
		s.view.ShowResult(*res.Data)
		s.archiveResult(ctx, symbol, *res.Data)
	case res.Offers != nil:
		s.view.ClearResult()
		s.orch.ShowOffers(*res.Offers)
	}

	_ = s.tracker.Refresh(ctx)
	return err
}

func (s *Session) archiveResult(ctx context.Context, symbol string, data l402.TickerData) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Put(ctx, symbol, data); err != nil {
		logging.Archive.Warn().Err(err).Str("symbol", symbol).Msg("failed to archive result")
	}
}

// ShowArchived displays the archived result for symbol without a gateway call.
func (s *Session) ShowArchived(ctx context.Context, symbol string) error {
	if s.archive == nil {
		s.view.Notify("Archive is not configured")
		return archive.ErrNotFound
	}
	entry, err := s.archive.Get(ctx, symbol)
	if errors.Is(err, archive.ErrNotFound) {
		s.view.Notify("No archived result for " + strings.ToUpper(strings.TrimSpace(symbol)))
		return err
	}
	if err != nil {
		s.view.Notify("Error reading archive: " + err.Error())
		return err
	}
	s.view.ShowResult(entry.Data)
	s.view.Notify("Archived result from " + entry.ArchivedAt.Local().Format("2006-01-02 15:04"))
	return nil
}

// ForgetArchived removes the archived result for symbol.
func (s *Session) ForgetArchived(ctx context.Context, symbol string) error {
	if s.archive == nil {
		s.view.Notify("Archive is not configured")
		return archive.ErrNotFound
	}
	name := strings.ToUpper(strings.TrimSpace(symbol))
	err := s.archive.Delete(ctx, symbol)
	if errors.Is(err, archive.ErrNotFound) {
		s.view.Notify("No archived result for " + name)
		return err
	}
	if err != nil {
		s.view.Notify("Error removing archived result: " + err.Error())
		return err
	}
	logging.Archive.Info().Str("symbol", name).Msg("archived result removed")
	s.view.Notify("Removed archived result for " + name)
	return nil
}

// Reload resets the session after a settled payment.
func (s *Session) Reload(ctx context.Context) error {
	logging.Internal.Info().Msg("reloading session")
	s.orch.Reset()
	s.view.ClearResult()
	s.tracker.Reset()
	return s.Init(ctx)
}

// Run refreshes the balance on the session interval until ctx is done.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.tracker.Refresh(ctx)
		}
	}
}
