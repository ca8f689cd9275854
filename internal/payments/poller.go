package payments

import (
	"context"
	"sync"
	"time"

	"tickerpay/internal/logging"
)

// DefaultPollInterval is the settlement check interval.
const DefaultPollInterval = 2 * time.Second

// Refresher is the balance tracker as seen by the poller.
type Refresher interface {
	Refresh(ctx context.Context) error
	Last() (int64, bool)
}

// TickerFunc starts a periodic ticker and returns its channel and stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func timeTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Poller refreshes the balance on a fixed interval until it exceeds a baseline.
type Poller struct {
	refresher Refresher
	interval  time.Duration
	newTicker TickerFunc

	mu        sync.Mutex
	session   uint64
	cancel    context.CancelFunc
	settled   chan struct{}
	onSettled func()
}

// NewPoller creates a stopped poller. A non-positive interval uses
// DefaultPollInterval.
func NewPoller(refresher Refresher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		refresher: refresher,
		interval:  interval,
		newTicker: timeTicker,
	}
}

// SetTicker replaces the ticker source. Used by tests.
func (p *Poller) SetTicker(fn TickerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.newTicker = fn
}

// OnSettled sets the callback fired once the running session settles.
func (p *Poller) OnSettled(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSettled = fn
}

// Start cancels any running session and begins polling against baseline.
func (p *Poller) Start(baseline int64) {
	p.mu.Lock()
	p.stopLocked()
	p.session++
	id := p.session
	ctx, cancel := context.WithCancel(context.Background())
	settled := make(chan struct{})
	p.cancel = cancel
	p.settled = settled
	ticks, stopTicker := p.newTicker(p.interval)
	p.mu.Unlock()

	logging.Payments.Debug().Uint64("session", id).Int64("baseline", baseline).Msg("settlement poller started")
	go p.run(ctx, cancel, id, baseline, ticks, stopTicker, settled)
}

// Stop cancels the running session. Safe to call when stopped. Once it
// returns the session's callback never fires, even for a refresh that was
// already in flight.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Settle ends the running session as paid: polling stops and the callback
// fires. Safe to call when stopped.
func (p *Poller) Settle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	close(p.settled)
	// The session goroutine cancels its own context once the callback ran.
	p.cancel = nil
	p.settled = nil
	p.session++
}

// Active reports whether a session is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.settled = nil
	p.session++
}

func (p *Poller) current(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil && p.session == id
}

// finish ends session id and reports whether it was still the running one.
func (p *Poller) finish(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil || p.session != id {
		return false
	}
	p.stopLocked()
	return true
}

func (p *Poller) complete(id uint64) {
	logging.Payments.Info().Uint64("session", id).Msg("settlement observed")

	p.mu.Lock()
	cb := p.onSettled
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, id uint64, baseline int64,
	ticks <-chan time.Time, stopTicker func(), settled <-chan struct{}) {
	defer stopTicker()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-settled:
			p.complete(id)
			return
		case <-ticks:
		}
		if isClosed(settled) {
			p.complete(id)
			return
		}
		if ctx.Err() != nil || !p.current(id) {
			return
		}

		err := p.refresher.Refresh(ctx)
		// The refresh itself may have reported the settlement.
		if isClosed(settled) {
			p.complete(id)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient failures are retried on the next tick.
			continue
		}

		if last, ok := p.refresher.Last(); ok && last > baseline {
			if !p.finish(id) {
				// Stopped while the refresh was in flight.
				return
			}
			p.complete(id)
			return
		}
	}
}
