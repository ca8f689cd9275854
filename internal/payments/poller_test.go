package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// manualTicker delivers ticks only when the test asks for them.
type manualTicker struct {
	ch      chan time.Time
	started atomic.Int32
	stopped atomic.Int32
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time, 1)}
}

func (m *manualTicker) factory(time.Duration) (<-chan time.Time, func()) {
	m.started.Add(1)
	return m.ch, func() { m.stopped.Add(1) }
}

// tick offers one tick without blocking when nothing is listening.
func (m *manualTicker) tick() {
	select {
	case m.ch <- time.Now():
	default:
	}
}

type fakeRefresher struct {
	mu       sync.Mutex
	balances []int64
	calls    int
	last     int64
	observed bool
	err      error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if len(f.balances) > 0 {
		f.last = f.balances[0]
		if len(f.balances) > 1 {
			f.balances = f.balances[1:]
		}
		f.observed = true
	}
	return nil
}

func (f *fakeRefresher) Last() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.observed
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRefresher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newTestPoller(r Refresher) (*Poller, *manualTicker) {
	ticker := newManualTicker()
	p := NewPoller(r, time.Hour)
	p.SetTicker(ticker.factory)
	return p, ticker
}

func TestPoller_StopsAfterIncrease(t *testing.T) {
	r := &fakeRefresher{balances: []int64{5, 5, 8}}
	p, ticker := newTestPoller(r)

	var settled atomic.Int32
	p.OnSettled(func() { settled.Add(1) })

	p.Start(5)
	assert.True(t, p.Active())

	for want := 1; want <= 3; want++ {
		ticker.tick()
		assert.Eventually(t, func() bool { return r.Calls() == want }, time.Second, time.Millisecond)
	}

	assert.Eventually(t, func() bool { return settled.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, p.Active())
	assert.Eventually(t, func() bool { return ticker.stopped.Load() == 1 }, time.Second, time.Millisecond)

	ticker.tick()
	assert.Never(t, func() bool { return r.Calls() > 3 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, int32(1), settled.Load())
}

func TestPoller_NoTickAfterStop(t *testing.T) {
	r := &fakeRefresher{balances: []int64{1}}
	p, ticker := newTestPoller(r)

	p.Start(1)
	ticker.tick()
	assert.Eventually(t, func() bool { return r.Calls() == 1 }, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Active())

	ticker.tick()
	assert.Never(t, func() bool { return r.Calls() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	p, _ := newTestPoller(&fakeRefresher{})

	p.Stop()
	p.Start(0)
	p.Stop()
	p.Stop()

	assert.False(t, p.Active())
}

func TestPoller_StartReplacesSession(t *testing.T) {
	r := &fakeRefresher{balances: []int64{5}}
	p, ticker := newTestPoller(r)

	var settled atomic.Int32
	p.OnSettled(func() { settled.Add(1) })

	p.Start(0)
	p.Start(10)
	assert.Equal(t, int32(2), ticker.started.Load())

	assert.Eventually(t, func() bool {
		ticker.tick()
		return r.Calls() >= 1
	}, time.Second, 5*time.Millisecond)

	// 5 exceeds the first baseline but not the current one.
	assert.Never(t, func() bool { return settled.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.True(t, p.Active())
	p.Stop()
}

func TestPoller_RetriesAfterFailure(t *testing.T) {
	r := &fakeRefresher{balances: []int64{9}, err: errors.New("get info: HTTP 503")}
	p, ticker := newTestPoller(r)

	var settled atomic.Int32
	p.OnSettled(func() { settled.Add(1) })

	p.Start(3)
	ticker.tick()
	assert.Eventually(t, func() bool { return r.Calls() == 1 }, time.Second, time.Millisecond)
	assert.True(t, p.Active())

	r.setErr(nil)
	ticker.tick()
	assert.Eventually(t, func() bool { return settled.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, p.Active())
}

// gatedRefresher holds each Refresh until release is called.
type gatedRefresher struct {
	entered chan struct{}
	gate    chan struct{}
	// during runs inside Refresh once released.
	during func()

	mu   sync.Mutex
	last int64
}

func newGatedRefresher(last int64) *gatedRefresher {
	return &gatedRefresher{
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
		last:    last,
	}
}

func (g *gatedRefresher) Refresh(ctx context.Context) error {
	g.entered <- struct{}{}
	<-g.gate
	if g.during != nil {
		g.during()
	}
	return nil
}

func (g *gatedRefresher) Last() (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, true
}

func (g *gatedRefresher) release(last int64) {
	g.mu.Lock()
	g.last = last
	g.mu.Unlock()
	close(g.gate)
}

func TestPoller_StopDuringRefreshSuppressesCallback(t *testing.T) {
	r := newGatedRefresher(5)
	p, ticker := newTestPoller(r)

	var settled atomic.Int32
	p.OnSettled(func() { settled.Add(1) })

	p.Start(5)
	ticker.tick()
	select {
	case <-r.entered:
	case <-time.After(time.Second):
		t.Fatal("refresh did not start")
	}

	p.Stop()
	r.release(8)

	assert.Never(t, func() bool { return settled.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, p.Active())
}

func TestPoller_SettleFiresCallback(t *testing.T) {
	p, ticker := newTestPoller(&fakeRefresher{})

	var settled atomic.Int32
	p.OnSettled(func() { settled.Add(1) })

	p.Start(0)
	p.Settle()
	assert.False(t, p.Active())
	assert.Eventually(t, func() bool { return settled.Load() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return ticker.stopped.Load() == 1 }, time.Second, time.Millisecond)

	// Settling a stopped poller is a no-op.
	p.Settle()
	p.Start(0)
	p.Stop()
	p.Settle()
	assert.Never(t, func() bool { return settled.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPoller_SettleFromInsideRefresh(t *testing.T) {
	r := newGatedRefresher(5)
	p, ticker := newTestPoller(r)
	r.during = p.Settle

	var settled atomic.Int32
	p.OnSettled(func() { settled.Add(1) })

	p.Start(5)
	ticker.tick()
	<-r.entered
	// The balance did not pass the baseline; the settlement call alone
	// completes the session.
	r.release(5)

	assert.Eventually(t, func() bool { return settled.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, p.Active())
	assert.Never(t, func() bool { return settled.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}
