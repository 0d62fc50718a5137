// Package epoch implements the cooperative execution budget.
//
// A Clock is a monotonic counter advanced by an external agent, usually a
// Ticker. Each store owns a Budget holding a deadline on that clock; the
// injected safe points call Budget.Check, which fails once the clock has
// reached the deadline.
package epoch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Clock is a monotonic epoch counter safe for concurrent use.
type Clock struct {
	now atomic.Uint64
}

// NewClock returns a clock starting at zero.
func NewClock() *Clock {
	return &Clock{}
}

var process Clock

// Process returns the process-wide clock used when none is configured.
func Process() *Clock {
	return &process
}

// Advance increments the epoch by one and returns the new value.
func (c *Clock) Advance() uint64 {
	return c.now.Add(1)
}

// AdvanceBy increments the epoch by n and returns the new value.
func (c *Clock) AdvanceBy(n uint64) uint64 {
	return c.now.Add(n)
}

// Current returns the current epoch.
func (c *Clock) Current() uint64 {
	return c.now.Load()
}

// Run advances clock once per interval until ctx is done.
func Run(ctx context.Context, clock *Clock, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			clock.Advance()
		}
	}
}

// Ticker advances a clock at a fixed interval on its own goroutine.
type Ticker struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewTicker starts advancing clock every interval. Call Stop to release
// the goroutine.
func NewTicker(clock *Clock, interval time.Duration) *Ticker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Ticker{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		Run(ctx, clock, interval)
	}()
	return t
}

// Stop halts the ticker and waits for its goroutine to exit. Safe to call
// more than once.
func (t *Ticker) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}
