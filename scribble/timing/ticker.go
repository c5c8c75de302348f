package timing

import (
	"sync"
	"time"
)

// Ticker delivers periodic ticks on a channel until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every interval.
type TickerFunc func(interval time.Duration) Ticker

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(interval time.Duration) Ticker {
	return &timeTicker{ticker: time.NewTicker(interval)}
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t *timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t *timeTicker) Stop()               { t.ticker.Stop() }

// TickerLimiter uses time.Ticker for simple, consistent frame timing.
type TickerLimiter struct {
	interval time.Duration
	ticker   *time.Ticker
}

func NewTickerLimiter(fps int) *TickerLimiter {
	interval := Interval(fps)
	return &TickerLimiter{
		interval: interval,
		ticker:   time.NewTicker(interval),
	}
}

func (t *TickerLimiter) WaitForNextFrame() {
	<-t.ticker.C
}

func (t *TickerLimiter) Reset() {
	t.ticker.Reset(t.interval)
}

func (t *TickerLimiter) Stop() {
	t.ticker.Stop()
}

// ManualTicker is a Ticker driven explicitly by Tick, for deterministic tests
// and scripted runs.
type ManualTicker struct {
	ch       chan time.Time
	done     chan struct{}
	stopOnce sync.Once
	interval time.Duration
}

// NewManualTicker returns a ticker that only fires when Tick is called.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{
		ch:   make(chan time.Time),
		done: make(chan struct{}),
	}
}

// Factory returns a TickerFunc that always hands out m, recording the
// requested interval.
func (m *ManualTicker) Factory() TickerFunc {
	return func(interval time.Duration) Ticker {
		m.interval = interval
		return m
	}
}

// Interval is the period most recently requested through Factory.
func (m *ManualTicker) Interval() time.Duration {
	return m.interval
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }

// Stop makes pending and future Tick calls return false.
func (m *ManualTicker) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// Tick delivers one tick and blocks until the consumer receives it.
// Returns false if the ticker was stopped first.
func (m *ManualTicker) Tick() bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.ch <- time.Now():
		return true
	case <-m.done:
		return false
	}
}
