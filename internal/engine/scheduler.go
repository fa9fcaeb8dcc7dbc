package engine

import (
	"context"
	"time"
)

// Ticker drives the periodic loop. The interval implementation wraps
// time.Ticker; the manual one lets tests and the harness step the loop
// deterministically.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// IntervalTicker ticks on a fixed wall-clock interval.
type IntervalTicker struct {
	t *time.Ticker
}

// NewIntervalTicker returns a ticker firing every d.
func NewIntervalTicker(d time.Duration) *IntervalTicker {
	return &IntervalTicker{t: time.NewTicker(d)}
}

func (t *IntervalTicker) C() <-chan time.Time { return t.t.C }
func (t *IntervalTicker) Stop()               { t.t.Stop() }

// ManualTicker fires only when Tick is called.
type ManualTicker struct {
	ch chan time.Time
}

// NewManualTicker returns a manually driven ticker.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time, 1)}
}

func (t *ManualTicker) C() <-chan time.Time { return t.ch }
func (t *ManualTicker) Stop()               {}

// Tick fires the ticker once.
func (t *ManualTicker) Tick(at time.Time) { t.ch <- at }

// Run drives the synchronization loop until the context is canceled or
// the document reaches the terminal state with everything acknowledged.
// Each tick runs one dirty-check; once the stored snapshot is authorized
// only the outstanding transfer is retried.
func (e *Engine) Run(ctx context.Context, ticker Ticker) error {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			e.mu.Lock()
			terminal := e.storedIsAuthorized
			sent := e.isSent
			e.mu.Unlock()

			switch {
			case terminal && sent:
				return nil
			case terminal:
				e.Send(ctx, SendOptions{})
			default:
				e.Check(ctx, CheckOptions{})
			}
		}
	}
}
