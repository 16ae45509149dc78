package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
)

// Ticker is the external periodic source of TimerTick events for one run.
// The engine has no scheduler of its own; a deployment runs one Ticker.
type Ticker struct {
	engine   *Engine
	run      hunt.RunID
	interval time.Duration
}

// NewTicker creates a ticker for run. It does nothing until Run is called.
func (e *Engine) NewTicker(run hunt.RunID, interval time.Duration) *Ticker {
	return &Ticker{engine: e, run: run, interval: interval}
}

// Tick dispatches a single TimerTick for the run.
func (t *Ticker) Tick(ctx context.Context) error {
	return t.engine.Process(ctx, &event.TimerTick{Run: t.run})
}

// Run ticks every interval until ctx is cancelled, then returns ctx.Err().
// A non-positive interval is rejected before any tick.
//
// A failed tick is logged and the loop continues: the next tick re-derives
// the same state, so nothing is lost by skipping one.
func (t *Ticker) Run(ctx context.Context) error {
	if t.interval <= 0 {
		return fmt.Errorf("ticker for run %s: interval must be positive, got %s", t.run, t.interval)
	}
	logger := t.engine.cfg.Logger
	logger.Info("ticker starting", "run", t.run, "interval", t.interval)

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("ticker stopping: context cancelled", "run", t.run)
			return ctx.Err()
		case <-tk.C:
			if err := t.Tick(ctx); err != nil {
				logger.Error("timer tick failed", "run", t.run, "error", err)
			}
		}
	}
}
