// Package scheduler drives the per-second countdown of running machines.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"laundromat-backend/internal/event"
	"laundromat-backend/internal/model"
	"laundromat-backend/internal/obs"
	"laundromat-backend/internal/store"
)

// Engine advances every running machine once per tick.
//
// Each machine is advanced in its own unit of work with a compare-and-swap,
// so a concurrent stop or start on the same machine makes the tick skip that
// machine instead of overwriting it. Events are published only after the
// unit of work committed.
type Engine struct {
	store     store.Store
	pub       event.Publisher
	log       *zap.Logger
	threshold int
	interval  time.Duration
	now       func() time.Time

	mu sync.Mutex // serializes ticks
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the almost-done threshold in seconds.
func WithThreshold(seconds int) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.threshold = seconds
		}
	}
}

// WithInterval sets the period of Run.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithClock replaces the clock used to timestamp events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. pub receives committed events and must not block.
func New(s store.Store, pub event.Publisher, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:     s,
		pub:       pub,
		log:       log.With(zap.String("component", "scheduler")),
		threshold: DefaultThreshold,
		interval:  time.Second,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pub == nil {
		e.pub = event.PublisherFunc(func(event.Event) {})
	}
	return e
}

// TickResult summarizes one tick.
type TickResult struct {
	Advanced  int // machines whose new state was committed
	Skipped   int // machines changed concurrently; picked up next tick
	Failed    int // machines whose update failed; retried next tick
	Published int
}

// Tick advances every in-use machine by one second. A failure on one machine
// is logged and counted and never stops the others. The returned error is
// set only when the set of running machines could not be read.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { obs.SchedulerTickDuration.Observe(time.Since(start).Seconds()) }()
	obs.SchedulerTicks.Inc()

	var res TickResult
	running, err := e.store.Machines().ListInUse(ctx)
	if err != nil {
		obs.SchedulerMachineErrors.Inc()
		e.log.Error("list running machines", zap.Error(err))
		return res, err
	}
	obs.MachinesInUse.Set(float64(len(running)))

	for _, m := range running {
		if ctx.Err() != nil {
			break
		}
		events, err := e.advance(ctx, m.ID)
		switch {
		case errors.Is(err, model.ErrConflict):
			res.Skipped++
			obs.SchedulerConflicts.Inc()
			e.log.Debug("machine changed during tick", zap.String("machine_id", m.ID))
			continue
		case err != nil:
			res.Failed++
			obs.SchedulerMachineErrors.Inc()
			e.log.Error("advance machine", zap.String("machine_id", m.ID), zap.Error(err))
			continue
		}

		res.Advanced++
		for _, ev := range events {
			e.pub.Publish(ev)
			res.Published++
			e.log.Info("machine event",
				zap.String("kind", string(ev.Kind)),
				zap.String("machine_id", ev.MachineID),
				zap.Int("remaining_seconds", ev.RemainingSeconds))
		}
	}
	return res, nil
}

// advance moves one machine forward by a tick inside a unit of work and
// returns the events to publish once it committed.
func (e *Engine) advance(ctx context.Context, id string) ([]event.Event, error) {
	var events []event.Event
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		events = events[:0]
		m, err := tx.Machines().Get(ctx, id)
		if err != nil {
			return err
		}
		if m.Status != model.StatusInUse {
			// Stopped after the listing.
			return model.ErrConflict
		}

		next, kinds := Advance(m, e.threshold)
		if err := tx.Machines().CompareAndSwap(ctx, m, next); err != nil {
			return err
		}
		at := e.now()
		for _, k := range kinds {
			events = append(events, event.New(k, next, at))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Run calls Tick every interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info("scheduler started",
		zap.Duration("interval", e.interval),
		zap.Int("threshold_seconds", e.threshold))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.Tick(ctx); err != nil && ctx.Err() == nil {
				e.log.Warn("tick failed; retrying next interval", zap.Error(err))
			}
		}
	}
}
