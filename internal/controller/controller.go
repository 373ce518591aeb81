// Package controller applies user actions (start, stop, top-up) to the store.
package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"laundromat-backend/internal/event"
	"laundromat-backend/internal/model"
	"laundromat-backend/internal/obs"
	"laundromat-backend/internal/parse"
	"laundromat-backend/internal/store"
)

// Controller validates and executes start/stop/top-up operations. Every
// operation runs in a single store unit of work and publishes its event only
// after the work committed.
type Controller struct {
	store store.Store
	pub   event.Publisher
	log   *zap.Logger
	now   func() time.Time
}

// New creates a controller. pub may be nil when nobody listens for events.
func New(s store.Store, pub event.Publisher, log *zap.Logger) *Controller {
	if pub == nil {
		pub = event.PublisherFunc(func(event.Event) {})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store: s,
		pub:   pub,
		log:   log.With(zap.String("component", "controller")),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Start debits price from the balance, puts the machine in use for
// durationSeconds and records the start in the history. Either all three
// happen or none does. It returns the new balance. A zero price skips the
// debit.
func (c *Controller) Start(ctx context.Context, machineID string, durationSeconds int, price int64) (int64, error) {
	id := parse.NormalizeID(machineID)
	if err := validateStart(id, durationSeconds, price); err != nil {
		obs.MachineStarts.WithLabelValues(model.ErrorCode(err)).Inc()
		return 0, err
	}

	var (
		balance int64
		started model.Machine
	)
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Machines().SetInUse(ctx, id, durationSeconds); err != nil {
			return err
		}

		var err error
		if price > 0 {
			balance, err = tx.Balance().Debit(ctx, price)
		} else {
			balance, err = tx.Balance().Get(ctx)
		}
		if err != nil {
			return err
		}

		if _, err := tx.History().Append(ctx, model.HistoryEntry{
			MachineID: id,
			Action:    model.ActionStart,
			Price:     price,
			Timestamp: c.now(),
		}); err != nil {
			return err
		}

		started, err = tx.Machines().Get(ctx, id)
		return err
	})
	if err != nil {
		obs.MachineStarts.WithLabelValues(model.ErrorCode(err)).Inc()
		c.log.Info("start rejected",
			zap.String("machine_id", id),
			zap.Int("duration_seconds", durationSeconds),
			zap.Int64("price", price),
			zap.Error(err))
		return 0, err
	}

	obs.MachineStarts.WithLabelValues("ok").Inc()
	c.log.Info("machine started",
		zap.String("machine_id", id),
		zap.Int("duration_seconds", durationSeconds),
		zap.Int64("price", price),
		zap.Int64("balance", balance))
	c.pub.Publish(event.New(event.KindStarted, started, c.now()))
	return balance, nil
}

func validateStart(id string, durationSeconds int, price int64) error {
	switch {
	case id == "":
		return fmt.Errorf("machine id is required: %w", model.ErrInvalidInput)
	case durationSeconds <= 0:
		return fmt.Errorf("duration must be positive, got %d: %w", durationSeconds, model.ErrInvalidInput)
	case price < 0:
		return fmt.Errorf("price must not be negative, got %d: %w", price, model.ErrInvalidInput)
	}
	return nil
}

// Stop cancels the current run of a machine and makes it available. An
// out-of-service machine is returned to service. Stopping an available
// machine succeeds without changes.
func (c *Controller) Stop(ctx context.Context, machineID string) error {
	return c.release(ctx, machineID, "stop")
}

// SetAvailable forces a machine whose countdown reached zero back to
// available. It has the same postconditions as Stop.
func (c *Controller) SetAvailable(ctx context.Context, machineID string) error {
	return c.release(ctx, machineID, "set-available")
}

func (c *Controller) release(ctx context.Context, machineID, action string) error {
	id := parse.NormalizeID(machineID)
	if id == "" {
		return fmt.Errorf("machine id is required: %w", model.ErrInvalidInput)
	}

	var (
		released model.Machine
		changed  bool
	)
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		m, err := tx.Machines().Get(ctx, id)
		if err != nil {
			return err
		}
		if m.Status == model.StatusAvailable {
			return nil
		}
		if err := tx.Machines().SetAvailable(ctx, id); err != nil {
			return err
		}
		released, changed = m.Idle(model.StatusAvailable), true
		return nil
	})
	if err != nil {
		c.log.Info(action+" rejected", zap.String("machine_id", id), zap.Error(err))
		return err
	}
	if !changed {
		return nil
	}

	c.log.Info("machine released", zap.String("machine_id", id), zap.String("action", action))
	c.pub.Publish(event.New(event.KindStopped, released, c.now()))
	return nil
}

// TopUp credits amount to the balance and returns the new balance.
func (c *Controller) TopUp(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("top-up of %d: %w", amount, model.ErrInvalidAmount)
	}
	balance, err := c.store.Balance().Credit(ctx, amount)
	if err != nil {
		return 0, err
	}
	c.log.Info("balance topped up", zap.Int64("amount", amount), zap.Int64("balance", balance))
	return balance, nil
}

// Balance returns the current balance.
func (c *Controller) Balance(ctx context.Context) (int64, error) {
	return c.store.Balance().Get(ctx)
}
