package store

import (
	"context"
	"time"

	"laundromat-backend/internal/model"
)

// MachineStore is the durable record of every machine. Each method is atomic
// on its own; combine calls with Store.WithTx when several must commit together.
type MachineStore interface {
	Get(ctx context.Context, id string) (model.Machine, error)
	List(ctx context.Context) ([]model.Machine, error)
	ListInUse(ctx context.Context) ([]model.Machine, error)
	// SetInUse starts a fresh run. Only an available machine can be started.
	SetInUse(ctx context.Context, id string, durationSeconds int) error
	// SetAvailable ends any run. It is a no-op on an available machine.
	SetAvailable(ctx context.Context, id string) error
	SetOutOfService(ctx context.Context, id string) error
	// Decrement removes one second from a running machine and returns the new remaining time.
	Decrement(ctx context.Context, id string) (int, error)
	MarkNotified(ctx context.Context, id string) error
	// CompareAndSwap replaces the run state of prev.ID with next if the stored
	// record still matches prev, and fails with model.ErrConflict otherwise.
	CompareAndSwap(ctx context.Context, prev, next model.Machine) error
}

// BalanceStore holds the single stored-value balance.
type BalanceStore interface {
	Get(ctx context.Context) (int64, error)
	// Credit adds amount (> 0) and returns the new balance.
	Credit(ctx context.Context, amount int64) (int64, error)
	// Debit subtracts amount (> 0) if the balance covers it and returns the new balance.
	Debit(ctx context.Context, amount int64) (int64, error)
}

// HistoryStore is the append-only audit log.
type HistoryStore interface {
	Append(ctx context.Context, e model.HistoryEntry) (model.HistoryEntry, error)
	// List returns entries newest first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]model.HistoryEntry, error)
}

// RecipientStore holds notification destinations.
type RecipientStore interface {
	// Register inserts r unless its TargetID is already known.
	Register(ctx context.Context, r model.Recipient) (created bool, err error)
	List(ctx context.Context) ([]model.Recipient, error)
	Delete(ctx context.Context, targetID string) error
}

// Tx exposes the stores participating in a unit of work.
type Tx interface {
	Machines() MachineStore
	Balance() BalanceStore
	History() HistoryStore
}

// Store is the persistence layer used by the controller, scheduler and API.
type Store interface {
	Tx
	Recipients() RecipientStore
	// WithTx runs fn in a unit of work: everything done through tx commits
	// together when fn returns nil and is discarded otherwise. fn must not
	// use the outer Store.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Seed describes a machine created at store initialization.
type Seed struct {
	ID               string              `yaml:"id"`
	Kind             model.MachineKind   `yaml:"kind"`
	Capacity         string              `yaml:"capacity"`
	Status           model.MachineStatus `yaml:"status"`
	RemainingSeconds int                 `yaml:"remaining_seconds"`
}

// Machine converts the seed into its initial machine record.
func (s Seed) Machine(now time.Time) model.Machine {
	m := model.Machine{ID: s.ID, Kind: s.Kind, Capacity: s.Capacity, Status: s.Status, UpdatedAt: now}
	if s.Status == model.StatusInUse {
		return m.InUse(s.RemainingSeconds)
	}
	return m.Idle(s.Status)
}
