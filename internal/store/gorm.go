package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundromat-backend/internal/model"
)

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GORM-backed store. The schema must already be
// migrated; machines are seeded only when the machines table is empty and
// the balance row is created on first start.
func NewGormStore(ctx context.Context, db *gorm.DB, seeds []Seed) (Store, error) {
	seeds, err := ValidateSeeds(seeds)
	if err != nil {
		return nil, err
	}
	s := &gormStore{db: db}
	if err := s.seed(ctx, seeds); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *gormStore) seed(ctx context.Context, seeds []Seed) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Balance{ID: model.BalanceRowID, Amount: 0, UpdatedAt: time.Now().UTC()}).Error; err != nil {
			return persistErr("seed balance", err)
		}

		var count int64
		if err := tx.Model(&model.Machine{}).Count(&count).Error; err != nil {
			return persistErr("count machines", err)
		}
		if count > 0 || len(seeds) == 0 {
			return nil
		}

		now := time.Now().UTC()
		machines := make([]model.Machine, 0, len(seeds))
		for _, seed := range seeds {
			machines = append(machines, seed.Machine(now))
		}
		if err := tx.Create(&machines).Error; err != nil {
			return persistErr("seed machines", err)
		}
		return nil
	})
}

func (s *gormStore) Machines() MachineStore     { return gormMachines{db: s.db} }
func (s *gormStore) Balance() BalanceStore      { return gormBalance{db: s.db} }
func (s *gormStore) History() HistoryStore      { return gormHistory{db: s.db} }
func (s *gormStore) Recipients() RecipientStore { return gormRecipients{db: s.db} }

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a database transaction.
func (s *gormStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormTx{db: tx})
	})
	if err != nil && !classified(err) {
		return persistErr("transaction", err)
	}
	return err
}

type gormTx struct{ db *gorm.DB }

func (t gormTx) Machines() MachineStore { return gormMachines{db: t.db, inTx: true} }
func (t gormTx) Balance() BalanceStore  { return gormBalance{db: t.db, inTx: true} }
func (t gormTx) History() HistoryStore  { return gormHistory{db: t.db} }

// atomically runs fn in its own transaction unless db already is one.
func atomically(ctx context.Context, db *gorm.DB, inTx bool, fn func(tx *gorm.DB) error) error {
	if inTx {
		return fn(db.WithContext(ctx))
	}
	return db.WithContext(ctx).Transaction(fn)
}

// persistErr wraps a storage failure so callers can tell it from domain errors.
func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrPersistence, err)
}

// classified reports whether err already carries a domain meaning.
func classified(err error) bool {
	return model.ErrorCode(err) != model.CodeInternal ||
		errors.Is(err, model.ErrConflict) ||
		errors.Is(err, model.ErrPersistence) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// nullableInt maps a nil pointer to SQL NULL for map-based updates.
func nullableInt(v *int) any {
	if v == nil {
		return gorm.Expr("NULL")
	}
	return *v
}

// --- machines ---

type gormMachines struct {
	db   *gorm.DB
	inTx bool
}

func (r gormMachines) Get(ctx context.Context, id string) (model.Machine, error) {
	var m model.Machine
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Machine{}, fmt.Errorf("machine %q: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Machine{}, persistErr("get machine", err)
	}
	return m, nil
}

func (r gormMachines) List(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := r.db.WithContext(ctx).Order("id").Find(&machines).Error; err != nil {
		return nil, persistErr("list machines", err)
	}
	return machines, nil
}

func (r gormMachines) ListInUse(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.StatusInUse).
		Order("id").
		Find(&machines).Error; err != nil {
		return nil, persistErr("list running machines", err)
	}
	return machines, nil
}

// explain turns a conditional update that matched no row into the error
// describing why, falling back to a conflict when the row now looks valid.
func (r gormMachines) explain(ctx context.Context, id string, check func(model.Machine) error) error {
	m, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := check(m); err != nil {
		return err
	}
	return fmt.Errorf("machine %q: %w", id, model.ErrConflict)
}

func (r gormMachines) SetInUse(ctx context.Context, id string, durationSeconds int) error {
	if durationSeconds <= 0 {
		return fmt.Errorf("duration %d: %w", durationSeconds, model.ErrInvalidInput)
	}
	res := r.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ? AND status = ?", id, model.StatusAvailable).
		Updates(map[string]any{
			"status":               model.StatusInUse,
			"remaining_seconds":    durationSeconds,
			"notified_almost_done": false,
		})
	if res.Error != nil {
		return persistErr("start machine", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return r.explain(ctx, id, checkStartable)
}

func (r gormMachines) setIdle(ctx context.Context, id string, status model.MachineStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ? AND status <> ?", id, status).
		Updates(map[string]any{
			"status":               status,
			"remaining_seconds":    gorm.Expr("NULL"),
			"notified_almost_done": false,
		})
	if res.Error != nil {
		return persistErr("set machine "+string(status), res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	// Either unknown or already in the requested status.
	_, err := r.Get(ctx, id)
	return err
}

func (r gormMachines) SetAvailable(ctx context.Context, id string) error {
	return r.setIdle(ctx, id, model.StatusAvailable)
}

func (r gormMachines) SetOutOfService(ctx context.Context, id string) error {
	return r.setIdle(ctx, id, model.StatusOutOfService)
}

func (r gormMachines) Decrement(ctx context.Context, id string) (int, error) {
	left := 0
	err := atomically(ctx, r.db, r.inTx, func(tx *gorm.DB) error {
		tr := gormMachines{db: tx, inTx: true}
		m, err := tr.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := checkRunning(m); err != nil {
			return err
		}
		left = m.Remaining() - 1
		next := m.Clone()
		if left == 0 {
			next = next.Idle(model.StatusAvailable)
		} else {
			next.RemainingSeconds = &left
		}
		return tr.CompareAndSwap(ctx, m, next)
	})
	return left, err
}

func (r gormMachines) MarkNotified(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ? AND status = ?", id, model.StatusInUse).
		Update("notified_almost_done", true)
	if res.Error != nil {
		return persistErr("mark notified", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return r.explain(ctx, id, func(m model.Machine) error {
		return fmt.Errorf("machine %q is %s: %w", m.ID, m.Status, model.ErrInvalidTransition)
	})
}

func (r gormMachines) CompareAndSwap(ctx context.Context, prev, next model.Machine) error {
	q := r.db.WithContext(ctx).Model(&model.Machine{}).
		Where("id = ? AND status = ? AND notified_almost_done = ?", prev.ID, prev.Status, prev.NotifiedAlmostDone)
	if prev.RemainingSeconds == nil {
		q = q.Where("remaining_seconds IS NULL")
	} else {
		q = q.Where("remaining_seconds = ?", *prev.RemainingSeconds)
	}
	res := q.Updates(map[string]any{
		"status":               next.Status,
		"remaining_seconds":    nullableInt(next.RemainingSeconds),
		"notified_almost_done": next.NotifiedAlmostDone,
	})
	if res.Error != nil {
		return persistErr("update machine", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.Get(ctx, prev.ID); err != nil {
		return err
	}
	return fmt.Errorf("machine %q: %w", prev.ID, model.ErrConflict)
}

// --- balance ---

type gormBalance struct {
	db   *gorm.DB
	inTx bool
}

func (r gormBalance) Get(ctx context.Context) (int64, error) {
	var b model.Balance
	if err := r.db.WithContext(ctx).First(&b, model.BalanceRowID).Error; err != nil {
		return 0, persistErr("get balance", err)
	}
	return b.Amount, nil
}

func (r gormBalance) Credit(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit %d: %w", amount, model.ErrInvalidAmount)
	}
	var balance int64
	err := atomically(ctx, r.db, r.inTx, func(tx *gorm.DB) error {
		if err := tx.Model(&model.Balance{}).
			Where("id = ?", model.BalanceRowID).
			Update("amount", gorm.Expr("amount + ?", amount)).Error; err != nil {
			return persistErr("credit balance", err)
		}
		var err error
		balance, err = gormBalance{db: tx, inTx: true}.Get(ctx)
		return err
	})
	return balance, err
}

// Debit subtracts amount with a single conditional UPDATE so concurrent
// debits can never overdraw the balance.
func (r gormBalance) Debit(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit %d: %w", amount, model.ErrInvalidAmount)
	}
	var balance int64
	err := atomically(ctx, r.db, r.inTx, func(tx *gorm.DB) error {
		res := tx.Model(&model.Balance{}).
			Where("id = ? AND amount >= ?", model.BalanceRowID, amount).
			Update("amount", gorm.Expr("amount - ?", amount))
		if res.Error != nil {
			return persistErr("debit balance", res.Error)
		}
		var err error
		balance, err = gormBalance{db: tx, inTx: true}.Get(ctx)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("debit %d from %d: %w", amount, balance, model.ErrInsufficientFunds)
		}
		return nil
	})
	return balance, err
}

// --- history ---

type gormHistory struct{ db *gorm.DB }

func (r gormHistory) Append(ctx context.Context, e model.HistoryEntry) (model.HistoryEntry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&e).Error; err != nil {
		return model.HistoryEntry{}, persistErr("append history", err)
	}
	return e, nil
}

func (r gormHistory) List(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	q := r.db.WithContext(ctx).Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: true},
		{Column: clause.Column{Name: "id"}, Desc: true},
	}})
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, persistErr("list history", err)
	}
	return entries, nil
}

// --- recipients ---

type gormRecipients struct{ db *gorm.DB }

func (r gormRecipients) Register(ctx context.Context, rec model.Recipient) (bool, error) {
	if rec.TargetID == "" {
		return false, fmt.Errorf("recipient without target id: %w", model.ErrInvalidInput)
	}
	if rec.Channel == "" {
		rec.Channel = model.ChannelLine
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_id"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return false, persistErr("register recipient", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r gormRecipients) List(ctx context.Context) ([]model.Recipient, error) {
	var recipients []model.Recipient
	if err := r.db.WithContext(ctx).Order("id").Find(&recipients).Error; err != nil {
		return nil, persistErr("list recipients", err)
	}
	return recipients, nil
}

func (r gormRecipients) Delete(ctx context.Context, targetID string) error {
	if err := r.db.WithContext(ctx).Where("target_id = ?", targetID).Delete(&model.Recipient{}).Error; err != nil {
		return persistErr("delete recipient", err)
	}
	return nil
}
