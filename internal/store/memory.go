package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"laundromat-backend/internal/model"
)

// memoryStore keeps all state in process memory behind a single mutex.
// WithTx holds the mutex for the whole unit of work and restores a snapshot
// when the work fails.
type memoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	machines      map[string]model.Machine
	balance       int64
	history       []model.HistoryEntry
	nextHistoryID int64

	recipients      []model.Recipient
	nextRecipientID int64
}

// NewMemoryStore creates an in-memory store initialized from seeds with a zero balance.
func NewMemoryStore(seeds []Seed) (Store, error) {
	seeds, err := ValidateSeeds(seeds)
	if err != nil {
		return nil, err
	}
	s := &memoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		machines: make(map[string]model.Machine, len(seeds)),
	}
	now := s.now()
	for _, seed := range seeds {
		s.machines[seed.ID] = seed.Machine(now)
	}
	return s, nil
}

func (s *memoryStore) Machines() MachineStore     { return memMachines{s: s} }
func (s *memoryStore) Balance() BalanceStore      { return memBalance{s: s} }
func (s *memoryStore) History() HistoryStore      { return memHistory{s: s} }
func (s *memoryStore) Recipients() RecipientStore { return memRecipients{s: s} }
func (s *memoryStore) Close() error               { return nil }

type memSnapshot struct {
	machines      map[string]model.Machine
	balance       int64
	history       []model.HistoryEntry
	nextHistoryID int64
}

func (s *memoryStore) snapshot() memSnapshot {
	machines := make(map[string]model.Machine, len(s.machines))
	for id, m := range s.machines {
		machines[id] = m.Clone()
	}
	return memSnapshot{machines: machines, balance: s.balance, history: s.history[:len(s.history):len(s.history)], nextHistoryID: s.nextHistoryID}
}

func (s *memoryStore) restore(snap memSnapshot) {
	s.machines = snap.machines
	s.balance = snap.balance
	s.history = snap.history
	s.nextHistoryID = snap.nextHistoryID
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memTx struct{ s *memoryStore }

func (t memTx) Machines() MachineStore { return memMachines{s: t.s, inTx: true} }
func (t memTx) Balance() BalanceStore  { return memBalance{s: t.s, inTx: true} }
func (t memTx) History() HistoryStore  { return memHistory{s: t.s, inTx: true} }

// lock takes the store mutex unless the caller already holds it through WithTx.
func lock(s *memoryStore, inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// --- machines ---

type memMachines struct {
	s    *memoryStore
	inTx bool
}

func (r memMachines) get(id string) (model.Machine, error) {
	m, ok := r.s.machines[id]
	if !ok {
		return model.Machine{}, fmt.Errorf("machine %q: %w", id, model.ErrNotFound)
	}
	return m.Clone(), nil
}

func (r memMachines) put(m model.Machine) {
	m.UpdatedAt = r.s.now()
	r.s.machines[m.ID] = m
}

func (r memMachines) Get(_ context.Context, id string) (model.Machine, error) {
	defer lock(r.s, r.inTx)()
	return r.get(id)
}

func (r memMachines) List(_ context.Context) ([]model.Machine, error) {
	defer lock(r.s, r.inTx)()
	return r.list(func(model.Machine) bool { return true }), nil
}

func (r memMachines) ListInUse(_ context.Context) ([]model.Machine, error) {
	defer lock(r.s, r.inTx)()
	return r.list(func(m model.Machine) bool { return m.Status == model.StatusInUse }), nil
}

func (r memMachines) list(keep func(model.Machine) bool) []model.Machine {
	out := make([]model.Machine, 0, len(r.s.machines))
	for _, m := range r.s.machines {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memMachines) SetInUse(_ context.Context, id string, durationSeconds int) error {
	defer lock(r.s, r.inTx)()
	if durationSeconds <= 0 {
		return fmt.Errorf("duration %d: %w", durationSeconds, model.ErrInvalidInput)
	}
	m, err := r.get(id)
	if err != nil {
		return err
	}
	if err := checkStartable(m); err != nil {
		return err
	}
	r.put(m.InUse(durationSeconds))
	return nil
}

func (r memMachines) SetAvailable(_ context.Context, id string) error {
	defer lock(r.s, r.inTx)()
	m, err := r.get(id)
	if err != nil {
		return err
	}
	if m.Status == model.StatusAvailable {
		return nil
	}
	r.put(m.Idle(model.StatusAvailable))
	return nil
}

func (r memMachines) SetOutOfService(_ context.Context, id string) error {
	defer lock(r.s, r.inTx)()
	m, err := r.get(id)
	if err != nil {
		return err
	}
	r.put(m.Idle(model.StatusOutOfService))
	return nil
}

func (r memMachines) Decrement(_ context.Context, id string) (int, error) {
	defer lock(r.s, r.inTx)()
	m, err := r.get(id)
	if err != nil {
		return 0, err
	}
	if err := checkRunning(m); err != nil {
		return 0, err
	}
	left := m.Remaining() - 1
	if left == 0 {
		m = m.Idle(model.StatusAvailable)
	} else {
		m.RemainingSeconds = &left
	}
	r.put(m)
	return left, nil
}

func (r memMachines) MarkNotified(_ context.Context, id string) error {
	defer lock(r.s, r.inTx)()
	m, err := r.get(id)
	if err != nil {
		return err
	}
	if m.Status != model.StatusInUse {
		return fmt.Errorf("machine %q is %s: %w", id, m.Status, model.ErrInvalidTransition)
	}
	m.NotifiedAlmostDone = true
	r.put(m)
	return nil
}

func (r memMachines) CompareAndSwap(_ context.Context, prev, next model.Machine) error {
	defer lock(r.s, r.inTx)()
	cur, err := r.get(prev.ID)
	if err != nil {
		return err
	}
	if !cur.SameState(prev) {
		return fmt.Errorf("machine %q: %w", prev.ID, model.ErrConflict)
	}
	next = next.Clone()
	cur.Status = next.Status
	cur.RemainingSeconds = next.RemainingSeconds
	cur.NotifiedAlmostDone = next.NotifiedAlmostDone
	r.put(cur)
	return nil
}

// --- balance ---

type memBalance struct {
	s    *memoryStore
	inTx bool
}

func (r memBalance) Get(_ context.Context) (int64, error) {
	defer lock(r.s, r.inTx)()
	return r.s.balance, nil
}

func (r memBalance) Credit(_ context.Context, amount int64) (int64, error) {
	defer lock(r.s, r.inTx)()
	if amount <= 0 {
		return 0, fmt.Errorf("credit %d: %w", amount, model.ErrInvalidAmount)
	}
	r.s.balance += amount
	return r.s.balance, nil
}

func (r memBalance) Debit(_ context.Context, amount int64) (int64, error) {
	defer lock(r.s, r.inTx)()
	if amount <= 0 {
		return 0, fmt.Errorf("debit %d: %w", amount, model.ErrInvalidAmount)
	}
	if r.s.balance < amount {
		return r.s.balance, fmt.Errorf("debit %d from %d: %w", amount, r.s.balance, model.ErrInsufficientFunds)
	}
	r.s.balance -= amount
	return r.s.balance, nil
}

// --- history ---

type memHistory struct {
	s    *memoryStore
	inTx bool
}

func (r memHistory) Append(_ context.Context, e model.HistoryEntry) (model.HistoryEntry, error) {
	defer lock(r.s, r.inTx)()
	r.s.nextHistoryID++
	e.ID = r.s.nextHistoryID
	if e.Timestamp.IsZero() {
		e.Timestamp = r.s.now()
	}
	r.s.history = append(r.s.history, e)
	return e, nil
}

func (r memHistory) List(_ context.Context, limit int) ([]model.HistoryEntry, error) {
	defer lock(r.s, r.inTx)()
	out := make([]model.HistoryEntry, len(r.s.history))
	copy(out, r.s.history)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- recipients ---

type memRecipients struct{ s *memoryStore }

func (r memRecipients) Register(_ context.Context, rec model.Recipient) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec.TargetID == "" {
		return false, fmt.Errorf("recipient without target id: %w", model.ErrInvalidInput)
	}
	for _, existing := range r.s.recipients {
		if existing.TargetID == rec.TargetID {
			return false, nil
		}
	}
	r.s.nextRecipientID++
	rec.ID = r.s.nextRecipientID
	if rec.Channel == "" {
		rec.Channel = model.ChannelLine
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.s.now()
	}
	r.s.recipients = append(r.s.recipients, rec)
	return true, nil
}

func (r memRecipients) List(_ context.Context) ([]model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Recipient, len(r.s.recipients))
	copy(out, r.s.recipients)
	return out, nil
}

func (r memRecipients) Delete(_ context.Context, targetID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.recipients {
		if existing.TargetID == targetID {
			r.s.recipients = append(r.s.recipients[:i], r.s.recipients[i+1:]...)
			return nil
		}
	}
	return nil
}

// checkStartable reports why m cannot begin a new run, if it cannot.
func checkStartable(m model.Machine) error {
	switch m.Status {
	case model.StatusAvailable:
		return nil
	case model.StatusInUse:
		return fmt.Errorf("machine %q: %w", m.ID, model.ErrAlreadyInUse)
	case model.StatusOutOfService:
		return fmt.Errorf("machine %q: %w", m.ID, model.ErrOutOfService)
	default:
		return fmt.Errorf("machine %q has status %q: %w", m.ID, m.Status, model.ErrInvalidTransition)
	}
}

// checkRunning reports whether m has time left to count down.
func checkRunning(m model.Machine) error {
	if m.Status != model.StatusInUse || m.Remaining() <= 0 {
		return fmt.Errorf("machine %q is %s with %d s left: %w", m.ID, m.Status, m.Remaining(), model.ErrInvalidTransition)
	}
	return nil
}
