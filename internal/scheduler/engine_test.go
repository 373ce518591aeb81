package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"laundromat-backend/internal/controller"
	"laundromat-backend/internal/event"
	"laundromat-backend/internal/model"
	"laundromat-backend/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) of(machineID string, k event.Kind) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.MachineID == machineID && e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func newMemoryStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewMemoryStore([]store.Seed{
		{ID: "W-01", Kind: model.KindWashing, Capacity: "10kg"},
		{ID: "W-02", Kind: model.KindWashing, Capacity: "15kg"},
		{ID: "D-01", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusOutOfService},
	})
	require.NoError(t, err)
	return s
}

func tickN(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.Tick(context.Background())
		require.NoError(t, err)
	}
}

func TestEngine_SeventySecondRun(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	rec := &recorder{}
	e := New(s, rec, zaptest.NewLogger(t))

	require.NoError(t, s.Machines().SetInUse(ctx, "W-01", 70))

	for i := 1; i <= 70; i++ {
		_, err := e.Tick(ctx)
		require.NoError(t, err)
		m, err := s.Machines().Get(ctx, "W-01")
		require.NoError(t, err)
		if i < 70 {
			assert.Equal(t, 70-i, m.Remaining(), "tick %d", i)
			assert.Equal(t, model.StatusInUse, m.Status)
		}
	}

	almost := rec.of("W-01", event.KindAlmostDone)
	require.Len(t, almost, 1)
	assert.Equal(t, 60, almost[0].RemainingSeconds)

	finished := rec.of("W-01", event.KindFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, model.StatusAvailable, finished[0].Status)

	m, err := s.Machines().Get(ctx, "W-01")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, m.Status)
	assert.Nil(t, m.RemainingSeconds)
	assert.False(t, m.NotifiedAlmostDone)

	// Further ticks are no-ops.
	tickN(t, e, 5)
	assert.Len(t, rec.of("W-01", event.KindFinished), 1)
}

func TestEngine_ShortRunNotifiesOnFirstTick(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	rec := &recorder{}
	e := New(s, rec, zap.NewNop())

	require.NoError(t, s.Machines().SetInUse(ctx, "W-02", 30))
	tickN(t, e, 30)

	almost := rec.of("W-02", event.KindAlmostDone)
	require.Len(t, almost, 1)
	assert.Equal(t, 29, almost[0].RemainingSeconds)
	assert.Len(t, rec.of("W-02", event.KindFinished), 1)
}

func TestEngine_StopHaltsCountdown(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	rec := &recorder{}
	e := New(s, rec, zap.NewNop())
	c := controller.New(s, rec, zap.NewNop())

	_, err := c.Start(ctx, "W-01", 65, 0)
	require.NoError(t, err)
	tickN(t, e, 10)
	require.Len(t, rec.of("W-01", event.KindAlmostDone), 1)

	require.NoError(t, c.Stop(ctx, "W-01"))
	tickN(t, e, 100)

	m, err := s.Machines().Get(ctx, "W-01")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, m.Status)
	assert.Nil(t, m.RemainingSeconds)
	assert.Empty(t, rec.of("W-01", event.KindFinished))

	// A restart is a fresh run with its own notification.
	_, err = c.Start(ctx, "W-01", 61, 0)
	require.NoError(t, err)
	tickN(t, e, 61)
	assert.Len(t, rec.of("W-01", event.KindAlmostDone), 2)
	assert.Len(t, rec.of("W-01", event.KindFinished), 1)
}

func TestEngine_TopUpStartAndRunToCompletion(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	rec := &recorder{}
	e := New(s, rec, zap.NewNop())
	c := controller.New(s, rec, zap.NewNop())

	balance, err := c.TopUp(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	balance, err = c.Start(ctx, "W-01", 1500, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)

	tickN(t, e, 1499)
	m, err := s.Machines().Get(ctx, "W-01")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Remaining())

	tickN(t, e, 1)
	m, err = s.Machines().Get(ctx, "W-01")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, m.Status)
	assert.Nil(t, m.RemainingSeconds)

	almost := rec.of("W-01", event.KindAlmostDone)
	require.Len(t, almost, 1)
	assert.Equal(t, 60, almost[0].RemainingSeconds)
	assert.Len(t, rec.of("W-01", event.KindFinished), 1)
}

func TestEngine_ConcurrentTicksNeverDoubleNotify(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)
	rec := &recorder{}
	e := New(s, rec, zap.NewNop())

	require.NoError(t, s.Machines().SetInUse(ctx, "W-01", 80))
	require.NoError(t, s.Machines().SetInUse(ctx, "W-02", 80))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := e.Tick(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{"W-01", "W-02"} {
		assert.Len(t, rec.of(id, event.KindAlmostDone), 1, id)
		assert.Len(t, rec.of(id, event.KindFinished), 1, id)
	}
}

func TestEngine_ResumesSeededRuns(t *testing.T) {
	s, err := store.NewMemoryStore([]store.Seed{
		{ID: "W-11", Capacity: "10kg", Status: model.StatusInUse, RemainingSeconds: 3},
	})
	require.NoError(t, err)
	rec := &recorder{}
	e := New(s, rec, zap.NewNop())

	tickN(t, e, 3)
	assert.Len(t, rec.of("W-11", event.KindAlmostDone), 1)
	assert.Len(t, rec.of("W-11", event.KindFinished), 1)
}

// faultyStore fails the machine update of failID after it was applied, so a
// tick that does not roll back would leave a partial update behind.
type faultyStore struct {
	store.Store
	failID string
	fail   atomic.Bool
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(faultyTx{Tx: tx, f: f})
	})
}

type faultyTx struct {
	store.Tx
	f *faultyStore
}

func (t faultyTx) Machines() store.MachineStore {
	return faultyMachines{MachineStore: t.Tx.Machines(), f: t.f}
}

type faultyMachines struct {
	store.MachineStore
	f *faultyStore
}

func (m faultyMachines) CompareAndSwap(ctx context.Context, prev, next model.Machine) error {
	if err := m.MachineStore.CompareAndSwap(ctx, prev, next); err != nil {
		return err
	}
	if prev.ID == m.f.failID && m.f.fail.Load() {
		return fmt.Errorf("write machine %s: %w", prev.ID, model.ErrPersistence)
	}
	return nil
}

func TestEngine_FailedMachineRollsBackAndRetries(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryStore(t)
	s := &faultyStore{Store: inner, failID: "W-02"}
	s.fail.Store(true)
	rec := &recorder{}
	e := New(s, rec, zaptest.NewLogger(t))

	require.NoError(t, s.Machines().SetInUse(ctx, "W-01", 62))
	require.NoError(t, s.Machines().SetInUse(ctx, "W-02", 62))

	for i := 0; i < 3; i++ {
		res, err := e.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Advanced)
		assert.Equal(t, 1, res.Failed)
	}

	w1, err := s.Machines().Get(ctx, "W-01")
	require.NoError(t, err)
	assert.Equal(t, 59, w1.Remaining())
	assert.True(t, w1.NotifiedAlmostDone)

	w2, err := s.Machines().Get(ctx, "W-02")
	require.NoError(t, err)
	assert.Equal(t, 62, w2.Remaining(), "failed ticks must not commit")
	assert.False(t, w2.NotifiedAlmostDone)
	assert.Empty(t, rec.of("W-02", event.KindAlmostDone), "no event for an uncommitted transition")

	s.fail.Store(false)
	tickN(t, e, 2)
	w2, err = s.Machines().Get(ctx, "W-02")
	require.NoError(t, err)
	assert.Equal(t, 60, w2.Remaining())
	assert.Len(t, rec.of("W-02", event.KindAlmostDone), 1)
}

func TestEngine_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newMemoryStore(t)
	rec := &recorder{}
	e := New(s, rec, zap.NewNop(), WithInterval(5*time.Millisecond), WithThreshold(2))

	require.NoError(t, s.Machines().SetInUse(ctx, "W-01", 3))

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(rec.of("W-01", event.KindFinished)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, rec.of("W-01", event.KindAlmostDone), 1)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
