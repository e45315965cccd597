package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashflow/internal/amqp"
	"cashflow/internal/cache"
	"cashflow/internal/core"
	"cashflow/internal/projection"
	"cashflow/internal/services"
	"cashflow/internal/storage"
)

type call struct {
	accountID string
	window    core.Window
	now       time.Time
}

type fakeProjector struct {
	mu          sync.Mutex
	projects    []call
	all         []call
	invalidated []string
	accounts    []string
	err         error
}

func (f *fakeProjector) Project(_ context.Context, accountID string, window core.Window, now time.Time) (*projection.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, call{accountID, window, now})
	if f.err != nil {
		return nil, f.err
	}
	return &projection.Result{AccountID: accountID}, nil
}

func (f *fakeProjector) ProjectAll(_ context.Context, window core.Window, now time.Time) ([]*projection.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all = append(f.all, call{window: window, now: now})
	if f.err != nil {
		return nil, f.err
	}
	var out []*projection.Result
	for _, id := range f.accounts {
		out = append(out, &projection.Result{AccountID: id})
	}
	return out, nil
}

func (f *fakeProjector) Invalidate(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, accountID)
	return 1
}

func (f *fakeProjector) passes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.all)
}

type fakeScheduler struct {
	mu        sync.Mutex
	refreshed []string
	err       error
}

func (f *fakeScheduler) RefreshSchedules(_ context.Context, accountID string) ([]storage.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, accountID)
	return nil, f.err
}

func fixedWorker(p Projector, s Scheduler) *MaterializeWorker {
	w := NewMaterializeWorker(p, s, 48*time.Hour, time.Hour, nil)
	w.now = func() time.Time { return time.Date(2024, 5, 1, 12, 17, 5, 0, time.UTC) }
	return w
}

func TestMaterializeWorker_HandleMessage(t *testing.T) {
	p := &fakeProjector{}
	s := &fakeScheduler{}
	w := fixedWorker(p, s)

	err := w.HandleMessage(context.Background(), amqp.NewMaterializeMessage("checking", "rent", amqp.ReasonRecordChanged))
	require.NoError(t, err)

	// truncated to the hour
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.Len(t, p.projects, 1)
	assert.Equal(t, call{"checking", core.Window{From: now, To: now.Add(48 * time.Hour)}, now}, p.projects[0])
	assert.Equal(t, []string{"checking"}, p.invalidated)
	assert.Equal(t, []string{"checking"}, s.refreshed)
}

func TestMaterializeWorker_ScheduledMessageKeepsCache(t *testing.T) {
	p := &fakeProjector{}
	w := fixedWorker(p, &fakeScheduler{})

	err := w.HandleMessage(context.Background(), amqp.NewMaterializeMessage("checking", "", amqp.ReasonSchedule))
	require.NoError(t, err)
	assert.Empty(t, p.invalidated)
	require.Len(t, p.projects, 1)
}

type countingStore struct {
	mu     sync.Mutex
	loads  int
	writes int
}

func (c *countingStore) LoadLedger(_ context.Context, accountID string) (core.Ledger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	return core.Ledger{Account: core.AccountSnapshot{AccountID: accountID, Balance: 100}}, nil
}

func (c *countingStore) ListAccounts(context.Context) ([]core.AccountSnapshot, error) {
	return []core.AccountSnapshot{{AccountID: "checking"}, {AccountID: "savings"}}, nil
}

func (c *countingStore) ReplaceProjection(context.Context, string, []core.GeneratedTransaction, []core.GeneratedTransaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	return nil
}

func TestMaterializeWorker_RepeatedPassesHitCache(t *testing.T) {
	store := &countingStore{}
	results := cache.NewLRUCache[*projection.Result](8, time.Hour)
	svc := services.NewProjectionService(store, store, projection.NewEngine(1), services.WithResultCache(results))

	clock := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	w := NewMaterializeWorker(svc, &fakeScheduler{}, 48*time.Hour, time.Hour, nil)
	w.now = func() time.Time { return clock }

	_, err := w.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)

	// later in the same hour
	clock = clock.Add(40 * time.Minute)
	_, err = w.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
	assert.Equal(t, 2, store.writes)

	// a changed record forces a recompute of that account only
	err = w.HandleMessage(context.Background(), amqp.NewMaterializeMessage("checking", "rent", amqp.ReasonRecordChanged))
	require.NoError(t, err)
	assert.Equal(t, 3, store.loads)

	// next slot
	clock = clock.Add(time.Hour)
	_, err = w.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, store.loads)
}

func TestMaterializeWorker_HandleMessageErrors(t *testing.T) {
	msg := amqp.NewMaterializeMessage("checking", "", amqp.ReasonManual)

	p := &fakeProjector{err: errors.New("boom")}
	s := &fakeScheduler{}
	err := fixedWorker(p, s).HandleMessage(context.Background(), msg)
	assert.ErrorContains(t, err, "project account: boom")
	assert.Empty(t, s.refreshed)

	s = &fakeScheduler{err: errors.New("locked")}
	err = fixedWorker(&fakeProjector{}, s).HandleMessage(context.Background(), msg)
	assert.ErrorContains(t, err, "refresh schedules: locked")
}

func TestMaterializeWorker_ProcessAll(t *testing.T) {
	p := &fakeProjector{accounts: []string{"checking", "savings"}}
	s := &fakeScheduler{err: errors.New("ignored")}
	w := fixedWorker(p, s)

	n, err := w.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"checking", "savings"}, s.refreshed)

	p.err = errors.New("down")
	_, err = w.ProcessAll(context.Background())
	assert.ErrorContains(t, err, "down")
}

func TestMaterializeWorker_RunPeriodicStopsOnCancel(t *testing.T) {
	p := &fakeProjector{accounts: []string{"checking"}}
	w := fixedWorker(p, &fakeScheduler{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunPeriodic(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.passes() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic did not stop after cancel")
	}
}
