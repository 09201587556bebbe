package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/syncer"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) EnsureCoverage(_ context.Context, accountID string, prefetchDays int, requiredFromISO string, _ ...syncer.CallOption) (syncer.CoverageResult, error) {
	f.record("coverage " + accountID)
	return syncer.CoverageResult{}, f.err
}

func (f *fakeEngine) RefreshSinceCursor(_ context.Context, accountID string, _ ...syncer.CallOption) (syncer.RefreshResult, error) {
	f.record("refresh " + accountID)
	return syncer.RefreshResult{}, nil
}

func (f *fakeEngine) RehydrateEmptyMemos(_ context.Context, accountID, fromISO, toISO string, _ ...syncer.CallOption) (syncer.RehydrateResult, error) {
	f.record("rehydrate " + accountID + " " + fromISO + " " + toISO)
	return syncer.RehydrateResult{}, nil
}

// bounds answers the boundary queries, the iterators are never used by the scheduler.
type bounds struct {
	syncer.Querier
	oldest, newest string
}

func (b bounds) GetOldestCreatedAt(context.Context, string) (string, bool, error) {
	return b.oldest, b.oldest != "", nil
}

func (b bounds) GetNewestCreatedAt(context.Context, string) (string, bool, error) {
	return b.newest, b.newest != "", nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Run(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return nil
}

func testConfig(accounts ...string) Config {
	return Config{
		Accounts:              accounts,
		AccountsCheckInterval: time.Hour,
		AccountSyncInterval:   time.Minute,
		PrefetchDays:          30,
	}
}

func TestSyncAccountOrder(t *testing.T) {
	e := &fakeEngine{}
	s := New(e, bounds{oldest: "2024-01-01T00:00:00Z", newest: "2024-02-01T00:00:00Z"}, &recordingQueue{}, zap.NewNop(), testConfig())

	require.NoError(t, s.SyncAccount(context.Background(), "GA"))
	assert.Equal(t, []string{
		"coverage GA",
		"refresh GA",
		"rehydrate GA 2024-01-01T00:00:00Z 2024-02-01T00:00:00Z",
	}, e.calls)
}

func TestSyncAccountSkipsRehydrateWithoutRecords(t *testing.T) {
	e := &fakeEngine{}
	s := New(e, bounds{}, &recordingQueue{}, zap.NewNop(), testConfig())

	require.NoError(t, s.SyncAccount(context.Background(), "GA"))
	assert.Equal(t, []string{"coverage GA", "refresh GA"}, e.calls)
}

func TestSyncAccountStopsOnCoverageFailure(t *testing.T) {
	e := &fakeEngine{err: syncer.ErrSyncFailed}
	s := New(e, bounds{}, &recordingQueue{}, zap.NewNop(), testConfig())

	require.ErrorIs(t, s.SyncAccount(context.Background(), "GA"), syncer.ErrSyncFailed)
	assert.Equal(t, []string{"coverage GA"}, e.calls)
}

func TestIterationClaimsAccounts(t *testing.T) {
	ctx := context.Background()
	q := &recordingQueue{}
	s := New(&fakeEngine{}, bounds{}, q, zap.NewNop(), testConfig("GA", "GB"))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.iteration(ctx)
	assert.Equal(t, []Job{{AccountID: "GA"}, {AccountID: "GB"}}, q.jobs)

	// both in flight
	s.iteration(ctx)
	assert.Len(t, q.jobs, 2)

	s.release("GA", true)
	s.release("GB", false)
	s.iteration(ctx)
	assert.Equal(t, Job{AccountID: "GB"}, q.jobs[2])
	require.Len(t, q.jobs, 3)

	// GA is due again, GB was just synced
	now = now.Add(2 * time.Minute)
	s.release("GB", true)
	s.iteration(ctx)
	require.Len(t, q.jobs, 4)
	assert.Equal(t, Job{AccountID: "GA"}, q.jobs[3])
}

func TestIterationReleasesOnEnqueueFailure(t *testing.T) {
	q := &recordingQueue{err: errors.New("queue is down")}
	s := New(&fakeEngine{}, bounds{}, q, zap.NewNop(), testConfig("GA"))

	s.iteration(context.Background())
	assert.False(t, s.inFlight["GA"])
	_, synced := s.lastSync["GA"]
	assert.False(t, synced)
}

func TestUpdaterNeverFails(t *testing.T) {
	s := New(&fakeEngine{err: syncer.ErrSyncFailed}, bounds{}, &recordingQueue{}, zap.NewNop(), testConfig("GA"))
	require.True(t, s.claim("GA"))

	assert.NoError(t, s.updater(context.Background(), Job{AccountID: "GA"}))
	assert.False(t, s.inFlight["GA"])
	_, synced := s.lastSync["GA"]
	assert.False(t, synced)

	s.engine = &fakeEngine{}
	require.True(t, s.claim("GA"))
	assert.NoError(t, s.updater(context.Background(), Job{AccountID: "GA"}))
	_, synced = s.lastSync["GA"]
	assert.True(t, synced)
}

func TestRunSyncsAccountsThroughPoolQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &fakeEngine{}
	s := New(e, bounds{}, NewPoolQueue(2, 10, zap.NewNop()), zap.NewNop(), testConfig("GA", "GB"))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.lastSync) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
