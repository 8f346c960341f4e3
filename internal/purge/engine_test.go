package purge

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"github.com/vietddude/runpurge/internal/core/domain"
	"github.com/vietddude/runpurge/internal/resilience"
)

type fakeRemote struct {
	mu       sync.Mutex
	records  []domain.Record
	listErr  error
	filter   domain.ListFilter
	deleteFn func(id int64) error
	deleted  []int64
	inflight int
	peak     int
}

func (f *fakeRemote) ListRecords(ctx context.Context, filter domain.ListFilter) iter.Seq2[domain.Record, error] {
	f.filter = filter
	return func(yield func(domain.Record, error) bool) {
		for _, r := range f.records {
			if !filter.Matches(r.GroupName) {
				continue
			}
			if !filter.CreatedBefore.IsZero() && !r.CreatedAt.Before(filter.CreatedBefore) {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
		if f.listErr != nil {
			yield(domain.Record{}, f.listErr)
		}
	}
}

func (f *fakeRemote) DeleteRecord(ctx context.Context, id int64) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.inflight++
	f.peak = max(f.peak, f.inflight)
	fn := f.deleteFn
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if fn != nil {
		return fn(id)
	}
	return nil
}

func (f *fakeRemote) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.deleted)
}

func testConfig() Config {
	cfg := DefaultConfig
	cfg.RequestDelay = time.Millisecond
	cfg.DryRunDelay = time.Millisecond
	cfg.Retry = resilience.RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		RateLimitWait: time.Millisecond,
	}
	return cfg
}

func idRange(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

func TestExecuteDeletion_Empty(t *testing.T) {
	remote := &fakeRemote{}
	e := NewEngine(testConfig(), remote)

	res := e.ExecuteDeletion(context.Background(), nil)
	if res.Succeeded != 0 || res.Failed != 0 {
		t.Errorf("Expected zero result, got %+v", res)
	}
	if len(remote.calls()) != 0 {
		t.Errorf("Expected no remote calls, got %v", remote.calls())
	}
	if e.SnapshotMetrics().TotalAttempts != 0 {
		t.Error("Expected no attempts")
	}
}

func TestExecuteDeletion_TwoBatches(t *testing.T) {
	remote := &fakeRemote{}
	e := NewEngine(testConfig(), remote)

	res := e.ExecuteDeletion(context.Background(), idRange(25))
	if res.Succeeded != 25 || res.Failed != 0 {
		t.Fatalf("Expected 25 succeeded, got %+v", res)
	}

	calls := remote.calls()
	if len(calls) != 25 {
		t.Fatalf("Expected 25 remote calls, got %d", len(calls))
	}
	// batches run in order: every id of the first batch precedes the second
	for _, id := range calls[:20] {
		if id > 20 {
			t.Errorf("id %d dispatched before first batch finished", id)
		}
	}
	if remote.peak > 20 {
		t.Errorf("Concurrency %d exceeded batch size", remote.peak)
	}
	if m := e.SnapshotMetrics(); m.Successes != 25 || m.TotalAttempts != 25 {
		t.Errorf("Unexpected metrics %+v", m)
	}
}

func TestExecuteDeletion_FailureDoesNotCancelSiblings(t *testing.T) {
	remote := &fakeRemote{deleteFn: func(id int64) error {
		if id == 3 {
			return &domain.RemoteError{StatusCode: 404, Message: "Not Found"}
		}
		return nil
	}}
	e := NewEngine(testConfig(), remote)

	res := e.ExecuteDeletion(context.Background(), idRange(6))
	if res.Succeeded != 5 || res.Failed != 1 {
		t.Errorf("Expected 5/1, got %+v", res)
	}
	if len(remote.calls()) != 6 {
		t.Errorf("Expected all 6 attempted, got %d", len(remote.calls()))
	}
}

func TestExecuteDeletion_CircuitTripStopsBatches(t *testing.T) {
	remote := &fakeRemote{deleteFn: func(id int64) error {
		return &domain.RemoteError{StatusCode: 400, Message: "Bad Request"}
	}}
	cfg := testConfig()
	cfg.BatchSize = 1
	e := NewEngine(cfg, remote)

	res := e.ExecuteDeletion(context.Background(), idRange(10))
	if res.Failed != 10 || res.Succeeded != 0 {
		t.Fatalf("Expected 10 failed, got %+v", res)
	}
	if got := len(remote.calls()); got != 5 {
		t.Errorf("Expected 5 remote calls before the circuit opened, got %d", got)
	}
	if e.BreakerState() != resilience.StateOpen {
		t.Errorf("Expected open circuit, got %v", e.BreakerState())
	}
	if m := e.SnapshotMetrics(); m.Failures != 5 || m.TotalAttempts != 5 {
		t.Errorf("Unexpected metrics %+v", m)
	}
}

func TestExecuteDeletion_CircuitTripWithinBatch(t *testing.T) {
	remote := &fakeRemote{deleteFn: func(id int64) error {
		return &domain.RemoteError{StatusCode: 400, Message: "Bad Request"}
	}}
	e := NewEngine(testConfig(), remote)

	// all 10 fit in one batch, so usually every call passes the gate before
	// the fifth failure is recorded; only late starters are rejected
	res := e.ExecuteDeletion(context.Background(), idRange(10))
	if res.Failed != 10 {
		t.Fatalf("Expected 10 failed, got %+v", res)
	}

	m := e.SnapshotMetrics()
	calls := int64(len(remote.calls()))
	if calls < 5 {
		t.Errorf("Expected at least 5 remote calls, got %d", calls)
	}
	if m.TotalAttempts != calls {
		t.Errorf("Attempts %d do not match remote calls %d", m.TotalAttempts, calls)
	}
	if m.TotalAttempts+m.CircuitBreakerRejections != 10 {
		t.Errorf("Expected attempts+rejections = 10, got %+v", m)
	}
	if e.BreakerState() != resilience.StateOpen {
		t.Errorf("Expected open circuit, got %v", e.BreakerState())
	}
}

func TestExecuteDeletion_SmallBatchesSkipAfterTrip(t *testing.T) {
	remote := &fakeRemote{deleteFn: func(id int64) error {
		return &domain.RemoteError{StatusCode: 400, Message: "Bad Request"}
	}}
	cfg := testConfig()
	cfg.BatchSize = 4
	e := NewEngine(cfg, remote)

	// batches [1-4] [5-8] [9-10]: the fifth failure lands in the second
	// batch, so the third batch is never attempted
	res := e.ExecuteDeletion(context.Background(), idRange(10))
	if res.Failed != 10 || res.Succeeded != 0 {
		t.Fatalf("Expected 10 failed, got %+v", res)
	}
	calls := remote.calls()
	if len(calls) < 5 || len(calls) > 8 {
		t.Errorf("Expected 5..8 remote calls, got %d", len(calls))
	}
	if slices.Contains(calls, 9) || slices.Contains(calls, 10) {
		t.Errorf("Last batch reached the remote: %v", calls)
	}
	if e.BreakerState() != resilience.StateOpen {
		t.Errorf("Expected open circuit, got %v", e.BreakerState())
	}
}

func TestExecuteDeletion_RejectionsAfterTrip(t *testing.T) {
	remote := &fakeRemote{deleteFn: func(id int64) error {
		return &domain.RemoteError{StatusCode: 400, Message: "Bad Request"}
	}}
	cfg := testConfig()
	cfg.BatchSize = 1
	e := NewEngine(cfg, remote)

	// first call trips the breaker; a second call on the same engine is
	// refused without touching the remote
	e.ExecuteDeletion(context.Background(), idRange(5))
	res := e.ExecuteDeletion(context.Background(), []int64{99})
	if res.Failed != 1 {
		t.Errorf("Expected rejection counted as failure, got %+v", res)
	}
	if slices.Contains(remote.calls(), 99) {
		t.Error("Rejected id reached the remote")
	}
	if e.SnapshotMetrics().CircuitBreakerRejections != 1 {
		t.Errorf("Expected 1 rejection, got %d", e.SnapshotMetrics().CircuitBreakerRejections)
	}
}

func TestExecuteDeletion_DryRun(t *testing.T) {
	remote := &fakeRemote{}
	cfg := testConfig()
	cfg.DryRun = true
	e := NewEngine(cfg, remote)

	res := e.ExecuteDeletion(context.Background(), idRange(7))
	if res.Succeeded != 7 || res.Failed != 0 {
		t.Errorf("Expected 7 simulated successes, got %+v", res)
	}
	if len(remote.calls()) != 0 {
		t.Errorf("Dry run must not call the remote, got %v", remote.calls())
	}
	if e.SnapshotMetrics().TotalAttempts != 0 {
		t.Error("Dry run must not count remote attempts")
	}
}

func TestExecuteDeletion_CancelledContext(t *testing.T) {
	remote := &fakeRemote{}
	e := NewEngine(testConfig(), remote)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.ExecuteDeletion(ctx, idRange(30))
	if res.Failed != 30 || res.Succeeded != 0 {
		t.Errorf("Expected all 30 counted failed, got %+v", res)
	}
	if len(remote.calls()) != 0 {
		t.Errorf("Expected no calls, got %d", len(remote.calls()))
	}
}

func TestExecuteDeletion_RetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int64]int)
	remote := &fakeRemote{deleteFn: func(id int64) error {
		mu.Lock()
		defer mu.Unlock()
		seen[id]++
		if seen[id] == 1 {
			return &domain.RemoteError{StatusCode: 502, Message: "Bad Gateway"}
		}
		return nil
	}}
	e := NewEngine(testConfig(), remote)

	res := e.ExecuteDeletion(context.Background(), idRange(4))
	if res.Succeeded != 4 {
		t.Fatalf("Expected 4 succeeded, got %+v", res)
	}
	if m := e.SnapshotMetrics(); m.Retries != 4 || m.TotalAttempts != 8 {
		t.Errorf("Unexpected metrics %+v", m)
	}
}

func TestPlanDeletion(t *testing.T) {
	clk := clock.NewFake()
	clk.Set(time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC))
	old := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	remote := &fakeRemote{records: []domain.Record{
		{ID: 1, GroupID: 100, GroupName: "ci", CreatedAt: old.Add(4 * time.Hour)},
		{ID: 2, GroupID: 100, GroupName: "ci", CreatedAt: old.Add(3 * time.Hour)},
		{ID: 3, GroupID: 100, GroupName: "ci", CreatedAt: old.Add(2 * time.Hour)},
		{ID: 4, GroupID: 200, GroupName: "release", CreatedAt: old},
		{ID: 5, GroupID: 100, GroupName: "ci", CreatedAt: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
	}}
	e := NewEngine(testConfig(), remote, WithClock(clk))

	plan, err := e.PlanDeletion(context.Background(), 7, 1, nil)
	if err != nil {
		t.Fatalf("PlanDeletion failed: %v", err)
	}
	wantCutoff := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	if !remote.filter.CreatedBefore.Equal(wantCutoff) {
		t.Errorf("Expected cutoff %v, got %v", wantCutoff, remote.filter.CreatedBefore)
	}
	if plan.TotalRecords != 4 {
		t.Errorf("Expected 4 records older than cutoff, got %d", plan.TotalRecords)
	}
	if !slices.Equal(plan.IDsToDelete, []int64{2, 3}) {
		t.Errorf("Expected [2 3], got %v", plan.IDsToDelete)
	}

	plan, err = e.PlanDeletion(context.Background(), 0, 0, []string{"release"})
	if err != nil {
		t.Fatalf("PlanDeletion failed: %v", err)
	}
	if !remote.filter.CreatedBefore.IsZero() {
		t.Errorf("Expected no cutoff for olderThanDays=0, got %v", remote.filter.CreatedBefore)
	}
	if !slices.Equal(plan.IDsToDelete, []int64{4}) {
		t.Errorf("Expected [4], got %v", plan.IDsToDelete)
	}
}

func TestPlanDeletion_ListErrorPropagates(t *testing.T) {
	listErr := errors.New("boom")
	remote := &fakeRemote{listErr: listErr}
	e := NewEngine(testConfig(), remote)

	_, err := e.PlanDeletion(context.Background(), 1, 0, nil)
	if !errors.Is(err, listErr) {
		t.Errorf("Expected wrapped list error, got %v", err)
	}
}

func TestCutoff(t *testing.T) {
	now := time.Date(2024, 1, 3, 23, 59, 0, 0, time.FixedZone("X", -5*3600))
	got := Cutoff(now, 2)
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Cutoff = %v, want %v", got, want)
	}
}
