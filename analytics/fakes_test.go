package analytics

import (
	"context"
	"errors"
	"sync"

	"pushlytics/api/store"
)

var errBackendDown = errors.New("backend down")

// fakeStore fails every scan, optionally blocking until the context ends.
type fakeStore struct {
	name  string
	block bool

	mu    sync.Mutex
	calls int
}

func (f *fakeStore) Name() string { return f.name }

func (f *fakeStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStore) fail(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errBackendDown
}

func (f *fakeStore) ScanSteps(ctx context.Context, _ store.StepScan) ([]store.StepRow, error) {
	return nil, f.fail(ctx)
}

func (f *fakeStore) FirstEntries(ctx context.Context, _ store.EntryScan) ([]store.FirstSeen, error) {
	return nil, f.fail(ctx)
}

func (f *fakeStore) ScanActivity(ctx context.Context, _ store.ActivityScan) ([]store.ActivityRow, error) {
	return nil, f.fail(ctx)
}

type recordingSink struct {
	mu        sync.Mutex
	completed []AnalysisEvent
	fallbacks []string
	failures  []AnalysisKind
	states    []string
}

func (r *recordingSink) AnalysisCompleted(_ context.Context, ev AnalysisEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, ev)
}

func (r *recordingSink) BackendFallback(_ context.Context, _ AnalysisKind, from, to string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, from+"->"+to)
}

func (r *recordingSink) AnalysisFailed(_ context.Context, kind AnalysisKind, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, kind)
}

func (r *recordingSink) BreakerStateChanged(_, _, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}
