package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// LimitedStore bounds the number of concurrent scans against a backend. A slot
// is acquired before every call and released on every exit path.
type LimitedStore struct {
	next EventStore
	sem  *semaphore.Weighted
}

// NewLimitedStore wraps next with at most limit concurrent scans. A limit below
// one returns next unchanged.
func NewLimitedStore(next EventStore, limit int64) EventStore {
	if limit < 1 {
		return next
	}
	return &LimitedStore{next: next, sem: semaphore.NewWeighted(limit)}
}

func (s *LimitedStore) Name() string { return s.next.Name() }

func (s *LimitedStore) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s: waiting for a scan slot: %w", s.next.Name(), err)
	}
	return nil
}

func (s *LimitedStore) ScanSteps(ctx context.Context, scan StepScan) ([]StepRow, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.next.ScanSteps(ctx, scan)
}

func (s *LimitedStore) FirstEntries(ctx context.Context, scan EntryScan) ([]FirstSeen, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.next.FirstEntries(ctx, scan)
}

func (s *LimitedStore) ScanActivity(ctx context.Context, scan ActivityScan) ([]ActivityRow, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return s.next.ScanActivity(ctx, scan)
}
