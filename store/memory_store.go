package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"pushlytics/api/models"
)

// EventWriter appends events to a backend.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []models.Event) error
}

// MemoryStore keeps events in process. It evaluates scans with the same
// semantics as the SQL backends and serves tests and local demos.
type MemoryStore struct {
	name string

	mu     sync.RWMutex
	events []models.Event
}

func NewMemoryStore(name string) *MemoryStore {
	if name == "" {
		name = "memory"
	}
	return &MemoryStore{name: name}
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) InsertEvents(_ context.Context, events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if e.EventID == "" {
			e.EventID = uuid.NewString()
		}
		e.Timestamp = e.Timestamp.UTC()
		s.events = append(s.events, e)
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *MemoryStore) inScope(e models.Event, scope Scope) bool {
	if e.OrgID != scope.OrgID || e.UserID == "" {
		return false
	}
	if scope.SiteID != "" && e.SiteID != scope.SiteID {
		return false
	}
	return scope.Range.Contains(e.Timestamp)
}

func (s *MemoryStore) ScanSteps(ctx context.Context, scan StepScan) ([]StepRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StepRow
	for _, e := range s.events {
		if !s.inScope(e, scan.Scope) {
			continue
		}
		for i, m := range scan.Steps {
			if m.Matches(e) {
				out = append(out, StepRow{UserID: e.UserID, Step: i, Timestamp: e.Timestamp})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Step < b.Step
	})
	return out, nil
}

func (s *MemoryStore) FirstEntries(ctx context.Context, scan EntryScan) ([]FirstSeen, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	first := make(map[string]FirstSeen)
	for _, e := range s.events {
		if !s.inScope(e, scan.Scope) || !scan.Matcher.Matches(e) {
			continue
		}
		if cur, ok := first[e.UserID]; !ok || e.Timestamp.Before(cur.Timestamp) {
			first[e.UserID] = FirstSeen{UserID: e.UserID, Timestamp: e.Timestamp}
		}
	}
	out := make([]FirstSeen, 0, len(first))
	for _, fs := range first {
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) ScanActivity(ctx context.Context, scan ActivityScan) ([]ActivityRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ActivityRow
	for _, e := range s.events {
		if !s.inScope(e, scan.Scope) || !scan.Matcher.Matches(e) {
			continue
		}
		row := ActivityRow{UserID: e.UserID, Timestamp: e.Timestamp}
		if scan.ValueProperty != "" {
			if text, ok := storedText(e.Properties[scan.ValueProperty]); ok {
				row.Value = &text
			}
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// MemoryFunnelStore is an in-process FunnelRepository.
type MemoryFunnelStore struct {
	mu      sync.RWMutex
	funnels map[string]models.FunnelDefinition
}

func NewMemoryFunnelStore(defs ...models.FunnelDefinition) *MemoryFunnelStore {
	s := &MemoryFunnelStore{funnels: make(map[string]models.FunnelDefinition)}
	for _, d := range defs {
		s.Put(d)
	}
	return s
}

func (s *MemoryFunnelStore) Put(def models.FunnelDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funnels[def.ID] = def
}

func (s *MemoryFunnelStore) GetFunnel(ctx context.Context, orgID, funnelID string) (*models.FunnelDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.funnels[funnelID]
	if !ok || def.OrgID != orgID {
		return nil, ErrFunnelNotFound
	}
	return &def, nil
}
