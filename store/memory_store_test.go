package store

import (
	"context"
	"testing"
	"time"

	"pushlytics/api/models"
)

var t0 = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func seedMemory(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore("")
	err := s.InsertEvents(context.Background(), []models.Event{
		{OrgID: "org-1", UserID: "u2", EventName: "view", Timestamp: t0},
		{OrgID: "org-1", UserID: "u1", EventName: "buy", Timestamp: t0.Add(time.Hour), Properties: map[string]any{"value": 49.99}},
		{OrgID: "org-1", UserID: "u1", EventName: "view", Timestamp: t0},
		{OrgID: "org-1", UserID: "u1", EventName: "buy", Timestamp: t0.Add(2 * time.Hour), Properties: map[string]any{"value": map[string]any{"a": 1}}},
		{OrgID: "org-1", UserID: "u3", EventName: "buy", Timestamp: t0.Add(3 * time.Hour)},
		{OrgID: "org-1", UserID: "", EventName: "view", Timestamp: t0},
		{OrgID: "org-1", UserID: "u4", SiteID: "other", EventName: "view", Timestamp: t0},
		{OrgID: "org-2", UserID: "u5", EventName: "view", Timestamp: t0},
		{OrgID: "org-1", UserID: "u6", EventName: "view", Timestamp: t0.AddDate(0, 1, 0)},
	})
	if err != nil {
		t.Fatalf("InsertEvents() error = %v", err)
	}
	return s
}

func memScope(site string) Scope {
	return Scope{OrgID: "org-1", SiteID: site, Range: models.TimeRange{Start: t0, End: t0.Add(24 * time.Hour)}}
}

func TestMemoryStoreScanSteps(t *testing.T) {
	s := seedMemory(t)
	if s.Name() != "memory" {
		t.Errorf("default name = %q", s.Name())
	}

	rows, err := s.ScanSteps(context.Background(), StepScan{
		Scope: memScope(""),
		Steps: []models.EventMatcher{{EventName: "view"}, {EventName: "buy"}, {}},
	})
	if err != nil {
		t.Fatalf("ScanSteps() error = %v", err)
	}

	// The catch-all third step duplicates every in-scope event.
	want := []StepRow{
		{"u1", 0, t0}, {"u1", 2, t0},
		{"u1", 1, t0.Add(time.Hour)}, {"u1", 2, t0.Add(time.Hour)},
		{"u1", 1, t0.Add(2 * time.Hour)}, {"u1", 2, t0.Add(2 * time.Hour)},
		{"u2", 0, t0}, {"u2", 2, t0},
		{"u3", 1, t0.Add(3 * time.Hour)}, {"u3", 2, t0.Add(3 * time.Hour)},
		{"u4", 0, t0}, {"u4", 2, t0},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i := range want {
		if rows[i].UserID != want[i].UserID || rows[i].Step != want[i].Step || !rows[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	rows, err = s.ScanSteps(context.Background(), StepScan{Scope: memScope("other"), Steps: []models.EventMatcher{{}}})
	if err != nil {
		t.Fatalf("ScanSteps() error = %v", err)
	}
	if len(rows) != 1 || rows[0].UserID != "u4" {
		t.Errorf("site filter: got %+v", rows)
	}
}

func TestMemoryStoreFirstEntries(t *testing.T) {
	s := seedMemory(t)
	got, err := s.FirstEntries(context.Background(), EntryScan{Scope: memScope(""), Matcher: models.EventMatcher{EventName: "buy"}})
	if err != nil {
		t.Fatalf("FirstEntries() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 users, got %+v", got)
	}
	if got[0].UserID != "u1" || !got[0].Timestamp.Equal(t0.Add(time.Hour)) {
		t.Errorf("u1 first buy = %+v", got[0])
	}
	if got[1].UserID != "u3" {
		t.Errorf("expected u3 second, got %+v", got[1])
	}
}

func TestMemoryStoreScanActivityValues(t *testing.T) {
	s := seedMemory(t)
	rows, err := s.ScanActivity(context.Background(), ActivityScan{
		Scope:         memScope(""),
		Matcher:       models.EventMatcher{EventName: "buy"},
		ValueProperty: "value",
	})
	if err != nil {
		t.Fatalf("ScanActivity() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %+v", rows)
	}
	if rows[0].Value == nil || *rows[0].Value != "49.99" {
		t.Errorf("numeric value text = %v", rows[0].Value)
	}
	if rows[1].Value == nil || *rows[1].Value != `{"a":1}` {
		t.Errorf("composite value should be JSON text, got %v", rows[1].Value)
	}
	if rows[2].Value != nil {
		t.Errorf("missing property should be nil, got %q", *rows[2].Value)
	}
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := seedMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ScanSteps(ctx, StepScan{Scope: memScope(""), Steps: []models.EventMatcher{{}}}); err == nil {
		t.Error("expected error on canceled context")
	}
}

func TestMemoryFunnelStore(t *testing.T) {
	fs := NewMemoryFunnelStore(models.FunnelDefinition{ID: "f1", OrgID: "org-1", Name: "Signup"})
	ctx := context.Background()

	def, err := fs.GetFunnel(ctx, "org-1", "f1")
	if err != nil || def.Name != "Signup" {
		t.Fatalf("GetFunnel() = %+v, %v", def, err)
	}
	if _, err := fs.GetFunnel(ctx, "org-2", "f1"); err != ErrFunnelNotFound {
		t.Errorf("foreign org: err = %v, want ErrFunnelNotFound", err)
	}
	if _, err := fs.GetFunnel(ctx, "org-1", "nope"); err != ErrFunnelNotFound {
		t.Errorf("unknown id: err = %v, want ErrFunnelNotFound", err)
	}
}

func TestFlattenProperties(t *testing.T) {
	got := flattenProperties(map[string]any{
		"plan":  "pro",
		"price": 100.0,
		"gift":  false,
		"note":  nil,
		"tags":  []any{"a", "b"},
	})
	want := map[string]string{"plan": "pro", "price": "100", "gift": "false", "tags": `["a","b"]`}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}
