package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"pushlytics/api/analytics"
	"pushlytics/api/middleware"
	"pushlytics/api/models"
	"pushlytics/api/store"
	"pushlytics/api/utils"
)

var testSecret = []byte("handler-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func at(day, hour int) time.Time {
	return time.Date(2025, 1, day, hour, 0, 0, 0, time.UTC)
}

type testServer struct {
	router *gin.Engine
	events *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemoryStore("memory")
	err := mem.InsertEvents(context.Background(), []models.Event{
		{OrgID: "org-1", UserID: "u1", EventType: "track", EventName: "step_a", Timestamp: at(6, 9)},
		{OrgID: "org-1", UserID: "u1", EventType: "track", EventName: "step_b", Timestamp: at(6, 10)},
		{OrgID: "org-1", UserID: "u2", EventType: "track", EventName: "step_a", Timestamp: at(6, 9)},
		{OrgID: "org-1", UserID: "u2", EventType: "track", EventName: "step_b", Timestamp: at(7, 12)},
	})
	if err != nil {
		t.Fatal(err)
	}

	funnels := store.NewMemoryFunnelStore(models.FunnelDefinition{
		ID:          "f-1",
		OrgID:       "org-1",
		Name:        "Activation",
		WindowHours: 24,
		Steps: []models.FunnelStep{
			{Order: 1, Name: "A", EventMatcher: models.EventMatcher{EventName: "step_a"}},
			{Order: 2, Name: "B", EventMatcher: models.EventMatcher{EventName: "step_b"}},
		},
	})
	selector := analytics.NewFallbackSelector(analytics.BackendSet{Primary: mem}, analytics.DefaultSelectorConfig(), nil)
	engine := analytics.NewEngine(funnels, selector, nil, analytics.EngineConfig{})

	return &testServer{
		router: NewRouter(RouterDeps{
			Analyzer:        engine,
			Events:          mem,
			Breaker:         selector,
			Auth:            middleware.AuthConfig{JWTSecret: testSecret},
			AnalysisTimeout: 5 * time.Second,
		}),
		events: mem,
	}
}

func token(t *testing.T, orgID string) string {
	t.Helper()
	tok, err := utils.GenerateJWT(testSecret, orgID, "user-1", "analyst", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, org string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if org != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, org))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode %s: %v", w.Body.String(), err)
	}
}

func TestGetFunnelAnalysis(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/analytics/funnels/f-1?startDate=2025-01-01&endDate=2025-01-31", "org-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var res models.FunnelAnalysisResult
	decodeBody(t, w, &res)
	if res.FunnelID != "f-1" || res.FunnelName != "Activation" {
		t.Errorf("funnel = %s/%s", res.FunnelID, res.FunnelName)
	}
	if res.TotalUsers != 2 || res.ConversionRate != 50 || res.Backend != "memory" || res.Degraded {
		t.Errorf("result = %+v", res)
	}
	if len(res.Steps) != 2 || res.Steps[1].Users != 1 || res.Steps[1].DropOffRate != 50 {
		t.Errorf("steps = %+v", res.Steps)
	}
}

func TestGetFunnelAnalysisWindowOverride(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/analytics/funnels/f-1?startDate=2025-01-01&endDate=2025-01-31&windowHours=48", "org-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res models.FunnelAnalysisResult
	decodeBody(t, w, &res)
	if res.WindowHours != 48 || res.ConversionRate != 100 {
		t.Errorf("window = %d conversion = %v", res.WindowHours, res.ConversionRate)
	}
}

func TestAnalyticsErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		org        string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"unauthenticated", http.MethodGet, "/api/analytics/funnels/f-1", "", nil, http.StatusUnauthorized, ""},
		{"unknown funnel", http.MethodGet, "/api/analytics/funnels/missing?timeRange=7d", "org-1", nil, http.StatusNotFound, "not_found"},
		{"foreign funnel", http.MethodGet, "/api/analytics/funnels/f-1?timeRange=7d", "org-2", nil, http.StatusNotFound, "not_found"},
		{"bad window", http.MethodGet, "/api/analytics/funnels/f-1?windowHours=-1", "org-1", nil, http.StatusBadRequest, "invalid_request"},
		{"bad preset", http.MethodGet, "/api/analytics/funnels/f-1?timeRange=2w", "org-1", nil, http.StatusBadRequest, "invalid_request"},
		{"paths", http.MethodGet, "/api/analytics/paths?timeRange=30d", "org-1", nil, http.StatusNotImplemented, "not_implemented"},
		{"malformed cohort body", http.MethodPost, "/api/analytics/cohorts", "org-1", "{", http.StatusBadRequest, "invalid_request"},
		{"negative periods", http.MethodPost, "/api/analytics/cohorts", "org-1", `{"retentionPeriods":-1}`, http.StatusBadRequest, "invalid_request"},
		{"bad cohort period", http.MethodPost, "/api/analytics/cohorts", "org-1", `{"cohortPeriod":"quarter"}`, http.StatusBadRequest, "invalid_request"},
		{"unknown cohort kind", http.MethodPost, "/api/analytics/cohorts", "org-1", `{"kind":"lifetime","startDate":"2025-01-01"}`, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.org, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode == "" {
				return
			}
			var appErr AppError
			decodeBody(t, w, &appErr)
			if appErr.Code != tt.wantCode || appErr.Message == "" {
				t.Errorf("error body = %+v, want code %q", appErr, tt.wantCode)
			}
		})
	}
}

func TestAnalyzeCohort(t *testing.T) {
	s := newTestServer(t)
	body := `{
		"kind": "behavioral",
		"cohortPeriod": "Week",
		"startDate": "2025-01-06",
		"endDate": "2025-01-31",
		"retentionPeriods": [1],
		"triggerEvent": "step_a",
		"returnEvent": {"event_name": "step_b"}
	}`
	w := s.do(t, http.MethodPost, "/api/analytics/cohorts", "org-1", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var res models.CohortAnalysisResult
	decodeBody(t, w, &res)
	if len(res.Cohorts) != 1 {
		t.Fatalf("cohorts = %+v", res.Cohorts)
	}
	c := res.Cohorts[0]
	if c.CohortWeek != "2025-W02" || c.CohortSize != 2 {
		t.Errorf("cohort = %+v", c)
	}
	if p := c.Periods["day_1"]; p.RetentionStats == nil || p.Retained != 1 {
		t.Errorf("day_1 = %+v, want 1 retained", p)
	}
	if got := res.RetentionRates["day_1"]; got != 50 {
		t.Errorf("retentionRates[day_1] = %v, want 50", got)
	}
	if res.Summary.TotalUsers != 2 || res.Summary.TotalCohorts != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestAnalyzeCohortCountedPeriods(t *testing.T) {
	s := newTestServer(t)
	body := `{"cohortPeriod":"week","startDate":"2025-01-06","endDate":"2025-01-31","retentionPeriods":2,"triggerEvent":"step_a","returnEvent":"step_b"}`
	w := s.do(t, http.MethodPost, "/api/analytics/cohorts", "org-1", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res models.CohortAnalysisResult
	decodeBody(t, w, &res)
	for _, key := range []string{"day_0", "day_1", "day_2"} {
		if _, ok := res.RetentionRates[key]; !ok {
			t.Errorf("missing %s in %v", key, res.RetentionRates)
		}
	}
}

func TestTrackEvent(t *testing.T) {
	s := newTestServer(t)
	before := s.events.Len()

	body := `[{"eventType":"track","eventName":"step_a","userId":"u9","orgId":"org-other","timestamp":"2025-01-06T09:00:00Z"}]`
	w := s.do(t, http.MethodPost, "/api/track", "org-1", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if s.events.Len() != before+1 {
		t.Fatalf("store holds %d events, want %d", s.events.Len(), before+1)
	}

	// The tracked user now counts toward org-1's funnel.
	w = s.do(t, http.MethodGet, "/api/analytics/funnels/f-1?startDate=2025-01-01&endDate=2025-01-31", "org-1", nil)
	var res models.FunnelAnalysisResult
	decodeBody(t, w, &res)
	if res.TotalUsers != 3 {
		t.Errorf("total users = %d, want 3", res.TotalUsers)
	}
}

func TestTrackEventValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/track", "org-1", `[{"eventName":"x"}]`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing type: status = %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/api/track", "org-1", `{"not":"an array"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("object body: status = %d", w.Code)
	}
	w = s.do(t, http.MethodPost, "/api/track", "org-1", `[]`)
	if w.Code != http.StatusOK {
		t.Errorf("empty batch: status = %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["status"] != "ok" || body["primary_breaker"] != "closed" {
		t.Errorf("health body = %v", body)
	}

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("api_requests_total")) {
		t.Errorf("metrics status = %d", w.Code)
	}
}

func TestOffsetListForms(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{`[1,7,30]`, []int{1, 7, 30}, false},
		{`3`, []int{0, 1, 2, 3}, false},
		{`"0,7"`, []int{0, 7}, false},
		{`null`, nil, false},
		{`-1`, nil, true},
		{`"a,b"`, nil, true},
		{`100000`, nil, true},
	}
	for _, tt := range tests {
		var got offsetList
		err := got.UnmarshalJSON([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.in, got, tt.want)
				break
			}
		}
	}
}

func TestCohortBodyDefinition(t *testing.T) {
	b := cohortRequestBody{
		TriggerEvent:  &eventRef{EventName: "signup"},
		RevenueEvent:  &eventRef{EventName: "purchase"},
		ValueProperty: "amount",
	}
	def, err := b.definition(models.TimeRange{})
	if err != nil {
		t.Fatal(err)
	}
	if def.Kind != models.CohortRevenue || def.Return.EventName != "purchase" || def.Entry.EventName != "signup" {
		t.Errorf("definition = %+v", def)
	}
}
